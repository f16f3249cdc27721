package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// DefaultMaxBodySize bounds POST bodies when none is configured.
const DefaultMaxBodySize = 1 << 20

// RequestObserver is notified after every RPC call.
type RequestObserver interface {
	ObserveRPC(method, status string, elapsed time.Duration)
}

// Server handles HTTP JSON-RPC requests for a pool
type Server struct {
	registry *MethodRegistry
	timeout  time.Duration
	maxBody  int64
	observer RequestObserver
	log      *log.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables the operations method.
func WithJournal(j Journal) Option {
	return func(s *Server) {
		if j != nil {
			s.registry.Register("operations", MethodFunc(operationsHandler(j)))
		}
	}
}

// WithRequestObserver reports every call to o.
func WithRequestObserver(o RequestObserver) Option {
	return func(s *Server) { s.observer = o }
}

// WithMaxBodySize bounds POST bodies.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer creates a new RPC server for pool with the given timeout
func NewServer(pool Pool, timeout time.Duration, logger *log.Logger, opts ...Option) *Server {
	server := &Server{
		registry: NewMethodRegistry(),
		timeout:  timeout,
		maxBody:  DefaultMaxBodySize,
		log:      log.WithModule(logger, "rpc"),
	}

	// Register all RPC methods
	registerPoolMethods(server.registry, pool)
	for _, opt := range opts {
		opt(server)
	}

	return server
}

// Methods returns the registered method names.
func (s *Server) Methods() []string {
	return s.registry.List()
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	// Handle preflight requests
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// GET serves parameterless queries such as pool_info
	if r.Method == http.MethodGet {
		s.handleGetRequest(w, r)
		return
	}

	s.handlePostRequest(w, r)
}

// handleGetRequest processes GET requests with query parameters
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	method := query.Get("command")
	if method == "" {
		method = "pool_info"
	}

	// Remaining query values become a flat params object
	var params json.RawMessage
	if len(query) > 1 || (len(query) == 1 && query.Get("command") == "") {
		flat := make(map[string]string, len(query))
		for k := range query {
			if k != "command" {
				flat[k] = query.Get(k)
			}
		}
		params, _ = json.Marshal(flat)
	}

	ctx := s.newContext(r)
	result, rpcErr := s.executeMethod(method, params, ctx)
	s.writeResponse(w, method, nil, result, rpcErr)
}

// handlePostRequest processes POST requests with a JSON-RPC payload
func (s *Server) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		s.writeError(w, nil, "internal", "Failed to read request body")
		return
	}
	if int64(len(body)) > s.maxBody {
		s.writeError(w, nil, "invalidParams", "Request body too large")
		return
	}

	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		s.writeError(w, nil, "jsonInvalid", "Invalid JSON: "+err.Error())
		return
	}

	if request.Method == "" {
		s.writeError(w, nil, "missingCommand", "Missing method field")
		return
	}

	// params is an array holding one object
	var params json.RawMessage
	if len(request.Params) > 0 {
		params = request.Params[0]
	}

	ctx := s.newContext(r)
	result, rpcErr := s.executeMethod(request.Method, params, ctx)

	// Echo the request in error responses
	var requestObj interface{}
	if rpcErr != nil {
		if params != nil {
			var reqMap map[string]interface{}
			if err := json.Unmarshal(params, &reqMap); err == nil && reqMap != nil {
				reqMap["command"] = request.Method
				requestObj = reqMap
			}
		} else {
			requestObj = map[string]interface{}{"command": request.Method}
		}
	}

	s.writeResponse(w, request.Method, requestObj, result, rpcErr)
}

func (s *Server) newContext(r *http.Request) *RpcContext {
	return &RpcContext{
		Context:  r.Context(),
		ClientIP: getClientIP(r),
	}
}

// executeMethod executes an RPC method with the given parameters
func (s *Server) executeMethod(method string, params json.RawMessage, ctx *RpcContext) (result interface{}, rpcErr *RpcError) {
	start := time.Now()
	defer func() {
		status := "success"
		if rpcErr != nil {
			status = rpcErr.ErrorString
		}
		if s.observer != nil {
			s.observer.ObserveRPC(method, status, time.Since(start))
		}
		s.log.WithFields(logrus.Fields{
			"method":  method,
			"status":  status,
			"client":  ctx.ClientIP,
			"elapsed": time.Since(start),
		}).Debug("RPC request")
	}()

	handler, exists := s.registry.Get(method)
	if !exists {
		return nil, RpcErrorMethodNotFound(method)
	}

	if s.timeout > 0 {
		c, cancel := context.WithTimeout(ctx.Context, s.timeout)
		defer cancel()
		ctx.Context = c
	}

	return handler.Handle(ctx, params)
}

// writeResponse writes a JSON-RPC response with the status inside result.
// result.status is "success" or "error".
func (s *Server) writeResponse(w http.ResponseWriter, method string, request interface{}, result interface{}, rpcErr *RpcError) {
	response := make(map[string]interface{})

	if rpcErr != nil {
		resultObj := map[string]interface{}{
			"status":        "error",
			"error":         rpcErr.ErrorString,
			"error_code":    rpcErr.Code,
			"error_message": rpcErr.Message,
		}
		if request != nil {
			resultObj["request"] = request
		}
		response["result"] = resultObj
	} else {
		if resultMap, ok := result.(map[string]interface{}); ok {
			resultMap["status"] = "success"
			response["result"] = resultMap
		} else {
			response["result"] = map[string]interface{}{
				"status": "success",
				"data":   result,
			}
		}
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		s.log.WithError(err).WithField("method", method).Error("Failed to marshal response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseData)
}

// writeError writes an error response for a request that never reached a method
func (s *Server) writeError(w http.ResponseWriter, request interface{}, errorCode string, message string) {
	resultObj := map[string]interface{}{
		"status":        "error",
		"error":         errorCode,
		"error_message": message,
	}
	if request != nil {
		resultObj["request"] = request
	}

	responseData, err := json.Marshal(map[string]interface{}{"result": resultObj})
	if err != nil {
		s.log.WithError(err).Error("Failed to marshal error response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseData)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	return ip
}
