package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/ledger"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

const (
	wsReadLimit    = 512 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteWait    = 10 * time.Second
	wsSendBuffer   = 256
)

// PoolEvent is pushed to stream subscribers after every pool operation.
type PoolEvent struct {
	Type          string                `json:"type"` // Always "poolEvent"
	Op            string                `json:"op"`
	EngineResult  string                `json:"engine_result"`
	EngineCode    int                   `json:"engine_result_code"`
	EngineMessage string                `json:"engine_result_message"`
	Time          time.Time             `json:"time"`
	Fee           amount.Amount         `json:"fee"`
	Receipt       *swap.Receipt         `json:"receipt,omitempty"`
	Liquidity     *swap.LiquidityChange `json:"liquidity,omitempty"`
	Reserves      *ledger.Reserves      `json:"reserves,omitempty"`
	TotalShares   *amount.Amount        `json:"total_shares,omitempty"`
}

// NewPoolEvent converts a pool event for the stream.
func NewPoolEvent(ev swap.Event) *PoolEvent {
	r := tx.ResultOf(ev.Err)
	out := &PoolEvent{
		Type:          "poolEvent",
		Op:            ev.Op,
		EngineResult:  r.String(),
		EngineCode:    int(r),
		EngineMessage: r.Message(),
		Time:          ev.Time,
		Fee:           ev.Fee,
		Receipt:       ev.Receipt,
		Liquidity:     ev.Liquidity,
	}
	if ev.State != nil {
		reserves := ev.State.Ledger.Reserves
		total := ev.State.Ledger.Total
		out.Reserves = &reserves
		out.TotalShares = &total
	}
	return out
}

// WebSocketCommand is a command received over WebSocket
type WebSocketCommand struct {
	Command string
	ID      interface{}
	Params  json.RawMessage
}

// WebSocketResponse is the reply to a WebSocketCommand
type WebSocketResponse struct {
	Type   string      `json:"type"`
	ID     interface{} `json:"id,omitempty"`
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
}

// WebSocketServer serves RPC methods and the pool event stream over WebSocket.
// Connections receive events after sending {"command":"subscribe"}.
type WebSocketServer struct {
	upgrader         websocket.Upgrader
	server           *Server
	connections      map[uint64]*WebSocketConnection
	connectionsMutex sync.RWMutex
	nextID           atomic.Uint64
	log              *log.Logger
}

// WebSocketConnection represents a single WebSocket connection
type WebSocketConnection struct {
	ID          uint64
	conn        *websocket.Conn
	subscribed  atomic.Bool
	sendChannel chan []byte
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

// NewWebSocketServer creates a WebSocket front end for server.
func NewWebSocketServer(server *Server) *WebSocketServer {
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		server:      server,
		connections: make(map[uint64]*WebSocketConnection),
		log:         server.log.WithField("transport", "ws"),
	}
}

// ConnectionCount returns the number of open connections.
func (ws *WebSocketServer) ConnectionCount() int {
	ws.connectionsMutex.RLock()
	defer ws.connectionsMutex.RUnlock()
	return len(ws.connections)
}

// Observer returns a pool observer broadcasting every event to subscribers.
// It never blocks: a subscriber with a full buffer is disconnected.
func (ws *WebSocketServer) Observer() swap.Observer {
	return func(ev swap.Event) {
		data, err := json.Marshal(NewPoolEvent(ev))
		if err != nil {
			ws.log.WithError(err).Error("Failed to marshal pool event")
			return
		}
		ws.Broadcast(data)
	}
}

// Broadcast queues data on every subscribed connection.
func (ws *WebSocketServer) Broadcast(data []byte) {
	ws.connectionsMutex.RLock()
	targets := make([]*WebSocketConnection, 0, len(ws.connections))
	for _, c := range ws.connections {
		if c.subscribed.Load() {
			targets = append(targets, c)
		}
	}
	ws.connectionsMutex.RUnlock()

	for _, c := range targets {
		ws.enqueue(c, data)
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (ws *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	wsConn := &WebSocketConnection{
		ID:          ws.nextID.Add(1),
		conn:        conn,
		sendChannel: make(chan []byte, wsSendBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}

	ws.connectionsMutex.Lock()
	ws.connections[wsConn.ID] = wsConn
	ws.connectionsMutex.Unlock()

	ws.log.WithFields(logrus.Fields{"conn": wsConn.ID, "client": getClientIP(r)}).Debug("WebSocket connected")

	go ws.handleSend(wsConn)
	go ws.handleConnection(wsConn, getClientIP(r))
}

// handleConnection reads commands until the peer goes away
func (ws *WebSocketServer) handleConnection(wsConn *WebSocketConnection, clientIP string) {
	defer ws.closeConnection(wsConn)

	wsConn.conn.SetReadLimit(wsReadLimit)
	_ = wsConn.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	wsConn.conn.SetPongHandler(func(string) error {
		return wsConn.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := wsConn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.WithError(err).Debug("WebSocket read failed")
			}
			return
		}
		_ = wsConn.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.handleMessage(wsConn, clientIP, message)
	}
}

// handleSend writes queued messages and keeps the connection alive
func (ws *WebSocketServer) handleSend(wsConn *WebSocketConnection) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer ws.closeConnection(wsConn)

	for {
		select {
		case <-wsConn.ctx.Done():
			return
		case message := <-wsConn.sendChannel:
			_ = wsConn.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := wsConn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				ws.log.WithError(err).Debug("WebSocket send failed")
				return
			}
		case <-ticker.C:
			_ = wsConn.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := wsConn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes a single message from WebSocket.
// Command and params share one flat object: {"command":"quote","id":1,...}
func (ws *WebSocketServer) handleMessage(wsConn *WebSocketConnection, clientIP string, message []byte) {
	var cmdMap map[string]interface{}
	if err := json.Unmarshal(message, &cmdMap); err != nil {
		ws.sendError(wsConn, NewRpcError(RpcPARSE_ERROR, "jsonInvalid", "jsonInvalid", "Invalid JSON: "+err.Error()), nil)
		return
	}

	command, ok := cmdMap["command"].(string)
	if !ok || command == "" {
		ws.sendError(wsConn, NewRpcError(RpcMISSING_COMMAND, "missingCommand", "missingCommand", "Missing command field"), cmdMap["id"])
		return
	}

	cmd := WebSocketCommand{Command: command, ID: cmdMap["id"]}
	delete(cmdMap, "command")
	delete(cmdMap, "id")
	if len(cmdMap) > 0 {
		cmd.Params, _ = json.Marshal(cmdMap)
	}

	switch cmd.Command {
	case "subscribe":
		wsConn.subscribed.Store(true)
		ws.sendResponse(wsConn, WebSocketResponse{Type: "response", ID: cmd.ID, Status: "success",
			Result: map[string]interface{}{"streams": []string{"pool"}}})
		return
	case "unsubscribe":
		wsConn.subscribed.Store(false)
		ws.sendResponse(wsConn, WebSocketResponse{Type: "response", ID: cmd.ID, Status: "success",
			Result: map[string]interface{}{}})
		return
	}

	ctx := &RpcContext{Context: wsConn.ctx, ClientIP: clientIP}
	result, rpcErr := ws.server.executeMethod(cmd.Command, cmd.Params, ctx)
	if rpcErr != nil {
		ws.sendError(wsConn, rpcErr, cmd.ID)
		return
	}
	ws.sendResponse(wsConn, WebSocketResponse{Type: "response", ID: cmd.ID, Status: "success", Result: result})
}

func (ws *WebSocketServer) sendResponse(wsConn *WebSocketConnection, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		ws.log.WithError(err).Error("Failed to marshal WebSocket response")
		return
	}
	ws.enqueue(wsConn, data)
}

// sendError sends an error response with flat error fields
func (ws *WebSocketServer) sendError(wsConn *WebSocketConnection, rpcErr *RpcError, id interface{}) {
	response := map[string]interface{}{
		"type":          "response",
		"status":        "error",
		"error":         rpcErr.ErrorString,
		"error_code":    rpcErr.Code,
		"error_message": rpcErr.Message,
	}
	if id != nil {
		response["id"] = id
	}
	data, err := json.Marshal(response)
	if err != nil {
		ws.log.WithError(err).Error("Failed to marshal WebSocket error response")
		return
	}
	ws.enqueue(wsConn, data)
}

func (ws *WebSocketServer) enqueue(wsConn *WebSocketConnection, data []byte) {
	select {
	case <-wsConn.ctx.Done():
	case wsConn.sendChannel <- data:
	default:
		ws.log.WithField("conn", wsConn.ID).Warn("WebSocket send channel full, closing connection")
		ws.closeConnection(wsConn)
	}
}

// closeConnection closes a WebSocket connection
func (ws *WebSocketServer) closeConnection(wsConn *WebSocketConnection) {
	wsConn.closeOnce.Do(func() {
		wsConn.cancel()
		ws.connectionsMutex.Lock()
		delete(ws.connections, wsConn.ID)
		ws.connectionsMutex.Unlock()
		_ = wsConn.conn.Close()
		ws.log.WithField("conn", wsConn.ID).Debug("WebSocket closed")
	})
}

// CloseAll disconnects every client.
func (ws *WebSocketServer) CloseAll() {
	ws.connectionsMutex.RLock()
	conns := make([]*WebSocketConnection, 0, len(ws.connections))
	for _, c := range ws.connections {
		conns = append(conns, c)
	}
	ws.connectionsMutex.RUnlock()
	for _, c := range conns {
		ws.closeConnection(c)
	}
}
