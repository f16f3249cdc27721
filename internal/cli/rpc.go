package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

// RPCError is an error result returned by the server.
type RPCError struct {
	Method  string
	Token   string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s [%d]: %s", e.Method, e.Token, e.Code, e.Message)
}

// Result returns the pool result code carried by the error, if any.
func (e *RPCError) Result() (tx.Result, bool) {
	return tx.ParseResult(e.Token)
}

// rpcClient calls the JSON-RPC API of a running server.
type rpcClient struct {
	endpoint string
	http     *http.Client
}

func newRPCClient(endpoint string, timeout time.Duration) *rpcClient {
	return &rpcClient{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// clientFromConfig targets --rpc, or the configured RPC address.
func clientFromConfig() *rpcClient {
	endpoint := rpcEndpoint
	if endpoint == "" {
		endpoint = "http://" + cfg.RPCAddress() + "/"
	}
	return newRPCClient(endpoint, cfg.RPC.Timeout)
}

// Call sends one request and returns the result object.
func (c *rpcClient) Call(ctx context.Context, method string, params interface{}) (map[string]interface{}, error) {
	req := map[string]interface{}{"method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var out struct {
		Result map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", method, err)
	}
	if out.Result == nil {
		return nil, fmt.Errorf("%s: response has no result", method)
	}
	if out.Result["status"] == "error" {
		e := &RPCError{Method: method}
		e.Token, _ = out.Result["error"].(string)
		e.Message, _ = out.Result["error_message"].(string)
		if code, ok := out.Result["error_code"].(float64); ok {
			e.Code = int(code)
		}
		return nil, e
	}
	delete(out.Result, "status")
	return out.Result, nil
}

// rpcIngester submits price updates to a running server. It lets
// pricesvc.Refresh drive a remote pool.
type rpcIngester struct {
	ctx    context.Context
	client *rpcClient
}

func encodeBatch(batch [][]byte) []string {
	out := make([]string, len(batch))
	for i, p := range batch {
		out[i] = base64.StdEncoding.EncodeToString(p)
	}
	return out
}

func (r rpcIngester) UpdateFee(batch [][]byte) (amount.Amount, error) {
	res, err := r.client.Call(r.ctx, "update_fee", map[string]interface{}{"updates": encodeBatch(batch)})
	if err != nil {
		return amount.Zero(), err
	}
	return amountField(res, "fee")
}

func (r rpcIngester) IngestUpdates(batch [][]byte, paid amount.Amount) (amount.Amount, error) {
	res, err := r.client.Call(r.ctx, "update_price_feeds", map[string]interface{}{
		"updates": encodeBatch(batch),
		"fee":     paid.String(),
	})
	if err != nil {
		return amount.Zero(), err
	}
	return amountField(res, "fee")
}

func amountField(res map[string]interface{}, field string) (amount.Amount, error) {
	s, ok := res[field].(string)
	if !ok {
		return amount.Zero(), fmt.Errorf("response has no %q field", field)
	}
	return amount.Parse(s)
}
