package rpc

import (
	"context"
	"encoding/json"
	"sort"
)

// Request is a JSON-RPC request
// Format: {"method": "method_name", "params": [{...}]}
type Request struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

// RpcContext contains request-specific information
type RpcContext struct {
	Context  context.Context
	ClientIP string
}

// MethodHandler is implemented by every RPC method
type MethodHandler interface {
	Handle(ctx *RpcContext, params json.RawMessage) (interface{}, *RpcError)
}

// MethodFunc adapts a function to MethodHandler
type MethodFunc func(ctx *RpcContext, params json.RawMessage) (interface{}, *RpcError)

func (f MethodFunc) Handle(ctx *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
	return f(ctx, params)
}

// MethodRegistry maps method names to handlers
type MethodRegistry struct {
	methods map[string]MethodHandler
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods: make(map[string]MethodHandler),
	}
}

func (r *MethodRegistry) Register(name string, handler MethodHandler) {
	r.methods[name] = handler
}

func (r *MethodRegistry) Get(name string) (MethodHandler, bool) {
	handler, exists := r.methods[name]
	return handler, exists
}

// List returns the registered method names, sorted
func (r *MethodRegistry) List() []string {
	methods := make([]string, 0, len(r.methods))
	for name := range r.methods {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

// Common parameter structures used across methods

// FeedParam selects a price feed by id or by pool asset symbol
type FeedParam struct {
	Feed  string `json:"feed,omitempty"`
	Asset string `json:"asset,omitempty"`
}

// UpdatesParam carries base64 encoded signed update payloads
type UpdatesParam struct {
	Updates []string `json:"updates,omitempty"`
}

// UpdatePriceFeedsParams for update_price_feeds
type UpdatePriceFeedsParams struct {
	UpdatesParam
	Fee string `json:"fee"`
}

// QuoteParams for quote
type QuoteParams struct {
	Direction string `json:"direction"`
	AmountIn  string `json:"amount_in"`
}

// SwapParams for swap
type SwapParams struct {
	UpdatesParam
	Direction    string `json:"direction"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out,omitempty"`
	Fee          string `json:"fee,omitempty"`
}

// ArbitrateParams for arbitrate
type ArbitrateParams struct {
	UpdatesParam
	AmountIn string `json:"amount_in"`
	Fee      string `json:"fee,omitempty"`
}

// AddLiquidityParams for add_liquidity
type AddLiquidityParams struct {
	Provider string `json:"provider"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
}

// RemoveLiquidityParams for remove_liquidity
type RemoveLiquidityParams struct {
	Provider string `json:"provider"`
	Shares   string `json:"shares"`
}

// OperationsParams for operations
type OperationsParams struct {
	Op    string `json:"op,omitempty"`
	Limit int    `json:"limit,omitempty"`
}
