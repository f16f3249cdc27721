package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/journal"
)

// Pool is the pool surface served over RPC. *swap.Pool satisfies it.
type Pool interface {
	IngestUpdates(batch [][]byte, paid amount.Amount) (amount.Amount, error)
	Swap(req swap.SwapRequest) (swap.Receipt, error)
	Arbitrate(req swap.ArbitrageRequest) (swap.Receipt, error)
	AddLiquidity(provider string, amountA, amountB amount.Amount) (amount.Amount, error)
	RemoveLiquidity(provider string, shares amount.Amount) (amount.Amount, amount.Amount, error)
	Quote(dir swap.Direction, amountIn amount.Amount) (swap.QuoteResult, error)
	UpdateFee(batch [][]byte) (amount.Amount, error)
	Price(id oracle.FeedID) (oracle.PriceFeed, error)
	PriceUnsafe(id oracle.FeedID) (oracle.PriceFeed, error)
	Assets() [2]swap.Asset
	Info() swap.Info
}

// Journal serves the operations method. *journal.Journal satisfies it.
type Journal interface {
	Recent(ctx context.Context, op string, limit int) ([]journal.Entry, error)
}

// DefaultOperationsLimit is used when operations is called without a limit.
const DefaultOperationsLimit = 50

func registerPoolMethods(r *MethodRegistry, pool Pool) {
	r.Register("ping", MethodFunc(func(*RpcContext, json.RawMessage) (interface{}, *RpcError) {
		return map[string]interface{}{}, nil
	}))
	r.Register("pool_info", MethodFunc(func(*RpcContext, json.RawMessage) (interface{}, *RpcError) {
		return toResult(pool.Info())
	}))
	r.Register("get_price", MethodFunc(priceHandler(pool, pool.Price)))
	r.Register("get_price_unsafe", MethodFunc(priceHandler(pool, pool.PriceUnsafe)))
	r.Register("update_fee", MethodFunc(updateFeeHandler(pool)))
	r.Register("update_price_feeds", MethodFunc(updatePriceFeedsHandler(pool)))
	r.Register("quote", MethodFunc(quoteHandler(pool)))
	r.Register("swap", MethodFunc(swapHandler(pool)))
	r.Register("arbitrate", MethodFunc(arbitrateHandler(pool)))
	r.Register("add_liquidity", MethodFunc(addLiquidityHandler(pool)))
	r.Register("remove_liquidity", MethodFunc(removeLiquidityHandler(pool)))
}

func priceHandler(pool Pool, get func(oracle.FeedID) (oracle.PriceFeed, error)) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p FeedParam
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		id, rpcErr := resolveFeed(pool.Assets(), p)
		if rpcErr != nil {
			return nil, rpcErr
		}
		feed, err := get(id)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return toResult(feed)
	}
}

func updateFeeHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p UpdatesParam
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		batch, rpcErr := decodeUpdates(p.Updates)
		if rpcErr != nil {
			return nil, rpcErr
		}
		fee, err := pool.UpdateFee(batch)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return map[string]interface{}{"fee": fee.String()}, nil
	}
}

func updatePriceFeedsHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p UpdatePriceFeedsParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		batch, rpcErr := decodeUpdates(p.Updates)
		if rpcErr != nil {
			return nil, rpcErr
		}
		paid, rpcErr := parseAmount("fee", p.Fee, true)
		if rpcErr != nil {
			return nil, rpcErr
		}
		fee, err := pool.IngestUpdates(batch, paid)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		refund, _ := paid.Sub(fee)
		return map[string]interface{}{
			"fee":    fee.String(),
			"refund": refund.String(),
		}, nil
	}
}

func quoteHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p QuoteParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		dir, err := swap.ParseDirection(p.Direction)
		if err != nil {
			return nil, RpcErrorInvalidParams(err.Error())
		}
		in, rpcErr := parseAmount("amount_in", p.AmountIn, false)
		if rpcErr != nil {
			return nil, rpcErr
		}
		q, err := pool.Quote(dir, in)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return toResult(q)
	}
}

func swapHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p SwapParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		dir, err := swap.ParseDirection(p.Direction)
		if err != nil {
			return nil, RpcErrorInvalidParams(err.Error())
		}
		req := swap.SwapRequest{Direction: dir}
		var rpcErr *RpcError
		if req.AmountIn, rpcErr = parseAmount("amount_in", p.AmountIn, false); rpcErr != nil {
			return nil, rpcErr
		}
		if req.MinAmountOut, rpcErr = parseAmount("min_amount_out", p.MinAmountOut, true); rpcErr != nil {
			return nil, rpcErr
		}
		if req.Fee, rpcErr = parseAmount("fee", p.Fee, true); rpcErr != nil {
			return nil, rpcErr
		}
		if req.Updates, rpcErr = decodeUpdates(p.Updates); rpcErr != nil {
			return nil, rpcErr
		}
		receipt, err := pool.Swap(req)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return toResult(receipt)
	}
}

func arbitrateHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p ArbitrateParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		var req swap.ArbitrageRequest
		var rpcErr *RpcError
		if req.AmountIn, rpcErr = parseAmount("amount_in", p.AmountIn, false); rpcErr != nil {
			return nil, rpcErr
		}
		if req.Fee, rpcErr = parseAmount("fee", p.Fee, true); rpcErr != nil {
			return nil, rpcErr
		}
		if req.Updates, rpcErr = decodeUpdates(p.Updates); rpcErr != nil {
			return nil, rpcErr
		}
		receipt, err := pool.Arbitrate(req)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return toResult(receipt)
	}
}

func addLiquidityHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p AddLiquidityParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		if p.Provider == "" {
			return nil, RpcErrorInvalidParams("Missing field 'provider'")
		}
		a, rpcErr := parseAmount("amount_a", p.AmountA, false)
		if rpcErr != nil {
			return nil, rpcErr
		}
		b, rpcErr := parseAmount("amount_b", p.AmountB, false)
		if rpcErr != nil {
			return nil, rpcErr
		}
		shares, err := pool.AddLiquidity(p.Provider, a, b)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return map[string]interface{}{
			"provider": p.Provider,
			"amount_a": a.String(),
			"amount_b": b.String(),
			"shares":   shares.String(),
		}, nil
	}
}

func removeLiquidityHandler(pool Pool) MethodFunc {
	return func(_ *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p RemoveLiquidityParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		if p.Provider == "" {
			return nil, RpcErrorInvalidParams("Missing field 'provider'")
		}
		shares, rpcErr := parseAmount("shares", p.Shares, false)
		if rpcErr != nil {
			return nil, rpcErr
		}
		a, b, err := pool.RemoveLiquidity(p.Provider, shares)
		if err != nil {
			return nil, RpcErrorFromResult(err)
		}
		return map[string]interface{}{
			"provider": p.Provider,
			"amount_a": a.String(),
			"amount_b": b.String(),
			"shares":   shares.String(),
		}, nil
	}
}

func operationsHandler(j Journal) MethodFunc {
	return func(ctx *RpcContext, params json.RawMessage) (interface{}, *RpcError) {
		var p OperationsParams
		if rpcErr := parseParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
		if p.Limit == 0 {
			p.Limit = DefaultOperationsLimit
		}
		if p.Limit < 0 || p.Limit > journal.MaxLimit {
			return nil, RpcErrorInvalidParams(fmt.Sprintf("limit must be between 1 and %d", journal.MaxLimit))
		}
		entries, err := j.Recent(ctx.Context, p.Op, p.Limit)
		if err != nil {
			return nil, RpcErrorInternal(err.Error())
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		return map[string]interface{}{
			"operations": entries,
			"limit":      p.Limit,
		}, nil
	}
}

func parseParams(params json.RawMessage, dst interface{}) *RpcError {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return RpcErrorInvalidParams("Invalid parameters: " + err.Error())
	}
	return nil
}

// parseAmount parses a base-unit amount field. Empty is zero when optional.
func parseAmount(field, s string, optional bool) (amount.Amount, *RpcError) {
	if s == "" {
		if optional {
			return amount.Zero(), nil
		}
		return amount.Zero(), RpcErrorInvalidParams(fmt.Sprintf("Missing field '%s'", field))
	}
	a, err := amount.Parse(s)
	if err != nil {
		return amount.Zero(), RpcErrorInvalidParams(fmt.Sprintf("Invalid field '%s': %v", field, err))
	}
	return a, nil
}

func decodeUpdates(encoded []string) ([][]byte, *RpcError) {
	if len(encoded) == 0 {
		return nil, nil
	}
	batch := make([][]byte, len(encoded))
	for i, s := range encoded {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, RpcErrorOracleMalformed(fmt.Sprintf("update %d is not valid base64", i))
		}
		batch[i] = b
	}
	return batch, nil
}

// resolveFeed accepts a feed id or the symbol of a pool asset.
func resolveFeed(assets [2]swap.Asset, p FeedParam) (oracle.FeedID, *RpcError) {
	switch {
	case p.Feed != "":
		id, err := oracle.ParseFeedID(p.Feed)
		if err != nil {
			return oracle.FeedID{}, RpcErrorInvalidParams("Invalid field 'feed': " + err.Error())
		}
		return id, nil
	case p.Asset != "":
		for _, a := range assets {
			if strings.EqualFold(a.Symbol, p.Asset) {
				return a.Feed, nil
			}
		}
		return oracle.FeedID{}, RpcErrorInvalidParams(fmt.Sprintf("Unknown asset '%s'", p.Asset))
	default:
		return oracle.FeedID{}, RpcErrorInvalidParams("Missing field 'feed' or 'asset'")
	}
}

// toResult renders v as a JSON object so the server can add status.
func toResult(v interface{}) (interface{}, *RpcError) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, RpcErrorInternal(err.Error())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, RpcErrorInternal(err.Error())
	}
	return out, nil
}
