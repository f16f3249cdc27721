// Package pricesvc fetches signed price update payloads from an off-chain
// price service, over HTTP or a WebSocket stream, and serves them locally
// for development.
package pricesvc

//go:generate mockgen -destination=mock_source.go -package=pricesvc . Source

import (
	"context"
	"fmt"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
)

// Source returns the latest signed update payloads for a set of feeds.
type Source interface {
	Latest(ctx context.Context, ids []oracle.FeedID) ([][]byte, error)
}

// Ingester is the part of the pool that accepts update batches.
type Ingester interface {
	UpdateFee(batch [][]byte) (amount.Amount, error)
	IngestUpdates(batch [][]byte, paid amount.Amount) (amount.Amount, error)
}

// Refresh fetches the latest payloads for ids and ingests them, paying
// exactly the required fee. It returns the fee paid.
func Refresh(ctx context.Context, src Source, pool Ingester, ids []oracle.FeedID) (amount.Amount, error) {
	batch, err := src.Latest(ctx, ids)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fetch price updates: %w", err)
	}
	fee, err := pool.UpdateFee(batch)
	if err != nil {
		return amount.Zero(), err
	}
	return pool.IngestUpdates(batch, fee)
}
