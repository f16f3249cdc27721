// Package store persists pool state to a key-value backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/codec/cbor"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/ledger"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/compression"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database"
)

// StateKey is the key the pool state is stored under.
var StateKey = []byte("pool/state")

const recordVersion = 1

// ErrVersion is returned for records written by an unknown format version.
var ErrVersion = errors.New("store: unsupported record version")

type feedRecord struct {
	ID          oracle.FeedID `codec:"id"`
	Mantissa    int64         `codec:"price"`
	Expo        int32         `codec:"expo"`
	Conf        uint64        `codec:"conf"`
	PublishTime int64         `codec:"publish_time"`
}

type positionRecord struct {
	Provider string `codec:"provider"`
	Shares   string `codec:"shares"`
}

type record struct {
	Version   uint8            `codec:"version"`
	SavedAt   int64            `codec:"saved_at"`
	Feeds     []feedRecord     `codec:"feeds"`
	Collected string           `codec:"collected"`
	ReserveA  string           `codec:"reserve_a"`
	ReserveB  string           `codec:"reserve_b"`
	Total     string           `codec:"total"`
	Positions []positionRecord `codec:"positions"`
}

// Store saves and loads swap.State.
type Store struct {
	db         database.DB
	compressor compression.Compressor
	log        *log.Logger
}

// New creates a store over db.
func New(db database.DB, compressor compression.Compressor, logger *log.Logger) *Store {
	if compressor == nil {
		compressor = compression.NoCompressor{}
	}
	return &Store{db: db, compressor: compressor, log: log.WithModule(logger, "store")}
}

// Save writes state.
func (s *Store) Save(ctx context.Context, state swap.State) error {
	rec := encodeState(state)
	rec.SavedAt = time.Now().Unix()

	raw, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	data, err := s.compressor.Compress(raw)
	if err != nil {
		return fmt.Errorf("store: compress state: %w", err)
	}
	if err := s.db.Write(ctx, StateKey, data); err != nil {
		return fmt.Errorf("store: write state: %w", err)
	}
	return nil
}

// Load reads the saved state. ok is false when nothing has been saved yet.
func (s *Store) Load(ctx context.Context) (state swap.State, ok bool, err error) {
	data, err := s.db.Read(ctx, StateKey)
	if errors.Is(err, database.ErrKeyNotFound) {
		return swap.State{}, false, nil
	}
	if err != nil {
		return swap.State{}, false, fmt.Errorf("store: read state: %w", err)
	}

	raw, err := s.compressor.Decompress(data)
	if err != nil {
		return swap.State{}, false, fmt.Errorf("store: decompress state: %w", err)
	}
	var rec record
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return swap.State{}, false, fmt.Errorf("store: decode state: %w", err)
	}
	state, err = decodeState(rec)
	if err != nil {
		return swap.State{}, false, err
	}
	return state, true, nil
}

// Observer returns a pool observer saving the state after every committed operation.
func (s *Store) Observer(ctx context.Context) swap.Observer {
	return func(ev swap.Event) {
		if ev.Err != nil || ev.State == nil {
			return
		}
		if err := s.Save(ctx, *ev.State); err != nil {
			s.log.WithError(err).WithField("op", ev.Op).Error("Failed to persist pool state")
		}
	}
}

func encodeState(st swap.State) record {
	rec := record{
		Version:   recordVersion,
		Collected: st.Gateway.Collected.String(),
		ReserveA:  st.Ledger.Reserves.A.String(),
		ReserveB:  st.Ledger.Reserves.B.String(),
		Total:     st.Ledger.Total.String(),
	}
	for _, f := range st.Gateway.Feeds {
		rec.Feeds = append(rec.Feeds, feedRecord{
			ID:          f.ID,
			Mantissa:    f.Price.Mantissa,
			Expo:        f.Price.Expo,
			Conf:        f.Price.Conf,
			PublishTime: f.Price.PublishTime.Unix(),
		})
	}
	for _, p := range st.Ledger.Positions {
		rec.Positions = append(rec.Positions, positionRecord{Provider: p.Provider, Shares: p.Shares.String()})
	}
	return rec
}

func decodeState(rec record) (swap.State, error) {
	if rec.Version != recordVersion {
		return swap.State{}, fmt.Errorf("%w: %d", ErrVersion, rec.Version)
	}

	var (
		st  swap.State
		err error
	)
	parse := func(field, s string) amount.Amount {
		if err != nil {
			return amount.Zero()
		}
		var a amount.Amount
		if a, err = amount.Parse(s); err != nil {
			err = fmt.Errorf("store: field %s: %w", field, err)
		}
		return a
	}

	st.Gateway.Collected = parse("collected", rec.Collected)
	st.Ledger.Reserves = ledger.Reserves{A: parse("reserve_a", rec.ReserveA), B: parse("reserve_b", rec.ReserveB)}
	st.Ledger.Total = parse("total", rec.Total)

	sum := amount.Zero()
	for _, p := range rec.Positions {
		shares := parse("shares", p.Shares)
		st.Ledger.Positions = append(st.Ledger.Positions, ledger.Position{Provider: p.Provider, Shares: shares})
		sum, _ = sum.Add(shares)
	}
	if err != nil {
		return swap.State{}, err
	}
	if sum.Cmp(st.Ledger.Total) != 0 {
		return swap.State{}, fmt.Errorf("store: positions sum to %s, total shares %s", sum, st.Ledger.Total)
	}

	for _, f := range rec.Feeds {
		st.Gateway.Feeds = append(st.Gateway.Feeds, oracle.PriceFeed{
			ID: f.ID,
			Price: oracle.Price{
				Mantissa:    f.Mantissa,
				Expo:        f.Expo,
				Conf:        f.Conf,
				PublishTime: time.Unix(f.PublishTime, 0).UTC(),
			},
		})
	}
	return st, nil
}

// Fields returns log fields describing state.
func Fields(st swap.State) logrus.Fields {
	return logrus.Fields{
		"reserve_a": st.Ledger.Reserves.A.String(),
		"reserve_b": st.Ledger.Reserves.B.String(),
		"shares":    st.Ledger.Total.String(),
		"feeds":     len(st.Gateway.Feeds),
	}
}
