// Package journal records pool operations to a relational database.
//
// Both SQLite (modernc.org/sqlite, pure Go) and PostgreSQL (lib/pq) are
// supported. Amounts are stored as base-10 text since they are 256-bit.
package journal

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// MaxLimit bounds Recent.
const MaxLimit = 1000

// Entry is one journaled operation.
type Entry struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Op        string    `json:"op"`
	Result    string    `json:"result"`
	Direction string    `json:"direction,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	AmountIn  string    `json:"amount_in"`
	AmountOut string    `json:"amount_out"`
	AmountA   string    `json:"amount_a"`
	AmountB   string    `json:"amount_b"`
	Shares    string    `json:"shares"`
	Fee       string    `json:"fee"`
	Refund    string    `json:"refund"`
	PriceA    int64     `json:"price_a"`
	ExpoA     int32     `json:"expo_a"`
	PriceB    int64     `json:"price_b"`
	ExpoB     int32     `json:"expo_b"`
}

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS operations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			time_ms    INTEGER NOT NULL,
			op         TEXT    NOT NULL,
			result     TEXT    NOT NULL,
			direction  TEXT    NOT NULL DEFAULT '',
			provider   TEXT    NOT NULL DEFAULT '',
			amount_in  TEXT    NOT NULL DEFAULT '0',
			amount_out TEXT    NOT NULL DEFAULT '0',
			amount_a   TEXT    NOT NULL DEFAULT '0',
			amount_b   TEXT    NOT NULL DEFAULT '0',
			shares     TEXT    NOT NULL DEFAULT '0',
			fee        TEXT    NOT NULL DEFAULT '0',
			refund     TEXT    NOT NULL DEFAULT '0',
			price_a    INTEGER NOT NULL DEFAULT 0,
			expo_a     INTEGER NOT NULL DEFAULT 0,
			price_b    INTEGER NOT NULL DEFAULT 0,
			expo_b     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS operations_op_idx ON operations (op, id)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS operations (
			id         BIGSERIAL PRIMARY KEY,
			time_ms    BIGINT  NOT NULL,
			op         TEXT    NOT NULL,
			result     TEXT    NOT NULL,
			direction  TEXT    NOT NULL DEFAULT '',
			provider   TEXT    NOT NULL DEFAULT '',
			amount_in  NUMERIC(78, 0) NOT NULL DEFAULT 0,
			amount_out NUMERIC(78, 0) NOT NULL DEFAULT 0,
			amount_a   NUMERIC(78, 0) NOT NULL DEFAULT 0,
			amount_b   NUMERIC(78, 0) NOT NULL DEFAULT 0,
			shares     NUMERIC(78, 0) NOT NULL DEFAULT 0,
			fee        NUMERIC(78, 0) NOT NULL DEFAULT 0,
			refund     NUMERIC(78, 0) NOT NULL DEFAULT 0,
			price_a    BIGINT  NOT NULL DEFAULT 0,
			expo_a     INTEGER NOT NULL DEFAULT 0,
			price_b    BIGINT  NOT NULL DEFAULT 0,
			expo_b     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS operations_op_idx ON operations (op, id)`,
	},
}

const columns = `time_ms, op, result, direction, provider, amount_in, amount_out,
	amount_a, amount_b, shares, fee, refund, price_a, expo_a, price_b, expo_b`

// Journal appends operations to the operations table.
type Journal struct {
	mu     sync.RWMutex
	db     *sql.DB
	config *Config
	log    *log.Logger
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, config *Config, logger *log.Logger) (*Journal, error) {
	if err := config.Validate(); err != nil {
		return nil, newError("open", "invalid configuration", err)
	}

	db, err := sql.Open(config.Driver, config.BuildConnectionString())
	if err != nil {
		return nil, newError("open", "failed to open database connection", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, config.DefaultTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newError("open", "failed to ping database", err)
	}
	for _, stmt := range schemas[config.Driver] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, newError("open", "failed to initialize schema", err)
		}
	}

	return &Journal{db: db, config: config, log: log.WithModule(logger, "journal")}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	if err != nil {
		return newError("close", "failed to close database connection", err)
	}
	return nil
}

// Driver returns the normalized driver name.
func (j *Journal) Driver() string {
	return j.config.Driver
}

// Record appends e and returns its id. e.ID is ignored.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return 0, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, j.config.DefaultTimeout)
	defer cancel()

	query := j.rebind(`INSERT INTO operations (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := j.db.QueryRowContext(ctx, query,
		e.Time.UnixMilli(), e.Op, e.Result, e.Direction, e.Provider,
		orZero(e.AmountIn), orZero(e.AmountOut), orZero(e.AmountA), orZero(e.AmountB),
		orZero(e.Shares), orZero(e.Fee), orZero(e.Refund),
		e.PriceA, e.ExpoA, e.PriceB, e.ExpoB,
	).Scan(&id)
	if err != nil {
		return 0, newError("record", "failed to insert operation", err)
	}
	return id, nil
}

// Recent returns the latest entries, newest first. An empty op matches every operation.
func (j *Journal) Recent(ctx context.Context, op string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxLimit {
		return nil, ErrInvalidLimit
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, j.config.DefaultTimeout)
	defer cancel()

	// NUMERIC columns come back as text on both drivers once cast.
	query := `SELECT id, ` + j.textColumns() + ` FROM operations`
	args := []any{}
	if op != "" {
		query += ` WHERE op = ?`
		args = append(args, op)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, j.rebind(query), args...)
	if err != nil {
		return nil, newError("recent", "failed to query operations", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &ms, &e.Op, &e.Result, &e.Direction, &e.Provider,
			&e.AmountIn, &e.AmountOut, &e.AmountA, &e.AmountB, &e.Shares, &e.Fee, &e.Refund,
			&e.PriceA, &e.ExpoA, &e.PriceB, &e.ExpoB); err != nil {
			return nil, newError("recent", "failed to scan operation", err)
		}
		e.Time = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("recent", "failed to read operations", err)
	}
	return entries, nil
}

// Observer returns a pool observer journaling every event, committed or not.
func (j *Journal) Observer(ctx context.Context) swap.Observer {
	return func(ev swap.Event) {
		if _, err := j.Record(ctx, FromEvent(ev)); err != nil {
			j.log.WithError(err).WithFields(logrus.Fields{"op": ev.Op}).Error("Failed to journal operation")
		}
	}
}

// FromEvent converts a pool event into an entry.
func FromEvent(ev swap.Event) Entry {
	e := Entry{
		Time:   ev.Time,
		Op:     ev.Op,
		Result: ResultToken(ev.Err),
		Fee:    ev.Fee.String(),
	}
	if r := ev.Receipt; r != nil {
		e.Direction = r.Direction.String()
		e.AmountIn = r.AmountIn.String()
		e.AmountOut = r.AmountOut.String()
		e.Fee = r.Fee.String()
		e.Refund = r.Refund.String()
		e.PriceA, e.ExpoA = r.PriceA.Mantissa, r.PriceA.Expo
		e.PriceB, e.ExpoB = r.PriceB.Mantissa, r.PriceB.Expo
	}
	if l := ev.Liquidity; l != nil {
		e.Provider = l.Provider
		e.AmountA = l.AmountA.String()
		e.AmountB = l.AmountB.String()
		e.Shares = l.Shares.String()
	}
	return e
}

// ResultToken returns the result code for err, e.g. "tecSLIPPAGE".
func ResultToken(err error) string {
	return tx.ResultOf(err).String()
}

func (j *Journal) textColumns() string {
	if j.config.Driver != DriverPostgres {
		return columns
	}
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		c = strings.TrimSpace(c)
		switch c {
		case "amount_in", "amount_out", "amount_a", "amount_b", "shares", "fee", "refund":
			c += "::text"
		}
		cols[i] = c
	}
	return strings.Join(cols, ", ")
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (j *Journal) rebind(query string) string {
	if j.config.Driver != DriverPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func orZero(s string) string {
	if s == "" {
		return amount.Zero().String()
	}
	return s
}
