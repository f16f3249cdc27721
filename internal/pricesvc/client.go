package pricesvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// LatestPath is the HTTP route returning the latest payloads.
const LatestPath = "/api/latest_vaas"

// StreamPath is the WebSocket route pushing payloads.
const StreamPath = "/ws"

const maxResponseSize = 4 << 20

var (
	ErrNoFeeds     = errors.New("pricesvc: no feed ids requested")
	ErrEmptyResult = errors.New("pricesvc: service returned no payloads")
)

// Config holds the price service client settings.
type Config struct {
	Endpoint       string        `mapstructure:"endpoint"`
	StreamEndpoint string        `mapstructure:"stream_endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum number of HTTP requests per second, 0 for unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// DefaultConfig points at the local simulator.
func DefaultConfig() Config {
	return Config{
		Endpoint:  "http://127.0.0.1:5080",
		Timeout:   10 * time.Second,
		RateLimit: 5,
		Burst:     5,
	}
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pricesvc: unexpected status %d: %s", e.Code, e.Body)
}

// Client fetches payloads over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	log      *log.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates an HTTP client for cfg.Endpoint.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("pricesvc: invalid endpoint %q", cfg.Endpoint)
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		log:      log.WithModule(logger, "pricesvc"),
	}, nil
}

// Latest implements Source.
func (c *Client) Latest(ctx context.Context, ids []oracle.FeedID) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, ErrNoFeeds
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pricesvc: rate limit: %w", err)
	}

	q := url.Values{}
	for _, id := range ids {
		q.Add("ids[]", id.String())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+LatestPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pricesvc: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("pricesvc: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	batch, err := DecodePayloads(body)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"feeds":    len(ids),
		"payloads": len(batch),
		"elapsed":  time.Since(start),
	}).Debug("Fetched price updates")
	return batch, nil
}

// EncodePayloads renders payloads as the JSON array of base64 strings the
// service returns.
func EncodePayloads(batch [][]byte) ([]byte, error) {
	out := make([]string, len(batch))
	for i, p := range batch {
		out[i] = base64.StdEncoding.EncodeToString(p)
	}
	return json.Marshal(out)
}

// DecodePayloads parses a JSON array of base64 payloads.
func DecodePayloads(data []byte) ([][]byte, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("pricesvc: decode response: %w", err)
	}
	return decodeStrings(raw)
}

func decodeStrings(raw []string) ([][]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyResult
	}
	batch := make([][]byte, len(raw))
	for i, s := range raw {
		p, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("pricesvc: payload %d: %w", i, err)
		}
		batch[i] = p
	}
	return batch, nil
}
