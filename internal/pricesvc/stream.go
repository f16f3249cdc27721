package pricesvc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// Stream message types.
const (
	MsgSubscribe   = "subscribe"
	MsgPriceUpdate = "price_update"
	MsgError       = "error"
)

// StreamMessage is the JSON frame exchanged on the stream.
type StreamMessage struct {
	Type     string          `json:"type"`
	IDs      []oracle.FeedID `json:"ids,omitempty"`
	Payloads []string        `json:"payloads,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Handler receives every batch pushed by the service.
type Handler func(batch [][]byte)

// Stream subscribes to pushed payloads over WebSocket.
type Stream struct {
	url    string
	dialer websocket.Dialer
	log    *log.Logger
}

// NewStream creates a stream client. Without cfg.StreamEndpoint the URL is
// derived from cfg.Endpoint.
func NewStream(cfg Config, logger *log.Logger) (*Stream, error) {
	endpoint := cfg.StreamEndpoint
	if endpoint == "" {
		endpoint = strings.TrimRight(cfg.Endpoint, "/") + StreamPath
		switch {
		case strings.HasPrefix(endpoint, "https"):
			endpoint = "wss" + endpoint[len("https"):]
		case strings.HasPrefix(endpoint, "http"):
			endpoint = "ws" + endpoint[len("http"):]
		}
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("pricesvc: invalid stream endpoint %q", endpoint)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Stream{
		url:    endpoint,
		dialer: websocket.Dialer{HandshakeTimeout: timeout},
		log:    log.WithModule(logger, "pricesvc"),
	}, nil
}

// URL returns the stream endpoint.
func (s *Stream) URL() string {
	return s.url
}

// Subscribe dials the service, subscribes to ids and calls handler for each
// pushed batch until ctx is done or the connection fails.
func (s *Stream) Subscribe(ctx context.Context, ids []oracle.FeedID, handler Handler) error {
	if len(ids) == 0 {
		return ErrNoFeeds
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(StreamMessage{Type: MsgSubscribe, IDs: ids}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	s.log.WithField("url", s.url).WithField("feeds", len(ids)).Info("Subscribed to price stream")
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
		switch msg.Type {
		case MsgPriceUpdate:
			batch, err := decodeStrings(msg.Payloads)
			if err != nil {
				s.log.WithError(err).Warn("Dropping undecodable stream message")
				continue
			}
			handler(batch)
		case MsgError:
			return fmt.Errorf("pricesvc: stream error: %s", msg.Error)
		default:
			s.log.WithField("type", msg.Type).Debug("Ignoring stream message")
		}
	}
}

// Run keeps a subscription alive, reconnecting after retry until ctx is done.
func (s *Stream) Run(ctx context.Context, ids []oracle.FeedID, retry time.Duration, handler Handler) error {
	for {
		err := s.Subscribe(ctx, ids, handler)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrNoFeeds) {
			return err
		}
		s.log.WithError(err).WithField("retry", retry).Warn("Price stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}
