package pricesvc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/publisher"
)

// ErrUnknownFeed is returned by the server for feeds it does not publish.
var ErrUnknownFeed = errors.New("pricesvc: unknown feed")

type quote struct {
	mantissa int64
	expo     int32
}

// Server is a local price service signing the prices it is given.
type Server struct {
	pub      *publisher.Publisher
	interval time.Duration
	upgrader websocket.Upgrader
	log      *log.Logger

	mu     sync.RWMutex
	prices map[oracle.FeedID]quote
	now    func() time.Time
}

// NewServer creates a server signing with pub and pushing to stream
// subscribers every interval.
func NewServer(pub *publisher.Publisher, interval time.Duration, logger *log.Logger) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		pub:      pub,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:    log.WithModule(logger, "pricesvc-server"),
		prices: make(map[oracle.FeedID]quote),
		now:    time.Now,
	}
}

// SetClock overrides the publish time source.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetPrice sets the price published for id.
func (s *Server) SetPrice(id oracle.FeedID, mantissa int64, expo int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[id] = quote{mantissa: mantissa, expo: expo}
}

// Feeds returns the published feeds, sorted.
func (s *Server) Feeds() []oracle.FeedID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]oracle.FeedID, 0, len(s.prices))
	for id := range s.prices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Payloads signs a single payload carrying the current price of every id.
func (s *Server) Payloads(ids []oracle.FeedID) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, ErrNoFeeds
	}
	if len(ids) > oracle.MaxUpdatesPerPayload {
		return nil, fmt.Errorf("pricesvc: at most %d feeds per request", oracle.MaxUpdatesPerPayload)
	}

	s.mu.RLock()
	now := s.now()
	updates := make([]oracle.PriceUpdate, 0, len(ids))
	for _, id := range ids {
		q, ok := s.prices[id]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, id)
		}
		updates = append(updates, publisher.Update(id, q.mantissa, q.expo, now))
	}
	s.mu.RUnlock()

	payload, err := s.pub.Sign(updates...)
	if err != nil {
		return nil, err
	}
	return [][]byte{payload}, nil
}

// Handler returns the HTTP routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LatestPath, s.handleLatest)
	mux.HandleFunc(StreamPath, s.handleStream)
	return mux
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ids []oracle.FeedID
	for _, raw := range r.URL.Query()["ids[]"] {
		id, err := oracle.ParseFeedID(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}

	batch, err := s.Payloads(ids)
	switch {
	case errors.Is(err, ErrUnknownFeed):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := EncodePayloads(batch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var sub StreamMessage
	if err := conn.ReadJSON(&sub); err != nil || sub.Type != MsgSubscribe {
		_ = conn.WriteJSON(StreamMessage{Type: MsgError, Error: "expected subscribe message"})
		return
	}
	if _, err := s.Payloads(sub.IDs); err != nil {
		_ = conn.WriteJSON(StreamMessage{Type: MsgError, Error: err.Error()})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logger := s.log.WithFields(logrus.Fields{"remote": r.RemoteAddr, "feeds": len(sub.IDs)})
	logger.Debug("Stream subscriber connected")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.push(conn, sub.IDs); err != nil {
			logger.WithError(err).Debug("Stream subscriber dropped")
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) push(conn *websocket.Conn, ids []oracle.FeedID) error {
	batch, err := s.Payloads(ids)
	if err != nil {
		return conn.WriteJSON(StreamMessage{Type: MsgError, Error: err.Error()})
	}
	msg := StreamMessage{Type: MsgPriceUpdate, Payloads: make([]string, len(batch))}
	for i, p := range batch {
		msg.Payloads[i] = base64.StdEncoding.EncodeToString(p)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}
