// Package feed streams public relay events to websocket clients.
package feed

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Hub fans relay events out to every connected subscriber.
type Hub struct {
	upgrader *websocket.Upgrader
	logger   zerolog.Logger

	// Owned by Run.
	subscribers map[*subscriber]struct{}

	// Encoded events waiting to be fanned out.
	events chan []byte

	join chan *subscriber
	part chan *subscriber

	// Closed when Run returns.
	done chan struct{}

	count atomic.Int32
}

// NewHub creates a hub. Events beyond queueSize pending ones are dropped.
func NewHub(logger zerolog.Logger, upgrader *websocket.Upgrader, queueSize int) *Hub {
	return &Hub{
		upgrader:    upgrader,
		logger:      logger.With().Str("component", "feed").Logger(),
		subscribers: make(map[*subscriber]struct{}),
		events:      make(chan []byte, queueSize),
		join:        make(chan *subscriber),
		part:        make(chan *subscriber),
		done:        make(chan struct{}),
	}
}

// Broadcast encodes ev once and queues it for every subscriber. It never
// blocks.
func (h *Hub) Broadcast(ev Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("encode event")
		return
	}
	select {
	case h.events <- frame:
	default:
		h.logger.Debug().Str("type", ev.Type).Msg("feed queue full, event dropped")
	}
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Run serves the hub until ctx is done, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for s := range h.subscribers {
				h.release(s)
			}
			return

		case s := <-h.join:
			h.subscribers[s] = struct{}{}
			h.count.Inc()

		case s := <-h.part:
			if _, ok := h.subscribers[s]; ok {
				h.release(s)
			}

		case frame := <-h.events:
			for s := range h.subscribers {
				select {
				case s.frames <- frame:
				default:
					// Slow subscriber; it misses this event.
				}
			}
		}
	}
}

// release forgets s and closes its queue, which makes deliver send a close
// frame.
func (h *Hub) release(s *subscriber) {
	delete(h.subscribers, s)
	h.count.Dec()
	close(s.frames)
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade refused")
		return
	}

	s := newSubscriber(h, conn)
	select {
	case h.join <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.watch()
	go s.deliver()
}

func (h *Hub) leave(s *subscriber) {
	select {
	case h.part <- s:
	case <-h.done:
	}
}

// OriginChecker accepts requests without an Origin header and those whose
// origin is listed. "*" accepts any origin.
func OriginChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
