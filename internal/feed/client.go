// client.go - One websocket subscriber of the event feed.
package feed

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
	// idleTimeout is how long a subscriber may go without answering a ping.
	idleTimeout = 60 * time.Second
	pingEvery   = idleTimeout * 9 / 10

	// Subscribers only send control frames.
	readLimit = 512

	// frameQueue is the number of events buffered per subscriber before
	// further events are dropped for it.
	frameQueue = 32
)

// subscriber owns one upgraded connection. The hub owns frames and closes
// it to disconnect the subscriber.
type subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	frames chan []byte
}

func newSubscriber(h *Hub, conn *websocket.Conn) *subscriber {
	return &subscriber{hub: h, conn: conn, frames: make(chan []byte, frameQueue)}
}

// watch keeps reading so pongs extend the deadline. A data frame or a
// silent peer ends the subscription.
func (s *subscriber) watch() {
	defer s.hub.leave(s)

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	// Control frames are handled inside NextReader, so it only returns once
	// the peer sends data or the connection ends.
	if _, _, err := s.conn.NextReader(); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			s.hub.logger.Debug().Err(err).Msg("subscriber read")
		}
		return
	}
	s.hub.logger.Debug().Msg("subscriber sent data, disconnecting")
}

// deliver is the only writer on the connection. It sends queued frames and
// keepalive pings, and a close frame once the hub lets go of the subscriber.
func (s *subscriber) deliver() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.hub.leave(s)
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.frames:
			deadline := time.Now().Add(writeTimeout)
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
				s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			s.conn.SetWriteDeadline(deadline)
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.logger.Debug().Err(err).Msg("subscriber write")
				return
			}

		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
