package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/teemow/drivemanager/internal/events"
	"github.com/teemow/drivemanager/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// handleEvents upgrades to a websocket and forwards every published event
// until the page goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.events == nil {
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", logging.Err(err))
		return
	}

	clientID := uuid.NewString()
	logger := s.logger.With(slog.String("client_id", clientID))
	sub := s.events.Subscribe()
	logger.Debug("events client connected", slog.Int("clients", s.events.Count()))

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, sub, done)

	s.events.Unsubscribe(sub)
	_ = conn.Close()
	logger.Debug("events client disconnected")
}

// readPump drains control frames and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub <-chan events.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case ev, ok := <-sub:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := events.MarshalEvent(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
