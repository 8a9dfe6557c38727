package api

import (
	"context"
	"net/http"
	"time"

	"github.com/chis/embedlab/internal/events"
	"github.com/chis/embedlab/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = (eventsPongWait * 9) / 10
	eventsBuffer     = 32
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The embed page is usually framed by another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSessionEvents handles GET /api/sessions/{id}/events. Each active-file
// change of the session is sent as a JSON text message until the client
// disconnects or the session is closed.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	// Subscribe before the handshake so no change after it is missed.
	eventChan, unsubscribe := sess.SubscribeChan(eventsBuffer)
	defer unsubscribe()

	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.WarnContext(r.Context(), "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = logging.WithSessionID(ctx, sess.ID)

	logging.DebugContext(ctx, "Event stream connected")

	conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	// Reader: the stream is one-way, reads only detect disconnects and pongs.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.DebugContext(ctx, "Event stream disconnected")
			return
		case <-sess.Done():
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				logging.ErrorContext(ctx, "Error marshaling event: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
