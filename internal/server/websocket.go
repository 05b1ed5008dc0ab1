package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quickTrade/internal/events"
	"quickTrade/internal/ports"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by the outer middleware
		return true
	},
}

// outboundMessage is the wire frame for every event delivered on the channel.
type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// handleWebSocket upgrades the connection and bridges the event bus onto it.
// The subscription is scoped to the authenticated principal: price changes
// reach everyone, trade and balance events only their owner (or admins).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, principal ports.Principal) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	sub := s.bus.Subscribe(principal.UserID, principal.IsAdmin, sendBufferSize)
	s.logger.Info(r.Context(), "WebSocket client connected", map[string]interface{}{
		"userID":      principal.UserID,
		"admin":       principal.IsAdmin,
		"subscribers": s.bus.SubscriberCount(),
	})

	go s.writePump(conn, sub)
	go s.readPump(conn, sub, principal.UserID)
}

// writePump forwards bus events to the connection until the subscription
// closes or a write fails.
func (s *Server) writePump(conn *websocket.Conn, sub *events.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(outboundMessage{Type: event.Type, Data: event.Data})
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

// readPump drains inbound frames to keep connection control working and
// unsubscribes when the peer goes away. Clients send nothing meaningful;
// subscription scope is fixed at connect time by the principal.
func (s *Server) readPump(conn *websocket.Conn, sub *events.Subscription, userID string) {
	defer func() {
		s.bus.Unsubscribe(sub)
		conn.Close()
		s.logger.Info(context.Background(), "WebSocket client disconnected", map[string]interface{}{
			"userID":      userID,
			"subscribers": s.bus.SubscriberCount(),
		})
	}()

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
