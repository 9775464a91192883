package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gitlab.com/secp/services/codecollab/cmd/collab-service/internal/gateway"
)

// Constants related to WebSocket settings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024 // code buffers ride on these messages
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Implement proper origin checking in production
	},
}

// ServeWs upgrades the HTTP connection to a WebSocket and runs the
// connection's session against the gateway.
func ServeWs(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	session := gateway.NewSession()
	log.Printf("[handlers] new connection established: %s", session.ID)

	go writePump(conn, session)
	go readPump(conn, session, gw)
}

// readPump reads client messages off the socket and hands them to the
// gateway, one at a time per connection.
func readPump(conn *websocket.Conn, s *gateway.Session, gw *gateway.Gateway) {
	defer func() {
		gw.HandleDisconnect(context.Background(), s)
		close(s.Send)
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[handlers] session %s read error: %v", s.ID, err)
			}
			break
		}
		gw.HandleMessage(context.Background(), s, message)
	}
}

// writePump forwards envelopes from the session's send channel to the socket
// and keeps the connection alive with pings.
func writePump(conn *websocket.Conn, s *gateway.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
