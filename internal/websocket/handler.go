package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tutorhub/internal/config"
	"tutorhub/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is left to the deployment's proxy layer.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to websocket connections and pumps their
// frames into the relay. Connections start unbound; they gain a session and
// identity only through a join event.
type Handler struct {
	relay *relay.Relay
	cfg   *config.WebSocketConfig
}

// NewHandler creates a websocket handler.
func NewHandler(r *relay.Relay, cfg *config.WebSocketConfig) *Handler {
	return &Handler{relay: r, cfg: cfg}
}

// HandleWebSocket upgrades the request and runs the connection until it
// drops. The disconnect is reported to the relay exactly once, from the read
// pump's exit path.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	h.relay.Attach(wsConn)

	go h.handleConnection(wsConn)
}

// handleConnection runs heartbeat monitoring and the read pump.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.relay.Disconnect(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.relay.HandleFrame(conn, data); err != nil {
			log.Printf("Dropping frame: %v", err)
		}
	}
}
