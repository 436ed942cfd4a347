package handlers

import (
	"net/http"
	"strings"
	"time"

	"intentrouter/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// WebSocketHandler streams deposit lifecycle events to clients.
type WebSocketHandler struct {
	push     *services.PushService
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(push *services.PushService) *WebSocketHandler {
	return &WebSocketHandler{
		push: push,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWebSocket upgrades the connection and streams events for one user.
// GET /ws/deposits?user=0x..
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	user := c.Query("user")
	if user != "" && !common.IsHexAddress(user) {
		respondWithError(c, http.StatusBadRequest, "invalid_address", "invalid user address", user)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub := h.push.Subscribe(strings.ToLower(user))

	// Reader drains client frames until the peer goes away.
	go func() {
		defer h.push.Unsubscribe(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.push.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.push.Unsubscribe(sub)
				return
			}
		}
	}
}
