package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"beacon/presence-service/services"
	"beacon/presence-service/utils"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler upgrades clients to a WebSocket and relays the presence and
// typing change feeds from Redis pub/sub. The socket is a read feed: inbound
// frames are drained only to detect the close.
type WSHandler struct {
	redis    *redis.Client
	logger   *utils.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(redisClient *redis.Client, logger *utils.Logger) *WSHandler {
	return &WSHandler{
		redis:  redisClient,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	pubsub := h.redis.Subscribe(ctx, services.PresenceEventsChannel, services.TypingEventsChannel)
	defer pubsub.Close()

	// Drain inbound frames; a read error means the client went away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
