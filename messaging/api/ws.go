package api

import (
	"context"
	"net/http"

	"whatsmoney/backend/messaging/delivery"
	"whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/jwt"
	"whatsmoney/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS layer
		return true
	},
}

// WebSocket handles GET /chat/ws?with=<id>, the socket variant of Stream.
// Events are written as JSON frames from the subscription goroutine; the
// read pump exists only to detect the peer closing the connection.
func (h *ChatHandler) WebSocket(c *gin.Context) {
	actor, ok := jwt.ActorID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("missing actor identity"))
		return
	}

	withUser, err := parseUserParam(c.Query("with"))
	if err != nil {
		c.Error(err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response
		return
	}
	defer conn.Close()

	log := logger.FromContext(c)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stop, err := h.channel.Subscribe(ctx, actor, withUser, func(ev delivery.Event) {
		if err := conn.WriteJSON(ev); err != nil {
			cancel()
		}
	})
	if err != nil {
		log.LogError(err, "websocket subscription rejected")
		return
	}
	defer stop()

	// Read pump: drain and detect close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	<-ctx.Done()
}
