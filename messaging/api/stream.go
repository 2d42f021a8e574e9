package api

import (
	"io"

	"whatsmoney/backend/messaging/delivery"
	"whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Stream handles GET /chat/stream?with=<id> as Server-Sent Events. The
// first frame is a connected event; message frames follow as the delivery
// channel observes them. Client disconnect cancels the request context,
// which tears the subscription down before the handler returns.
func (h *ChatHandler) Stream(c *gin.Context) {
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

	ctx := c.Request.Context()
	events := make(chan delivery.Event, 32)

	stop, err := h.channel.Subscribe(ctx, actor, withUser, func(ev delivery.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		c.Error(err)
		return
	}
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			if ev.Message != nil {
				c.SSEvent(ev.Type, ev.Message)
			} else {
				c.SSEvent(ev.Type, gin.H{"type": ev.Type})
			}
			return true
		case <-ctx.Done():
			return false
		}
	})
}
