package api

import (
	"whatsmoney/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes mounts the chat endpoints under the given group.
// Every route requires a verified actor identity.
func RegisterChatRoutes(group *gin.RouterGroup, handler *ChatHandler, jwtService *jwt.Service) {
	chat := group.Group("/chat")
	chat.Use(jwt.AuthMiddleware(jwtService))
	{
		chat.POST("/send", handler.Send)
		chat.GET("/messages", handler.History)
		chat.GET("/conversations", handler.Conversations)
		chat.POST("/read", handler.Read)
		chat.POST("/read-all", handler.ReadAll)
		chat.GET("/stream", handler.Stream)
		chat.GET("/ws", handler.WebSocket)
	}
}
