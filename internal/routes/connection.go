package routes

import (
	"github.com/gin-gonic/gin"

	"agentdb/internal/handlers"
)

type ConnectionRoutes struct {
	handler *handlers.ConnectionHandler
}

func NewConnectionRoutes(handler *handlers.ConnectionHandler) *ConnectionRoutes {
	return &ConnectionRoutes{handler: handler}
}

func (r *ConnectionRoutes) RegisterRoutes(router *gin.RouterGroup) {
	conn := router.Group("/connection")
	{
		conn.PUT("", r.handler.SaveConnection)
		conn.GET("", r.handler.GetConnection)
		conn.DELETE("", r.handler.DeleteConnection)
		conn.POST("/test", r.handler.TestConnection)
	}
}
