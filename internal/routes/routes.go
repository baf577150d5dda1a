package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentdb/internal/handlers"
	"agentdb/internal/middlewares"
)

type Handlers struct {
	Connection *handlers.ConnectionHandler
	Schema     *handlers.SchemaHandler
	Query      *handlers.QueryHandler
}

func RegisterRoutes(router *gin.Engine, h Handlers, apiToken string) {
	api := router.Group("/api/v1")
	api.Use(middlewares.Authenticate(apiToken))

	agent := api.Group("/agents/:agent_id")
	agent.Use(middlewares.RequireAgent)

	NewConnectionRoutes(h.Connection).RegisterRoutes(agent)
	NewSchemaRoutes(h.Schema).RegisterRoutes(agent)
	NewQueryRoutes(h.Query).RegisterRoutes(agent)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
