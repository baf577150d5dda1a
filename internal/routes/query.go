package routes

import (
	"github.com/gin-gonic/gin"

	"agentdb/internal/handlers"
)

type QueryRoutes struct {
	handler *handlers.QueryHandler
}

func NewQueryRoutes(handler *handlers.QueryHandler) *QueryRoutes {
	return &QueryRoutes{handler: handler}
}

func (r *QueryRoutes) RegisterRoutes(router *gin.RouterGroup) {
	query := router.Group("/query")
	{
		query.POST("/execute", r.handler.ExecuteQuery)
		query.POST("/export", r.handler.ExportQuery)
		query.GET("/history", r.handler.GetQueryHistory)
	}
}
