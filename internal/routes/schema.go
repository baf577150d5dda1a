package routes

import (
	"github.com/gin-gonic/gin"

	"agentdb/internal/handlers"
)

type SchemaRoutes struct {
	handler *handlers.SchemaHandler
}

func NewSchemaRoutes(handler *handlers.SchemaHandler) *SchemaRoutes {
	return &SchemaRoutes{handler: handler}
}

func (r *SchemaRoutes) RegisterRoutes(router *gin.RouterGroup) {
	schema := router.Group("/schema")
	{
		schema.GET("", r.handler.GetSchema)
		schema.GET("/introspect", r.handler.Introspect)
		schema.GET("/visualize", r.handler.VisualizeSchema)
		schema.GET("/audit", r.handler.GetAuditTrail)
		schema.POST("/sync", r.handler.Sync)
		schema.POST("/import", r.handler.Import)
	}

	// operator curation
	router.PATCH("/tables/:table_id", r.handler.PatchTable)
	router.PATCH("/columns/:column_id", r.handler.PatchColumn)
}
