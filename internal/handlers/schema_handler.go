package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"agentdb/internal/models"
	"agentdb/internal/responses"
	"agentdb/internal/services"
)

type SchemaHandler struct {
	schemaService   *services.SchemaService
	metadataService *services.MetadataService
}

func NewSchemaHandler(schemaService *services.SchemaService, metadataService *services.MetadataService) *SchemaHandler {
	return &SchemaHandler{
		schemaService:   schemaService,
		metadataService: metadataService,
	}
}

// Introspect handles GET /api/v1/agents/:agent_id/schema/introspect
func (h *SchemaHandler) Introspect(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	snap, err := h.schemaService.FetchSchema(c.Request.Context(), agentID)
	if err != nil {
		responses.Error(c, err, "Failed to introspect external database")
		return
	}

	responses.Success(c, http.StatusOK, snap, "")
}

// Sync handles POST /api/v1/agents/:agent_id/schema/sync
func (h *SchemaHandler) Sync(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	summary, err := h.schemaService.Sync(c.Request.Context(), agentID)
	if err != nil {
		responses.Error(c, err, "Failed to sync schema")
		return
	}

	responses.Success(c, http.StatusOK, summary, "Schema synced successfully")
}

// Import handles POST /api/v1/agents/:agent_id/schema/import
func (h *SchemaHandler) Import(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	var doc models.SchemaSnapshot
	if err := c.ShouldBindJSON(&doc); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid schema document")
		return
	}

	summary, err := h.schemaService.ImportFromDocument(c.Request.Context(), agentID, &doc)
	if err != nil {
		responses.Error(c, err, "Failed to import schema")
		return
	}

	responses.Success(c, http.StatusOK, summary, "Schema imported successfully")
}

// GetSchema handles GET /api/v1/agents/:agent_id/schema
func (h *SchemaHandler) GetSchema(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	schema, err := h.metadataService.EnrichedSchema(c.Request.Context(), agentID)
	if err != nil {
		responses.Error(c, err, "Failed to load schema")
		return
	}

	responses.Success(c, http.StatusOK, schema, "")
}

// VisualizeSchema handles GET /api/v1/agents/:agent_id/schema/visualize
func (h *SchemaHandler) VisualizeSchema(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	diagram, err := h.metadataService.Diagram(c.Request.Context(), agentID)
	if err != nil {
		responses.Error(c, err, "Failed to visualize schema")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{
		"mermaid": diagram,
	}, "Schema visualization generated successfully")
}

// PatchTable handles PATCH /api/v1/agents/:agent_id/tables/:table_id
func (h *SchemaHandler) PatchTable(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}
	tableID, ok := pathUUID(c, "table_id")
	if !ok {
		return
	}

	var patch models.TableMetadataPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	table, err := h.metadataService.PatchTable(c.Request.Context(), agentID, tableID, patch)
	if err != nil {
		responses.Error(c, err, "Failed to update table")
		return
	}

	responses.Success(c, http.StatusOK, table, "Table updated successfully")
}

// PatchColumn handles PATCH /api/v1/agents/:agent_id/columns/:column_id
func (h *SchemaHandler) PatchColumn(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}
	columnID, ok := pathUUID(c, "column_id")
	if !ok {
		return
	}

	var patch models.ColumnMetadataPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	column, err := h.metadataService.PatchColumn(c.Request.Context(), agentID, columnID, patch)
	if err != nil {
		responses.Error(c, err, "Failed to update column")
		return
	}

	responses.Success(c, http.StatusOK, column, "Column updated successfully")
}

// GetAuditTrail handles GET /api/v1/agents/:agent_id/schema/audit
func (h *SchemaHandler) GetAuditTrail(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	events, err := h.metadataService.AuditTrail(c.Request.Context(), agentID, limit)
	if err != nil {
		responses.Error(c, err, "Failed to load audit events")
		return
	}

	responses.Success(c, http.StatusOK, events, "")
}
