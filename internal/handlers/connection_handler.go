package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentdb/internal/responses"
	"agentdb/internal/services"
)

type ConnectionHandler struct {
	connectionService *services.ConnectionService
}

func NewConnectionHandler(connectionService *services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{
		connectionService: connectionService,
	}
}

// SaveConnection handles PUT /api/v1/agents/:agent_id/connection
func (h *ConnectionHandler) SaveConnection(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	var req services.SaveCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	cred, err := h.connectionService.SaveCredential(c.Request.Context(), agentID, &req)
	if err != nil {
		responses.Error(c, err, "Failed to save connection")
		return
	}

	responses.Success(c, http.StatusOK, cred, "Connection saved successfully")
}

// GetConnection handles GET /api/v1/agents/:agent_id/connection
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	cred, err := h.connectionService.GetCredential(c.Request.Context(), agentID)
	if err != nil {
		responses.Error(c, err, "Failed to load connection")
		return
	}

	responses.Success(c, http.StatusOK, cred, "")
}

// DeleteConnection handles DELETE /api/v1/agents/:agent_id/connection
func (h *ConnectionHandler) DeleteConnection(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	if err := h.connectionService.DeleteCredential(c.Request.Context(), agentID); err != nil {
		responses.Error(c, err, "Failed to delete connection")
		return
	}

	responses.Success(c, http.StatusOK, nil, "Connection deleted successfully")
}

// TestConnection handles POST /api/v1/agents/:agent_id/connection/test
func (h *ConnectionHandler) TestConnection(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	result, err := h.connectionService.TestConnection(c.Request.Context(), agentID)
	if err != nil {
		responses.Error(c, err, "Failed to test connection")
		return
	}

	responses.Success(c, http.StatusOK, result, result.Message)
}
