package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"agentdb/internal/middlewares"
	"agentdb/internal/responses"
)

// agentID returns the agent resolved by middlewares.RequireAgent. It writes the failure
// response itself.
func agentID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(middlewares.AgentIDKey)
	if !exists {
		responses.Fail(c, http.StatusBadRequest, nil, "Agent id is required")
		return uuid.Nil, false
	}
	id, err := toUUID(v)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid agent ID format")
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, fmt.Sprintf("Invalid %s format", name))
		return uuid.Nil, false
	}
	return id, true
}

func toUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case string:
		return uuid.Parse(id)
	default:
		return uuid.Nil, fmt.Errorf("invalid id type: %T", v)
	}
}
