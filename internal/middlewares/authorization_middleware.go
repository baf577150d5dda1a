package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const AgentIDKey = "agentId"

// RequireAgent parses the :agent_id path parameter and stores it in the context for handlers.
func RequireAgent(c *gin.Context) {
	raw := c.Param("agent_id")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Agent id is required"})
		return
	}

	agentID, err := uuid.Parse(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid agent ID format"})
		return
	}

	c.Set(AgentIDKey, agentID)
	c.Next()
}
