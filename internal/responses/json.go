package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentdb/internal/external"
	"agentdb/internal/services"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func Success(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func Fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// Error picks the status code for a service error and writes the failure envelope.
func Error(c *gin.Context, err error, message string) {
	_ = c.Error(err)
	Fail(c, StatusFor(err), err, message)
}

func StatusFor(err error) int {
	var (
		connErr  *external.ConnectionError
		queryErr *external.QueryError
	)
	switch {
	case errors.Is(err, services.ErrCredentialsNotFound),
		errors.Is(err, services.ErrTableNotFound),
		errors.Is(err, services.ErrColumnNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnsupportedDialect),
		errors.Is(err, services.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &queryErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
