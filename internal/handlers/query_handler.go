package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agentdb/internal/export"
	"agentdb/internal/responses"
	"agentdb/internal/services"
)

type QueryHandler struct {
	queryService *services.QueryService
}

func NewQueryHandler(queryService *services.QueryService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
	}
}

// ExecuteQuery handles POST /api/v1/agents/:agent_id/query/execute
func (h *QueryHandler) ExecuteQuery(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	var req services.ExecuteQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body: query is required")
		return
	}

	result, err := h.queryService.ExecuteQuery(c.Request.Context(), agentID, &req)
	if err != nil {
		responses.Error(c, err, "Failed to execute query")
		return
	}

	responses.Success(c, http.StatusOK, result, "Query executed successfully")
}

// ExportQuery handles POST /api/v1/agents/:agent_id/query/export. CSV is streamed chunk by
// chunk and a failure after the first flush truncates the download. XLSX is sent only once the
// workbook is complete, so its failures get a JSON error.
func (h *QueryHandler) ExportQuery(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	var req services.ExportQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body: query is required")
		return
	}

	out := &exportResponse{c: c}
	_, err := h.queryService.ExportQuery(c.Request.Context(), agentID, req.Query, func() (export.Sink, error) {
		sink, err := export.NewSink(req.Format, out)
		if err != nil {
			return nil, err
		}
		out.contentType = sink.ContentType()
		out.filename = fmt.Sprintf("export-%s.%s", time.Now().UTC().Format("20060102-150405"), sink.Extension())
		return sink, nil
	})
	if err != nil {
		if out.started {
			_ = c.Error(err)
			return
		}
		responses.Error(c, err, "Failed to export query")
	}
}

// exportResponse sends the download headers with the first byte of the file. Until then the
// handler can still answer with a JSON error.
type exportResponse struct {
	c           *gin.Context
	contentType string
	filename    string
	started     bool
}

func (w *exportResponse) Write(p []byte) (int, error) {
	if !w.started {
		w.c.Header("Content-Type", w.contentType)
		w.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", w.filename))
		w.c.Status(http.StatusOK)
		w.started = true
	}
	return w.c.Writer.Write(p)
}

func (w *exportResponse) Flush() {
	if w.started {
		w.c.Writer.Flush()
	}
}

// GetQueryHistory handles GET /api/v1/agents/:agent_id/query/history
func (h *QueryHandler) GetQueryHistory(c *gin.Context) {
	agentID, ok := agentID(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	history, err := h.queryService.History(c.Request.Context(), agentID, limit)
	if err != nil {
		responses.Error(c, err, "Failed to load query history")
		return
	}

	responses.Success(c, http.StatusOK, history, "")
}
