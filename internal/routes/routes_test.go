package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agentdb/internal/config"
	"agentdb/internal/external"
	"agentdb/internal/handlers"
	"agentdb/internal/models"
	"agentdb/internal/repositories"
	"agentdb/internal/services"
)

type credStore struct {
	mu    sync.Mutex
	creds map[uuid.UUID]*models.ExternalCredential
}

func (s *credStore) Upsert(_ context.Context, c *models.ExternalCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Prepare()
	cp := *c
	s.creds[c.AgentID] = &cp
	return nil
}

func (s *credStore) GetByAgentID(_ context.Context, id uuid.UUID) (*models.ExternalCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creds[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *credStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.creds[id]
	delete(s.creds, id)
	return ok, nil
}

func (s *credStore) RecordConnectionTest(context.Context, uuid.UUID, bool, time.Time) error {
	return nil
}

type historyStore struct{}

func (historyStore) Create(context.Context, *models.QueryHistory) error { return nil }

func (historyStore) GetByAgentID(context.Context, uuid.UUID, int) ([]models.QueryHistory, error) {
	return []models.QueryHistory{}, nil
}

type codec struct{}

func (codec) Encrypt(s string) (string, error) { return s, nil }

func (codec) Decrypt(s string) (string, error) { return s, nil }

// rowsPool serves a three-row table and rejects anything mentioning "missing". Reads of "flaky"
// return the first two rows and then lose the connection.
type rowsPool struct{}

func (rowsPool) Dialect() string { return models.DialectPostgres }

func (rowsPool) Query(_ context.Context, sql string, _ ...any) (*models.QueryResult, error) {
	if strings.Contains(sql, "missing") {
		return nil, errors.New(`relation "missing" does not exist`)
	}
	if strings.HasPrefix(sql, "SELECT COUNT(*)") {
		return &models.QueryResult{Columns: []string{"total_count"}, Rows: []map[string]any{{"total_count": int64(3)}}, RowCount: 1}, nil
	}
	if strings.Contains(sql, "flaky") {
		if !strings.HasSuffix(sql, "OFFSET 0") {
			return nil, errors.New("connection reset by peer")
		}
		rows := []map[string]any{{"id": int64(1)}, {"id": int64(2)}}
		return &models.QueryResult{Columns: []string{"id"}, Rows: rows, RowCount: len(rows)}, nil
	}
	rows := []map[string]any{{"id": int64(1)}, {"id": int64(2)}, {"id": int64(3)}}
	return &models.QueryResult{Columns: []string{"id"}, Rows: rows, RowCount: len(rows)}, nil
}

func (rowsPool) Ping(context.Context) error { return nil }

func (rowsPool) Close() {}

func newTestRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pools := external.NewPoolManager(codec{}, 0, zap.NewNop())
	pools.SetOpener(models.DialectPostgres, func(context.Context, external.ConnectConfig) (external.Pool, error) {
		return rowsPool{}, nil
	})

	cache := repositories.NoopCache{}
	conns := services.NewConnectionService(&credStore{creds: make(map[uuid.UUID]*models.ExternalCredential)}, codec{}, pools, cache, zap.NewNop())
	paging := config.QueryConfig{ExportChunkSize: 2, DefaultPageSize: 50, MaxPageSize: 100}
	query := services.NewQueryService(conns, pools, historyStore{}, paging, zap.NewNop())

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Connection: handlers.NewConnectionHandler(conns),
		Schema:     handlers.NewSchemaHandler(services.NewSchemaService(conns, pools, nil, cache, nil, zap.NewNop()), nil),
		Query:      handlers.NewQueryHandler(query),
	}, token)
	return router
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

const connectionBody = `{"db_type":"postgresql","host":"db.internal","port":5432,"database_name":"shop","username":"reader","password":"pw"}`

func TestConnectionLifecycle(t *testing.T) {
	r := newTestRouter(t, "")
	base := "/api/v1/agents/" + uuid.NewString()

	w := do(r, http.MethodGet, base+"/connection", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPut, base+"/connection", `{"db_type":"oracle","host":"h","port":1,"database_name":"d","username":"u","password":"p"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, base+"/connection", connectionBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), `"pw"`)

	w = do(r, http.MethodGet, base+"/connection", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cred models.ExternalCredential
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &cred))
	assert.Equal(t, "db.internal", cred.Host)
	assert.Equal(t, models.DefaultPoolSize, cred.PoolSize)

	w = do(r, http.MethodPost, base+"/connection/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res services.ConnectionTestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.True(t, res.Success)

	w = do(r, http.MethodDelete, base+"/connection", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodDelete, base+"/connection", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryEndpoints(t *testing.T) {
	r := newTestRouter(t, "")
	base := "/api/v1/agents/" + uuid.NewString()

	w := do(r, http.MethodPost, base+"/query/execute", `{"query":"SELECT id FROM t"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "no credentials yet")

	require.Equal(t, http.StatusOK, do(r, http.MethodPut, base+"/connection", connectionBody).Code)

	w = do(r, http.MethodPost, base+"/query/execute", `{"query":"SELECT id FROM t","page":1,"page_size":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page models.PagedQueryResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
	assert.Equal(t, int64(3), page.Pagination.TotalRows)
	assert.Len(t, page.Rows, 3)

	w = do(r, http.MethodPost, base+"/query/execute", `{"query":"SELECT * FROM missing"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w).Error, `relation "missing" does not exist`)

	w = do(r, http.MethodPost, base+"/query/execute", `{"query":"DROP TABLE t"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/query/export", `{"query":"SELECT id FROM t","format":"csv"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Equal(t, "id\n1\n2\n3\n", w.Body.String())

	w = do(r, http.MethodPost, base+"/query/export", `{"query":"SELECT id FROM t","format":"xlsx"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())

	w = do(r, http.MethodPost, base+"/query/export", `{"query":"SELECT id FROM flaky","format":"xlsx"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Contains(t, decode(t, w).Error, "connection reset by peer")

	w = do(r, http.MethodPost, base+"/query/export", `{"query":"SELECT id FROM flaky","format":"csv"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "id\n1\n2\n", w.Body.String(), "csv downloads are truncated at the failed chunk")

	w = do(r, http.MethodPost, base+"/query/export", `{"query":"SELECT id FROM t","format":"pdf"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, base+"/query/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, base+"/query/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestValidation(t *testing.T) {
	r := newTestRouter(t, "")

	w := do(r, http.MethodGet, "/api/v1/agents/not-a-uuid/connection", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	base := "/api/v1/agents/" + uuid.NewString()
	w = do(r, http.MethodPatch, base+"/tables/nope", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, base+"/columns/"+uuid.NewString(), `{"sensitivity_override":"extreme"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/schema/import", `{"tables":[{"columns":[]}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "table name is required")
}

func TestAPIToken(t *testing.T) {
	r := newTestRouter(t, "s3cret")
	path := "/api/v1/agents/" + uuid.NewString() + "/connection"

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, path, "", "Authorization", "Bearer s3cret").Code)

	w := do(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
