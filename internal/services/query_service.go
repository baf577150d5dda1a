package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agentdb/internal/config"
	"agentdb/internal/export"
	"agentdb/internal/external"
	"agentdb/internal/models"
	"agentdb/internal/sqlpage"
	"agentdb/internal/utils"
)

type QueryHistoryStore interface {
	Create(ctx context.Context, h *models.QueryHistory) error
	GetByAgentID(ctx context.Context, agentID uuid.UUID, limit int) ([]models.QueryHistory, error)
}

type QueryService struct {
	conns    PoolResolver
	pools    PoolProvider
	history  QueryHistoryStore
	streamer *export.Streamer
	paging   config.QueryConfig
	log      *zap.Logger
}

func NewQueryService(conns PoolResolver, pools PoolProvider, history QueryHistoryStore, paging config.QueryConfig, log *zap.Logger) *QueryService {
	return &QueryService{
		conns:    conns,
		pools:    pools,
		history:  history,
		streamer: export.NewStreamer(paging.ExportChunkSize, log),
		paging:   paging,
		log:      log,
	}
}

type ExecuteQueryRequest struct {
	Query    string `json:"query" binding:"required"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type ExportQueryRequest struct {
	Query  string `json:"query" binding:"required"`
	Format string `json:"format" binding:"omitempty,oneof=xlsx csv"`
}

var readStatement = regexp.MustCompile(`^(SELECT|WITH|VALUES|TABLE)\b`)

// ValidateSQLQuery accepts a single read statement. Paginated queries are wrapped in a COUNT
// subquery and re-issued with LIMIT/OFFSET, which only makes sense for row-returning statements.
func ValidateSQLQuery(query string) error {
	statements := splitStatements(query)

	if len(statements) == 0 {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if len(statements) > 1 {
		return fmt.Errorf("%w: multiple statements are not allowed", ErrInvalidQuery)
	}

	if !readStatement.MatchString(strings.ToUpper(statements[0])) {
		return fmt.Errorf("%w: only SELECT statements can be paginated or exported", ErrInvalidQuery)
	}
	if _, err := sqlpage.ParseLimitOffset(query); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}

// splitStatements drops comments and splits query on semicolons. Quoted strings and
// identifiers ('...', "...", `...`) are copied verbatim; a doubled quote stays inside the literal.
// Backslash escapes and PostgreSQL dollar quoting are not recognized.
func splitStatements(query string) []string {
	var (
		statements []string
		cur        strings.Builder
		quote      byte
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			statements = append(statements, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(query) && query[i+1] == '-':
			for i+1 < len(query) && query[i+1] != '\n' {
				i++
			}
			cur.WriteByte(' ')
		case ch == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query)
			} else {
				i += end + 3
			}
			cur.WriteByte(' ')
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return statements
}

// ExecuteQuery runs one page of query against the agent's external database. A LIMIT declared
// in the query caps both the page window and the reported total.
func (s *QueryService) ExecuteQuery(ctx context.Context, agentID uuid.UUID, req *ExecuteQueryRequest) (*models.PagedQueryResult, error) {
	start := time.Now()

	if err := ValidateSQLQuery(req.Query); err != nil {
		return nil, err
	}

	cred, pool, err := s.conns.Pool(ctx, agentID)
	if err != nil {
		return nil, err
	}
	exec := poolQuerier{pools: s.pools, pool: pool}

	pageSize := sqlpage.ClampPageSize(req.PageSize, s.paging.DefaultPageSize, s.paging.MaxPageSize)
	page := max(req.Page, 1)

	total, err := sqlpage.TotalCount(ctx, exec, req.Query)
	if err != nil {
		s.recordHistory(ctx, agentID, req.Query, start, nil, err)
		return nil, err
	}

	window, err := sqlpage.AddPagination(req.Query, int64(pageSize), sqlpage.PageToOffset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	res, err := exec.Execute(ctx, window.SQL)
	if err != nil {
		s.recordHistory(ctx, agentID, req.Query, start, nil, err)
		return nil, err
	}

	s.recordHistory(ctx, agentID, req.Query, start, res, nil)
	s.log.Debug("query page executed",
		zap.String("agent_id", agentID.String()),
		zap.String("dialect", cred.Dialect),
		zap.String("sql", utils.TruncateSQL(window.SQL)),
		zap.Int("rows", res.RowCount),
		zap.Int64("total", total))

	return &models.PagedQueryResult{
		QueryResult: res,
		Pagination:  sqlpage.Paginate(page, pageSize, window, total),
	}, nil
}

// ExportQuery streams every row reachable through query to the sink returned by open. open is
// called only once the row count is known. A failed export aborts the sink instead of closing
// it, so an xlsx workbook is never finished with rows missing.
func (s *QueryService) ExportQuery(ctx context.Context, agentID uuid.UUID, query string, open func() (export.Sink, error)) (export.Stats, error) {
	start := time.Now()

	if err := ValidateSQLQuery(query); err != nil {
		return export.Stats{}, err
	}

	_, pool, err := s.conns.Pool(ctx, agentID)
	if err != nil {
		return export.Stats{}, err
	}
	exec := poolQuerier{pools: s.pools, pool: pool}

	total, err := sqlpage.TotalCount(ctx, exec, query)
	if err != nil {
		return export.Stats{}, err
	}

	sink, err := open()
	if err != nil {
		return export.Stats{}, err
	}

	stats, err := s.streamer.Stream(ctx, sink, exec, query, total)
	if err != nil {
		if abortErr := sink.Abort(); abortErr != nil {
			s.log.Warn("failed to abort export", zap.String("agent_id", agentID.String()), zap.Error(abortErr))
		}
	} else if closeErr := sink.Close(); closeErr != nil {
		err = fmt.Errorf("failed to finish export: %w", closeErr)
	}

	s.log.Info("query exported",
		zap.String("agent_id", agentID.String()),
		zap.String("format", sink.Extension()),
		zap.Int64("rows", stats.Rows),
		zap.Int("chunks", stats.Chunks),
		zap.Int64("total", total),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return stats, err
}

func (s *QueryService) History(ctx context.Context, agentID uuid.UUID, limit int) ([]models.QueryHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	history, err := s.history.GetByAgentID(ctx, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load query history: %w", err)
	}
	return history, nil
}

func (s *QueryService) recordHistory(ctx context.Context, agentID uuid.UUID, query string, start time.Time, res *models.QueryResult, queryErr error) {
	success := queryErr == nil
	elapsed := int(time.Since(start).Milliseconds())
	h := &models.QueryHistory{
		AgentID:         agentID,
		QueryText:       query,
		Success:         &success,
		ExecutionTimeMs: &elapsed,
	}
	if res != nil {
		h.RowCount = &res.RowCount
	}
	if queryErr != nil {
		msg := queryErr.Error()
		var qe *external.QueryError
		if errors.As(queryErr, &qe) {
			msg = qe.Err.Error()
		}
		h.ErrorMessage = &msg
	}
	h.Prepare()

	if err := s.history.Create(ctx, h); err != nil {
		s.log.Warn("failed to record query history", zap.String("agent_id", agentID.String()), zap.Error(err))
	}
}
