package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agentdb/internal/models"
)

type postgresPool struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, cc ConnectConfig) (Pool, error) {
	sslMode := "disable"
	if cc.TLS != nil {
		sslMode = "require"
	}

	dsn := (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cc.Username, cc.Password),
		Host:     cc.Host + ":" + strconv.Itoa(cc.Port),
		Path:     "/" + cc.Database,
		RawQuery: "sslmode=" + sslMode,
	}).String()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	cfg.MaxConns = int32(cc.PoolSize)
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.ConnectTimeout = cc.ConnectTimeout
	if cc.TLS != nil {
		cfg.ConnConfig.TLSConfig = cc.TLS
		cfg.ConnConfig.Fallbacks = nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &postgresPool{pool: pool}, nil
}

func (p *postgresPool) Dialect() string { return models.DialectPostgres }

func (p *postgresPool) Query(ctx context.Context, sql string, args ...any) (*models.QueryResult, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	resultRows := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func (p *postgresPool) Ping(ctx context.Context) error {
	_, err := p.Query(ctx, "SELECT 1")
	return err
}

func (p *postgresPool) Close() { p.pool.Close() }
