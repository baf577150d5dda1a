package external

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"agentdb/internal/models"
)

type mysqlPool struct {
	db *sql.DB
}

func openMySQL(_ context.Context, cc ConnectConfig) (Pool, error) {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = cc.Host + ":" + strconv.Itoa(cc.Port)
	cfg.User = cc.Username
	cfg.Passwd = cc.Password
	cfg.DBName = cc.Database
	cfg.Timeout = cc.ConnectTimeout
	cfg.ParseTime = true
	if cc.TLS != nil {
		cfg.TLS = cc.TLS
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cc.PoolSize)
	db.SetMaxIdleConns(cc.PoolSize)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &mysqlPool{db: db}, nil
}

func (p *mysqlPool) Dialect() string { return models.DialectMySQL }

func (p *mysqlPool) Query(ctx context.Context, query string, args ...any) (*models.QueryResult, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
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

func (p *mysqlPool) Ping(ctx context.Context) error {
	_, err := p.Query(ctx, "SELECT 1")
	return err
}

func (p *mysqlPool) Close() { _ = p.db.Close() }
