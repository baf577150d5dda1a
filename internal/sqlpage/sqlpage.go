// Package sqlpage enforces operator-declared row limits when paging or exporting SQL results.
package sqlpage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"agentdb/internal/models"
)

// Unlimited is the declared limit of a statement without a trailing LIMIT clause.
const Unlimited int64 = math.MaxInt64

// Matches a trailing "LIMIT n", "LIMIT n OFFSET m" or MySQL "LIMIT m, n".
var trailingLimit = regexp.MustCompile(`(?is)\s+LIMIT\s+(\d+)(?:\s*,\s*(\d+)|\s+OFFSET\s+(\d+))?\s*;?\s*$`)

// ErrInvalidLimit reports a declared LIMIT or OFFSET that does not fit in an int64 row range.
var ErrInvalidLimit = errors.New("declared LIMIT/OFFSET out of range")

type LimitClause struct {
	CleanSQL  string
	HasLimit  bool
	Limit     int64
	HasOffset bool
	Offset    int64
}

// ParseLimitOffset strips a trailing limit clause. Only the end of the statement is inspected.
// Offset+Limit of the result always fits in an int64.
func ParseLimitOffset(sql string) (LimitClause, error) {
	trimmed := trimStatement(sql)

	m := trailingLimit.FindStringSubmatchIndex(trimmed)
	if m == nil {
		return LimitClause{CleanSQL: trimmed, Limit: Unlimited}, nil
	}

	var parseErr error
	group := func(i int) (int64, bool) {
		if m[2*i] < 0 {
			return 0, false
		}
		raw := trimmed[m[2*i]:m[2*i+1]]
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("%w: %s", ErrInvalidLimit, raw)
		}
		return n, true
	}

	lc := LimitClause{
		CleanSQL: strings.TrimSpace(trimmed[:m[0]]),
		HasLimit: true,
	}

	first, _ := group(1)
	if count, ok := group(2); ok {
		// LIMIT offset, count
		lc.Offset, lc.HasOffset = first, true
		lc.Limit = count
	} else {
		lc.Limit = first
		lc.Offset, lc.HasOffset = group(3)
	}

	if parseErr != nil {
		return LimitClause{}, parseErr
	}
	if lc.Offset > Unlimited-lc.Limit {
		return LimitClause{}, fmt.Errorf("%w: LIMIT %d OFFSET %d", ErrInvalidLimit, lc.Limit, lc.Offset)
	}
	return lc, nil
}

func trimStatement(sql string) string {
	s := strings.TrimSpace(sql)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// Window is the row range actually fetched for one page.
// Offset is relative to the first row the operator's statement would return.
type Window struct {
	SQL    string
	Limit  int64
	Offset int64
}

// AddPagination rewrites sql to fetch pageSize rows starting at offset, without ever reading
// past a declared limit.
func AddPagination(sql string, pageSize, offset int64) (Window, error) {
	lc, err := ParseLimitOffset(sql)
	if err != nil {
		return Window{}, err
	}
	if pageSize < 0 {
		pageSize = 0
	}
	if offset < 0 {
		offset = 0
	}

	effOffset := min(offset, lc.Limit)
	effLimit := min(pageSize, lc.Limit-effOffset)

	return Window{
		SQL:    BuildChunk(lc.CleanSQL, effLimit, lc.Offset+effOffset),
		Limit:  effLimit,
		Offset: effOffset,
	}, nil
}

// BuildChunk appends a LIMIT/OFFSET pair understood by both PostgreSQL and MySQL.
func BuildChunk(cleanSQL string, limit, offset int64) string {
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", cleanSQL, limit, offset)
}

// Reachable clamps a raw row count of the clean statement to what the declared clause allows.
func (lc LimitClause) Reachable(count int64) int64 {
	count = max(count-lc.Offset, 0)
	return min(count, lc.Limit)
}

// Executor runs a statement against the external database.
type Executor interface {
	Execute(ctx context.Context, sql string, args ...any) (*models.QueryResult, error)
}

// TotalCount returns the number of rows reachable through pagination of sql.
func TotalCount(ctx context.Context, exec Executor, sql string) (int64, error) {
	lc, err := ParseLimitOffset(sql)
	if err != nil {
		return 0, err
	}

	res, err := exec.Execute(ctx, CountSQL(lc.CleanSQL))
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Columns) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}

	count, err := toInt64(res.Rows[0][res.Columns[0]])
	if err != nil {
		return 0, fmt.Errorf("invalid count result: %w", err)
	}
	return lc.Reachable(count), nil
}

func CountSQL(cleanSQL string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS total_count FROM (%s) AS subquery", cleanSQL)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(min(n, uint64(math.MaxInt64))), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// PageToOffset converts a 1-based page number to a row offset.
func PageToOffset(page, pageSize int) int64 {
	if page < 1 {
		page = 1
	}
	return int64(page-1) * int64(pageSize)
}

// ClampPageSize applies configured bounds to a requested page size.
func ClampPageSize(size, def, maxSize int) int {
	if size <= 0 {
		return def
	}
	return min(size, maxSize)
}

// Paginate builds the pagination block returned alongside a page of rows.
func Paginate(page, pageSize int, window Window, total int64) models.Pagination {
	if page < 1 {
		page = 1
	}
	var pages int64
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		Offset:     window.Offset,
		Limit:      window.Limit,
		TotalRows:  total,
		TotalPages: pages,
		HasMore:    window.Offset+window.Limit < total,
	}
}
