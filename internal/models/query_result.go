package models

// QueryResult is a materialized page of rows from an external database.
type QueryResult struct {
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"rows"`
	RowCount      int              `json:"row_count"`
	ExecutionTime int64            `json:"execution_time_ms"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Offset     int64 `json:"offset"`
	Limit      int64 `json:"limit"`
	TotalRows  int64 `json:"total_rows"`
	TotalPages int64 `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

type PagedQueryResult struct {
	*QueryResult
	Pagination Pagination `json:"pagination"`
}
