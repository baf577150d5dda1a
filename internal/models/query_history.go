package models

import (
	"time"

	"github.com/google/uuid"
)

type QueryHistory struct {
	ID              uuid.UUID `json:"id"`
	AgentID         uuid.UUID `json:"agent_id"`
	QueryText       string    `json:"query_text"`
	ExecutedAt      time.Time `json:"executed_at"`
	Success         *bool     `json:"success,omitempty"`
	RowCount        *int      `json:"row_count,omitempty"`
	ExecutionTimeMs *int      `json:"execution_time_ms,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
}

func (q *QueryHistory) Prepare() {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.ExecutedAt.IsZero() {
		q.ExecutedAt = time.Now()
	}
}
