package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditSchemaSync   = "schema.sync"
	AuditSchemaImport = "schema.import"
	AuditMetadataEdit = "metadata.edit"
)

type AuditEvent struct {
	ID                 uuid.UUID      `json:"id"`
	AgentID            uuid.UUID      `json:"agent_id"`
	Action             string         `json:"action"`
	TablesCount        int            `json:"tables_count"`
	ColumnsCount       int            `json:"columns_count"`
	RelationshipsCount int            `json:"relationships_count"`
	Details            map[string]any `json:"details,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (e *AuditEvent) Prepare() {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
}
