package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentTable is one external table known to an agent.
// OriginalComment, RowCountEstimate and LastAnalyzedAt come from introspection and are
// overwritten on every sync. The remaining descriptive fields belong to operators.
type AgentTable struct {
	ID               uuid.UUID  `json:"id"`
	AgentID          uuid.UUID  `json:"agent_id"`
	SchemaName       string     `json:"schema_name"`
	TableName        string     `json:"table_name"`
	OriginalComment  *string    `json:"original_comment,omitempty"`
	RowCountEstimate *int64     `json:"row_count_estimate,omitempty"` // catalog statistic, not an exact count
	LastAnalyzedAt   *time.Time `json:"last_analyzed_at,omitempty"`
	AdminDescription *string    `json:"admin_description,omitempty"`
	SemanticHints    *string    `json:"semantic_hints,omitempty"`
	CustomPrompt     *string    `json:"custom_prompt,omitempty"`
	IsVisible        bool       `json:"is_visible"`
	IsQueryable      bool       `json:"is_queryable"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (t *AgentTable) Prepare() {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.SchemaName == "" {
		t.SchemaName = "public"
	}
}

// NewAgentTable returns a table with admin-curated fields at their defaults.
func NewAgentTable(agentID uuid.UUID, schema, name string) *AgentTable {
	t := &AgentTable{
		AgentID:     agentID,
		SchemaName:  schema,
		TableName:   name,
		IsVisible:   true,
		IsQueryable: true,
	}
	t.Prepare()
	return t
}

// TableExternal is the introspection-owned part of an AgentTable.
type TableExternal struct {
	OriginalComment  *string
	RowCountEstimate *int64
	LastAnalyzedAt   *time.Time
}

// AgentColumn is one column of an AgentTable.
type AgentColumn struct {
	ID                      uuid.UUID `json:"id"`
	AgentID                 uuid.UUID `json:"agent_id"`
	TableID                 uuid.UUID `json:"table_id"`
	ColumnName              string    `json:"column_name"`
	OrdinalPosition         int       `json:"ordinal_position"`
	DataType                string    `json:"data_type"`
	IsNullable              bool      `json:"is_nullable"`
	IsPrimaryKey            bool      `json:"is_primary_key"`
	IsForeignKey            bool      `json:"is_foreign_key"`
	IsUnique                bool      `json:"is_unique"`
	IsIndexed               bool      `json:"is_indexed"`
	DefaultValue            *string   `json:"default_value,omitempty"`
	OriginalComment         *string   `json:"original_comment,omitempty"`
	AdminDescription        *string   `json:"admin_description,omitempty"`
	SemanticHints           *string   `json:"semantic_hints,omitempty"`
	CustomPrompt            *string   `json:"custom_prompt,omitempty"`
	IsVisible               bool      `json:"is_visible"`
	IsQueryable             bool      `json:"is_queryable"`
	IsSensitive             bool      `json:"is_sensitive"`
	SensitivityOverride     *string   `json:"sensitivity_override,omitempty"`      // low, medium, high, critical
	MaskingStrategyOverride *string   `json:"masking_strategy_override,omitempty"` // full, partial, hash, redact, tokenize
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (c *AgentColumn) Prepare() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
}

func NewAgentColumn(agentID, tableID uuid.UUID, name string) *AgentColumn {
	c := &AgentColumn{
		AgentID:     agentID,
		TableID:     tableID,
		ColumnName:  name,
		IsNullable:  true,
		IsVisible:   true,
		IsQueryable: true,
	}
	c.Prepare()
	return c
}

// ColumnExternal is the structural, introspection-owned part of an AgentColumn.
type ColumnExternal struct {
	OrdinalPosition int
	DataType        string
	IsNullable      bool
	IsPrimaryKey    bool
	IsForeignKey    bool
	IsUnique        bool
	IsIndexed       bool
	DefaultValue    *string
	OriginalComment *string
}

func (c *AgentColumn) ApplyExternal(ext ColumnExternal) {
	c.OrdinalPosition = ext.OrdinalPosition
	c.DataType = ext.DataType
	c.IsNullable = ext.IsNullable
	c.IsPrimaryKey = ext.IsPrimaryKey
	c.IsForeignKey = ext.IsForeignKey
	c.IsUnique = ext.IsUnique
	c.IsIndexed = ext.IsIndexed
	c.DefaultValue = ext.DefaultValue
	c.OriginalComment = ext.OriginalComment
}

func (t *AgentTable) ApplyExternal(ext TableExternal) {
	t.OriginalComment = ext.OriginalComment
	t.RowCountEstimate = ext.RowCountEstimate
	t.LastAnalyzedAt = ext.LastAnalyzedAt
}

const RelationshipForeignKey = "foreign_key"

// AgentRelationship is a foreign-key edge between two agent columns.
// Relationships are rebuilt from scratch on every sync.
type AgentRelationship struct {
	ID                     uuid.UUID `json:"id"`
	AgentID                uuid.UUID `json:"agent_id"`
	SourceTableID          uuid.UUID `json:"source_table_id"`
	SourceColumnID         uuid.UUID `json:"source_column_id"`
	TargetTableID          uuid.UUID `json:"target_table_id"`
	TargetColumnID         uuid.UUID `json:"target_column_id"`
	RelationshipType       string    `json:"relationship_type"`
	IsInferred             bool      `json:"is_inferred"`
	OriginalConstraintName *string   `json:"original_constraint_name,omitempty"`
	AdminDescription       *string   `json:"admin_description,omitempty"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
}

func (r *AgentRelationship) Prepare() {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RelationshipType == "" {
		r.RelationshipType = RelationshipForeignKey
	}
}

// TableMetadataPatch carries operator edits to a table. Nil fields are left unchanged.
type TableMetadataPatch struct {
	AdminDescription *string `json:"admin_description"`
	SemanticHints    *string `json:"semantic_hints"`
	CustomPrompt     *string `json:"custom_prompt"`
	IsVisible        *bool   `json:"is_visible"`
	IsQueryable      *bool   `json:"is_queryable"`
}

// ColumnMetadataPatch carries operator edits to a column. Nil fields are left unchanged.
type ColumnMetadataPatch struct {
	AdminDescription        *string `json:"admin_description"`
	SemanticHints           *string `json:"semantic_hints"`
	CustomPrompt            *string `json:"custom_prompt"`
	IsVisible               *bool   `json:"is_visible"`
	IsQueryable             *bool   `json:"is_queryable"`
	IsSensitive             *bool   `json:"is_sensitive"`
	SensitivityOverride     *string `json:"sensitivity_override" binding:"omitempty,oneof=low medium high critical"`
	MaskingStrategyOverride *string `json:"masking_strategy_override" binding:"omitempty,oneof=full partial hash redact tokenize"`
}
