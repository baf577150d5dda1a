package models

import "time"

// SchemaSnapshot is the dialect-free result of introspecting an external database once.
// It is also the shape of an operator-supplied schema document.
type SchemaSnapshot struct {
	Tables        []SnapshotTable        `json:"tables" binding:"dive"`
	Relationships []SnapshotRelationship `json:"relationships" binding:"dive"`

	// RelationshipsComplete is false when foreign keys could not be read; Relationships is
	// then empty but the tables are still valid.
	RelationshipsComplete bool       `json:"relationshipsComplete"`
	Warnings              []string   `json:"warnings,omitempty"`
	CapturedAt            *time.Time `json:"capturedAt,omitempty"`
}

type SnapshotTable struct {
	Schema   string           `json:"schema"`
	Name     string           `json:"name" binding:"required"`
	Comment  *string          `json:"comment"`
	RowCount *int64           `json:"rowCount"` // estimate, nil when unknown
	Columns  []SnapshotColumn `json:"columns" binding:"dive"`
}

type SnapshotColumn struct {
	Name         string  `json:"name" binding:"required"`
	DataType     string  `json:"type" binding:"required"`
	Nullable     bool    `json:"nullable"`
	DefaultValue *string `json:"defaultValue"`
	Comment      *string `json:"comment"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
	IsForeignKey bool    `json:"isForeignKey"`
	IsUnique     bool    `json:"isUnique"`
	IsIndexed    bool    `json:"isIndexed"`
}

type SnapshotRelationship struct {
	SourceSchema   string `json:"sourceSchema,omitempty"`
	SourceTable    string `json:"sourceTable" binding:"required"`
	SourceColumn   string `json:"sourceColumn" binding:"required"`
	TargetSchema   string `json:"targetSchema,omitempty"`
	TargetTable    string `json:"targetTable" binding:"required"`
	TargetColumn   string `json:"targetColumn" binding:"required"`
	ConstraintName string `json:"constraintName,omitempty"`
	Type           string `json:"type,omitempty"`
}

func (t SnapshotTable) External() TableExternal {
	return TableExternal{
		OriginalComment:  t.Comment,
		RowCountEstimate: t.RowCount,
	}
}

func (c SnapshotColumn) External() ColumnExternal {
	return ColumnExternal{
		DataType:        c.DataType,
		IsNullable:      c.Nullable,
		IsPrimaryKey:    c.IsPrimaryKey,
		IsForeignKey:    c.IsForeignKey,
		IsUnique:        c.IsUnique,
		IsIndexed:       c.IsIndexed,
		DefaultValue:    c.DefaultValue,
		OriginalComment: c.Comment,
	}
}

// ColumnCount returns the number of columns across all tables.
func (s *SchemaSnapshot) ColumnCount() int {
	n := 0
	for _, t := range s.Tables {
		n += len(t.Columns)
	}
	return n
}

// SyncSummary reports what a sync or import wrote.
type SyncSummary struct {
	TablesCount            int  `json:"tables_count"`
	ColumnsCount           int  `json:"columns_count"`
	RelationshipsCount     int  `json:"relationships_count"`
	RelationshipsSkipped   int  `json:"relationships_skipped"`
	RelationshipsPreserved bool `json:"relationships_preserved"`
}

// EnrichedSchema is the curated view of an agent's schema consumed by downstream tooling.
type EnrichedSchema struct {
	Tables        []EnrichedTable        `json:"tables"`
	Relationships []EnrichedRelationship `json:"relationships"`
}

type EnrichedTable struct {
	Name             string           `json:"name"`
	Schema           string           `json:"schema"`
	Description      *string          `json:"description"`
	SemanticHints    *string          `json:"semanticHints"`
	CustomPrompt     *string          `json:"customPrompt"`
	IsQueryable      bool             `json:"isQueryable"`
	RowCountEstimate *int64           `json:"rowCountEstimate"`
	Columns          []EnrichedColumn `json:"columns"`
}

type EnrichedColumn struct {
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Nullable         bool    `json:"nullable"`
	PrimaryKey       bool    `json:"primaryKey"`
	ForeignKey       bool    `json:"foreignKey"`
	Unique           bool    `json:"unique"`
	Indexed          bool    `json:"indexed"`
	DefaultValue     *string `json:"defaultValue"`
	Description      *string `json:"description"`
	SemanticHints    *string `json:"semanticHints"`
	CustomPrompt     *string `json:"customPrompt"`
	IsQueryable      bool    `json:"isQueryable"`
	IsSensitive      bool    `json:"isSensitive"`
	SensitivityLevel *string `json:"sensitivityLevel"`
	MaskingStrategy  *string `json:"maskingStrategy"`
}

type EnrichedRelationship struct {
	SourceTable    string  `json:"sourceTable"`
	SourceColumn   string  `json:"sourceColumn"`
	TargetTable    string  `json:"targetTable"`
	TargetColumn   string  `json:"targetColumn"`
	Type           string  `json:"type"`
	ConstraintName *string `json:"constraintName"`
}
