package external

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agentdb/internal/models"
)

type MySQLIntrospector struct {
	log *zap.Logger
}

func isMySQLSystemSchema(s string) bool {
	switch strings.ToLower(s) {
	case "information_schema", "mysql", "performance_schema", "sys":
		return true
	}
	return false
}

const mysqlTablesQuery = `
	SELECT TABLE_SCHEMA, TABLE_NAME, TABLE_COMMENT, TABLE_ROWS
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA IN (%s)
	ORDER BY TABLE_SCHEMA, TABLE_NAME
`

const mysqlColumnsQuery = `
	SELECT
		c.TABLE_SCHEMA, c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE,
		c.COLUMN_DEFAULT, c.COLUMN_COMMENT, c.COLUMN_KEY,
		EXISTS (
			SELECT 1 FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
			WHERE k.TABLE_SCHEMA = c.TABLE_SCHEMA AND k.TABLE_NAME = c.TABLE_NAME
			AND k.COLUMN_NAME = c.COLUMN_NAME AND k.REFERENCED_TABLE_NAME IS NOT NULL
		) AS IS_FOREIGN_KEY,
		EXISTS (
			SELECT 1 FROM INFORMATION_SCHEMA.STATISTICS s
			WHERE s.TABLE_SCHEMA = c.TABLE_SCHEMA AND s.TABLE_NAME = c.TABLE_NAME
			AND s.COLUMN_NAME = c.COLUMN_NAME
		) AS IS_INDEXED
	FROM INFORMATION_SCHEMA.COLUMNS c
	WHERE c.TABLE_SCHEMA IN (%s)
	ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION
`

const mysqlForeignKeysQuery = `
	SELECT
		CONSTRAINT_NAME, TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME,
		REFERENCED_TABLE_SCHEMA, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA IN (%s) AND REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY TABLE_SCHEMA, TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
`

// FetchSchema reads the connected database, or the include list when one is configured.
func (i *MySQLIntrospector) FetchSchema(ctx context.Context, q Querier, cred *models.ExternalCredential) (*models.SchemaSnapshot, error) {
	candidates := cred.SchemaInclude
	if len(candidates) == 0 {
		candidates = []string{cred.DatabaseName}
	}
	schemas := filterSchemas(candidates, cred.SchemaExclude, isMySQLSystemSchema)

	b := newSnapshotBuilder()
	if len(schemas) == 0 {
		return b.snap, nil
	}

	args := make([]any, len(schemas))
	for n, s := range schemas {
		args[n] = s
	}
	in := placeholders(len(schemas))

	tables, err := q.Execute(ctx, fmt.Sprintf(mysqlTablesQuery, in), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	for _, row := range tables.Rows {
		b.addTable(models.SnapshotTable{
			Schema:   asString(row["TABLE_SCHEMA"]),
			Name:     asString(row["TABLE_NAME"]),
			Comment:  asComment(row["TABLE_COMMENT"]),
			RowCount: asRowEstimate(row["TABLE_ROWS"]),
		})
	}

	if len(b.snap.Tables) == 0 {
		return b.snap, nil
	}

	columns, err := q.Execute(ctx, fmt.Sprintf(mysqlColumnsQuery, in), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	for _, row := range columns.Rows {
		key := asString(row["COLUMN_KEY"])
		fk := asBool(row["IS_FOREIGN_KEY"])
		b.addColumn(asString(row["TABLE_SCHEMA"]), asString(row["TABLE_NAME"]), models.SnapshotColumn{
			Name:         asString(row["COLUMN_NAME"]),
			DataType:     asString(row["DATA_TYPE"]),
			Nullable:     asBool(row["IS_NULLABLE"]),
			DefaultValue: asOptionalString(row["COLUMN_DEFAULT"]),
			Comment:      asComment(row["COLUMN_COMMENT"]),
			IsPrimaryKey: key == "PRI",
			IsForeignKey: fk,
			IsUnique:     key == "UNI",
			IsIndexed:    key != "" || fk || asBool(row["IS_INDEXED"]),
		})
	}

	fks, err := q.Execute(ctx, fmt.Sprintf(mysqlForeignKeysQuery, in), args...)
	if err != nil {
		b.relationshipsFailed(i.log, models.DialectMySQL, err)
		return b.snap, nil
	}
	for _, row := range fks.Rows {
		b.snap.Relationships = append(b.snap.Relationships, models.SnapshotRelationship{
			SourceSchema:   asString(row["TABLE_SCHEMA"]),
			SourceTable:    asString(row["TABLE_NAME"]),
			SourceColumn:   asString(row["COLUMN_NAME"]),
			TargetSchema:   asString(row["REFERENCED_TABLE_SCHEMA"]),
			TargetTable:    asString(row["REFERENCED_TABLE_NAME"]),
			TargetColumn:   asString(row["REFERENCED_COLUMN_NAME"]),
			ConstraintName: asString(row["CONSTRAINT_NAME"]),
			Type:           models.RelationshipForeignKey,
		})
	}

	i.log.Info("schema introspected",
		zap.String("dialect", models.DialectMySQL),
		zap.Int("tables", len(b.snap.Tables)),
		zap.Int("relationships", len(b.snap.Relationships)))
	return b.snap, nil
}
