package external

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agentdb/internal/models"
)

type PostgresIntrospector struct {
	log *zap.Logger
}

func isPostgresSystemSchema(s string) bool {
	switch s {
	case "pg_catalog", "information_schema", "pg_toast":
		return true
	}
	return strings.HasPrefix(s, "pg_temp_") || strings.HasPrefix(s, "pg_toast_temp_")
}

const pgTablesQuery = `
	SELECT
		t.table_schema,
		t.table_name,
		obj_description(c.oid, 'pg_class') AS table_comment,
		c.reltuples::bigint AS row_estimate
	FROM information_schema.tables t
	JOIN pg_namespace n ON n.nspname = t.table_schema
	JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
	WHERE t.table_type = 'BASE TABLE'
	AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	AND t.table_schema NOT LIKE 'pg\_temp\_%'
	AND t.table_schema NOT LIKE 'pg\_toast\_temp\_%'
	AND (cardinality($1::text[]) = 0 OR t.table_schema = ANY($1::text[]))
	AND NOT (t.table_schema = ANY($2::text[]))
	ORDER BY t.table_schema, t.table_name
`

const pgColumnsQuery = `
	SELECT
		c.table_schema,
		c.table_name,
		c.column_name,
		CASE WHEN c.data_type = 'USER-DEFINED' THEN c.udt_name ELSE c.data_type END AS data_type,
		c.is_nullable,
		c.column_default,
		col_description(pc.oid, a.attnum) AS column_comment,
		EXISTS (
			SELECT 1 FROM pg_constraint k
			WHERE k.conrelid = pc.oid AND k.contype = 'p' AND a.attnum = ANY(k.conkey)
		) AS is_primary_key,
		EXISTS (
			SELECT 1 FROM pg_constraint k
			WHERE k.conrelid = pc.oid AND k.contype = 'f' AND a.attnum = ANY(k.conkey)
		) AS is_foreign_key,
		EXISTS (
			SELECT 1 FROM pg_constraint k
			WHERE k.conrelid = pc.oid AND k.contype = 'u' AND k.conkey = ARRAY[a.attnum]
		) AS is_unique,
		EXISTS (
			SELECT 1 FROM pg_index i
			WHERE i.indrelid = pc.oid AND a.attnum = ANY(i.indkey)
		) AS is_indexed
	FROM information_schema.columns c
	JOIN pg_namespace n ON n.nspname = c.table_schema
	JOIN pg_class pc ON pc.relname = c.table_name AND pc.relnamespace = n.oid
	JOIN pg_attribute a ON a.attrelid = pc.oid AND a.attname = c.column_name
	WHERE c.table_schema = ANY($1::text[])
	ORDER BY c.table_schema, c.table_name, c.ordinal_position
`

const pgForeignKeysQuery = `
	SELECT
		con.conname AS constraint_name,
		sn.nspname AS source_schema,
		sc.relname AS source_table,
		sa.attname AS source_column,
		tn.nspname AS target_schema,
		tc.relname AS target_table,
		ta.attname AS target_column
	FROM pg_constraint con
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(src, tgt)
	JOIN pg_class sc ON sc.oid = con.conrelid
	JOIN pg_namespace sn ON sn.oid = sc.relnamespace
	JOIN pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = k.src
	JOIN pg_class tc ON tc.oid = con.confrelid
	JOIN pg_namespace tn ON tn.oid = tc.relnamespace
	JOIN pg_attribute ta ON ta.attrelid = con.confrelid AND ta.attnum = k.tgt
	WHERE con.contype = 'f' AND sn.nspname = ANY($1::text[])
	ORDER BY sn.nspname, sc.relname, con.conname
`

func (i *PostgresIntrospector) FetchSchema(ctx context.Context, q Querier, cred *models.ExternalCredential) (*models.SchemaSnapshot, error) {
	include := filterSchemas(cred.SchemaInclude, nil, isPostgresSystemSchema)
	if include == nil {
		include = []string{}
	}
	exclude := cred.SchemaExclude
	if exclude == nil {
		exclude = []string{}
	}

	b := newSnapshotBuilder()

	tables, err := q.Execute(ctx, pgTablesQuery, include, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	for _, row := range tables.Rows {
		b.addTable(models.SnapshotTable{
			Schema:   asString(row["table_schema"]),
			Name:     asString(row["table_name"]),
			Comment:  asComment(row["table_comment"]),
			RowCount: asRowEstimate(row["row_estimate"]),
		})
	}

	schemas := b.schemas()
	if len(schemas) == 0 {
		return b.snap, nil
	}

	columns, err := q.Execute(ctx, pgColumnsQuery, schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	for _, row := range columns.Rows {
		b.addColumn(asString(row["table_schema"]), asString(row["table_name"]), models.SnapshotColumn{
			Name:         asString(row["column_name"]),
			DataType:     asString(row["data_type"]),
			Nullable:     asBool(row["is_nullable"]),
			DefaultValue: asOptionalString(row["column_default"]),
			Comment:      asComment(row["column_comment"]),
			IsPrimaryKey: asBool(row["is_primary_key"]),
			IsForeignKey: asBool(row["is_foreign_key"]),
			IsUnique:     asBool(row["is_unique"]),
			IsIndexed:    asBool(row["is_indexed"]),
		})
	}

	fks, err := q.Execute(ctx, pgForeignKeysQuery, schemas)
	if err != nil {
		b.relationshipsFailed(i.log, models.DialectPostgres, err)
		return b.snap, nil
	}
	for _, row := range fks.Rows {
		b.snap.Relationships = append(b.snap.Relationships, models.SnapshotRelationship{
			SourceSchema:   asString(row["source_schema"]),
			SourceTable:    asString(row["source_table"]),
			SourceColumn:   asString(row["source_column"]),
			TargetSchema:   asString(row["target_schema"]),
			TargetTable:    asString(row["target_table"]),
			TargetColumn:   asString(row["target_column"]),
			ConstraintName: asString(row["constraint_name"]),
			Type:           models.RelationshipForeignKey,
		})
	}

	i.log.Info("schema introspected",
		zap.String("dialect", models.DialectPostgres),
		zap.Int("tables", len(b.snap.Tables)),
		zap.Int("relationships", len(b.snap.Relationships)))
	return b.snap, nil
}
