package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentdb/internal/models"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MetadataStore persists the curated schema of every agent.
type MetadataStore interface {
	EnsureAgent(ctx context.Context, agentID uuid.UUID) error

	FindTable(ctx context.Context, agentID uuid.UUID, schema, name string) (*models.AgentTable, error)
	InsertTable(ctx context.Context, t *models.AgentTable) error
	UpdateTableExternal(ctx context.Context, tableID uuid.UUID, ext models.TableExternal) error

	FindColumn(ctx context.Context, tableID uuid.UUID, name string) (*models.AgentColumn, error)
	InsertColumn(ctx context.Context, c *models.AgentColumn) error
	UpdateColumnExternal(ctx context.Context, columnID uuid.UUID, ext models.ColumnExternal) error

	DeleteRelationships(ctx context.Context, agentID uuid.UUID) error
	InsertRelationship(ctx context.Context, r *models.AgentRelationship) error
	DeleteAgentSchema(ctx context.Context, agentID uuid.UUID) error

	GetTable(ctx context.Context, agentID, tableID uuid.UUID) (*models.AgentTable, error)
	GetColumn(ctx context.Context, agentID, columnID uuid.UUID) (*models.AgentColumn, error)
	UpdateTableMetadata(ctx context.Context, agentID, tableID uuid.UUID, patch models.TableMetadataPatch) (*models.AgentTable, error)
	UpdateColumnMetadata(ctx context.Context, agentID, columnID uuid.UUID, patch models.ColumnMetadataPatch) (*models.AgentColumn, error)

	ListTables(ctx context.Context, agentID uuid.UUID) ([]models.AgentTable, error)
	ListColumns(ctx context.Context, agentID uuid.UUID) ([]models.AgentColumn, error)
	ListRelationships(ctx context.Context, agentID uuid.UUID) ([]models.AgentRelationship, error)

	// WithTx runs fn against a store bound to one transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(MetadataStore) error) error
}

type MetadataRepository struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewMetadataRepository(pool *pgxpool.Pool) *MetadataRepository {
	return &MetadataRepository{pool: pool, db: pool}
}

func (r *MetadataRepository) WithTx(ctx context.Context, fn func(MetadataStore) error) error {
	if _, inTx := r.db.(pgx.Tx); inTx {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&MetadataRepository{pool: r.pool, db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *MetadataRepository) EnsureAgent(ctx context.Context, agentID uuid.UUID) error {
	return ensureAgent(ctx, r.db, agentID)
}

const tableColumns = `
	id, agent_id, schema_name, table_name, original_comment, row_count_estimate, last_analyzed_at,
	admin_description, semantic_hints, custom_prompt, is_visible, is_queryable, created_at, updated_at
`

func scanTable(row pgx.Row) (*models.AgentTable, error) {
	var t models.AgentTable
	err := row.Scan(
		&t.ID,
		&t.AgentID,
		&t.SchemaName,
		&t.TableName,
		&t.OriginalComment,
		&t.RowCountEstimate,
		&t.LastAnalyzedAt,
		&t.AdminDescription,
		&t.SemanticHints,
		&t.CustomPrompt,
		&t.IsVisible,
		&t.IsQueryable,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MetadataRepository) FindTable(ctx context.Context, agentID uuid.UUID, schema, name string) (*models.AgentTable, error) {
	query := `SELECT ` + tableColumns + ` FROM agent_tables
		WHERE agent_id = $1 AND schema_name = $2 AND table_name = $3`
	return nilIfNoRows(scanTable(r.db.QueryRow(ctx, query, agentID, schema, name)))
}

func (r *MetadataRepository) GetTable(ctx context.Context, agentID, tableID uuid.UUID) (*models.AgentTable, error) {
	query := `SELECT ` + tableColumns + ` FROM agent_tables WHERE agent_id = $1 AND id = $2`
	return nilIfNoRows(scanTable(r.db.QueryRow(ctx, query, agentID, tableID)))
}

func (r *MetadataRepository) InsertTable(ctx context.Context, t *models.AgentTable) error {
	t.Prepare()

	query := `
		INSERT INTO agent_tables (
			id, agent_id, schema_name, table_name, original_comment, row_count_estimate, last_analyzed_at,
			admin_description, semantic_hints, custom_prompt, is_visible, is_queryable
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		t.ID,
		t.AgentID,
		t.SchemaName,
		t.TableName,
		t.OriginalComment,
		t.RowCountEstimate,
		t.LastAnalyzedAt,
		t.AdminDescription,
		t.SemanticHints,
		t.CustomPrompt,
		t.IsVisible,
		t.IsQueryable,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// UpdateTableExternal overwrites only the introspection-owned columns.
func (r *MetadataRepository) UpdateTableExternal(ctx context.Context, tableID uuid.UUID, ext models.TableExternal) error {
	query := `
		UPDATE agent_tables
		SET original_comment = $2, row_count_estimate = $3, last_analyzed_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, tableID, ext.OriginalComment, ext.RowCountEstimate, ext.LastAnalyzedAt)
	return err
}

const columnColumns = `
	id, agent_id, table_id, column_name, ordinal_position, data_type, is_nullable, is_primary_key,
	is_foreign_key, is_unique, is_indexed, default_value, original_comment, admin_description,
	semantic_hints, custom_prompt, is_visible, is_queryable, is_sensitive, sensitivity_override,
	masking_strategy_override, created_at, updated_at
`

func scanColumn(row pgx.Row) (*models.AgentColumn, error) {
	var c models.AgentColumn
	err := row.Scan(
		&c.ID,
		&c.AgentID,
		&c.TableID,
		&c.ColumnName,
		&c.OrdinalPosition,
		&c.DataType,
		&c.IsNullable,
		&c.IsPrimaryKey,
		&c.IsForeignKey,
		&c.IsUnique,
		&c.IsIndexed,
		&c.DefaultValue,
		&c.OriginalComment,
		&c.AdminDescription,
		&c.SemanticHints,
		&c.CustomPrompt,
		&c.IsVisible,
		&c.IsQueryable,
		&c.IsSensitive,
		&c.SensitivityOverride,
		&c.MaskingStrategyOverride,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MetadataRepository) FindColumn(ctx context.Context, tableID uuid.UUID, name string) (*models.AgentColumn, error) {
	query := `SELECT ` + columnColumns + ` FROM agent_columns WHERE table_id = $1 AND column_name = $2`
	return nilIfNoRows(scanColumn(r.db.QueryRow(ctx, query, tableID, name)))
}

func (r *MetadataRepository) GetColumn(ctx context.Context, agentID, columnID uuid.UUID) (*models.AgentColumn, error) {
	query := `SELECT ` + columnColumns + ` FROM agent_columns WHERE agent_id = $1 AND id = $2`
	return nilIfNoRows(scanColumn(r.db.QueryRow(ctx, query, agentID, columnID)))
}

func (r *MetadataRepository) InsertColumn(ctx context.Context, c *models.AgentColumn) error {
	c.Prepare()

	query := `
		INSERT INTO agent_columns (
			id, agent_id, table_id, column_name, ordinal_position, data_type, is_nullable, is_primary_key,
			is_foreign_key, is_unique, is_indexed, default_value, original_comment, admin_description,
			semantic_hints, custom_prompt, is_visible, is_queryable, is_sensitive, sensitivity_override,
			masking_strategy_override
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		c.ID,
		c.AgentID,
		c.TableID,
		c.ColumnName,
		c.OrdinalPosition,
		c.DataType,
		c.IsNullable,
		c.IsPrimaryKey,
		c.IsForeignKey,
		c.IsUnique,
		c.IsIndexed,
		c.DefaultValue,
		c.OriginalComment,
		c.AdminDescription,
		c.SemanticHints,
		c.CustomPrompt,
		c.IsVisible,
		c.IsQueryable,
		c.IsSensitive,
		c.SensitivityOverride,
		c.MaskingStrategyOverride,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// UpdateColumnExternal overwrites only the structural, introspection-owned columns.
func (r *MetadataRepository) UpdateColumnExternal(ctx context.Context, columnID uuid.UUID, ext models.ColumnExternal) error {
	query := `
		UPDATE agent_columns
		SET ordinal_position = $2, data_type = $3, is_nullable = $4, is_primary_key = $5,
			is_foreign_key = $6, is_unique = $7, is_indexed = $8, default_value = $9,
			original_comment = $10, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query,
		columnID,
		ext.OrdinalPosition,
		ext.DataType,
		ext.IsNullable,
		ext.IsPrimaryKey,
		ext.IsForeignKey,
		ext.IsUnique,
		ext.IsIndexed,
		ext.DefaultValue,
		ext.OriginalComment,
	)
	return err
}

func (r *MetadataRepository) DeleteRelationships(ctx context.Context, agentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM agent_relationships WHERE agent_id = $1`, agentID)
	return err
}

func (r *MetadataRepository) InsertRelationship(ctx context.Context, rel *models.AgentRelationship) error {
	rel.Prepare()

	query := `
		INSERT INTO agent_relationships (
			id, agent_id, source_table_id, source_column_id, target_table_id, target_column_id,
			relationship_type, is_inferred, original_constraint_name, admin_description, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		rel.ID,
		rel.AgentID,
		rel.SourceTableID,
		rel.SourceColumnID,
		rel.TargetTableID,
		rel.TargetColumnID,
		rel.RelationshipType,
		rel.IsInferred,
		rel.OriginalConstraintName,
		rel.AdminDescription,
		rel.IsActive,
	).Scan(&rel.CreatedAt)
}

// DeleteAgentSchema removes every table, column and relationship of the agent.
func (r *MetadataRepository) DeleteAgentSchema(ctx context.Context, agentID uuid.UUID) error {
	for _, query := range []string{
		`DELETE FROM agent_relationships WHERE agent_id = $1`,
		`DELETE FROM agent_columns WHERE agent_id = $1`,
		`DELETE FROM agent_tables WHERE agent_id = $1`,
	} {
		if _, err := r.db.Exec(ctx, query, agentID); err != nil {
			return err
		}
	}
	return nil
}

func (r *MetadataRepository) UpdateTableMetadata(ctx context.Context, agentID, tableID uuid.UUID, p models.TableMetadataPatch) (*models.AgentTable, error) {
	query := `
		UPDATE agent_tables SET
			admin_description = COALESCE($3, admin_description),
			semantic_hints = COALESCE($4, semantic_hints),
			custom_prompt = COALESCE($5, custom_prompt),
			is_visible = COALESCE($6, is_visible),
			is_queryable = COALESCE($7, is_queryable),
			updated_at = NOW()
		WHERE agent_id = $1 AND id = $2
		RETURNING ` + tableColumns
	return nilIfNoRows(scanTable(r.db.QueryRow(ctx, query,
		agentID, tableID, p.AdminDescription, p.SemanticHints, p.CustomPrompt, p.IsVisible, p.IsQueryable)))
}

func (r *MetadataRepository) UpdateColumnMetadata(ctx context.Context, agentID, columnID uuid.UUID, p models.ColumnMetadataPatch) (*models.AgentColumn, error) {
	query := `
		UPDATE agent_columns SET
			admin_description = COALESCE($3, admin_description),
			semantic_hints = COALESCE($4, semantic_hints),
			custom_prompt = COALESCE($5, custom_prompt),
			is_visible = COALESCE($6, is_visible),
			is_queryable = COALESCE($7, is_queryable),
			is_sensitive = COALESCE($8, is_sensitive),
			sensitivity_override = COALESCE($9, sensitivity_override),
			masking_strategy_override = COALESCE($10, masking_strategy_override),
			updated_at = NOW()
		WHERE agent_id = $1 AND id = $2
		RETURNING ` + columnColumns
	return nilIfNoRows(scanColumn(r.db.QueryRow(ctx, query,
		agentID, columnID, p.AdminDescription, p.SemanticHints, p.CustomPrompt, p.IsVisible,
		p.IsQueryable, p.IsSensitive, p.SensitivityOverride, p.MaskingStrategyOverride)))
}

func (r *MetadataRepository) ListTables(ctx context.Context, agentID uuid.UUID) ([]models.AgentTable, error) {
	query := `SELECT ` + tableColumns + ` FROM agent_tables WHERE agent_id = $1 ORDER BY schema_name, table_name`

	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []models.AgentTable{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

func (r *MetadataRepository) ListColumns(ctx context.Context, agentID uuid.UUID) ([]models.AgentColumn, error) {
	query := `SELECT ` + columnColumns + ` FROM agent_columns WHERE agent_id = $1 ORDER BY table_id, ordinal_position, column_name`

	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := []models.AgentColumn{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		columns = append(columns, *c)
	}
	return columns, rows.Err()
}

func (r *MetadataRepository) ListRelationships(ctx context.Context, agentID uuid.UUID) ([]models.AgentRelationship, error) {
	query := `
		SELECT id, agent_id, source_table_id, source_column_id, target_table_id, target_column_id,
			relationship_type, is_inferred, original_constraint_name, admin_description, is_active, created_at
		FROM agent_relationships WHERE agent_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rels := []models.AgentRelationship{}
	for rows.Next() {
		var rel models.AgentRelationship
		err := rows.Scan(
			&rel.ID,
			&rel.AgentID,
			&rel.SourceTableID,
			&rel.SourceColumnID,
			&rel.TargetTableID,
			&rel.TargetColumnID,
			&rel.RelationshipType,
			&rel.IsInferred,
			&rel.OriginalConstraintName,
			&rel.AdminDescription,
			&rel.IsActive,
			&rel.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func nilIfNoRows[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}
