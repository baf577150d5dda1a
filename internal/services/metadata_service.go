package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agentdb/internal/models"
	"agentdb/internal/repositories"
)

// AuditLog records audit events and reads them back newest first.
type AuditLog interface {
	AuditSink
	ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.AuditEvent, error)
}

type MetadataService struct {
	store repositories.MetadataStore
	cache repositories.Cache
	audit AuditLog
	ttl   time.Duration
	log   *zap.Logger
}

func NewMetadataService(store repositories.MetadataStore, cache repositories.Cache, audit AuditLog, ttl time.Duration, log *zap.Logger) *MetadataService {
	return &MetadataService{
		store: store,
		cache: cache,
		audit: audit,
		ttl:   ttl,
		log:   log,
	}
}

// EnrichedSchema returns the visible part of the agent's schema with operator descriptions folded
// in. Results are cached until the next sync, import or edit.
func (s *MetadataService) EnrichedSchema(ctx context.Context, agentID uuid.UUID) (*models.EnrichedSchema, error) {
	key := repositories.SchemaKey(agentID)

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("schema cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var cached models.EnrichedSchema
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		s.log.Warn("discarding malformed schema cache entry", zap.String("key", key))
	}

	schema, err := s.buildEnriched(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(schema); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.log.Warn("schema cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return schema, nil
}

func (s *MetadataService) buildEnriched(ctx context.Context, agentID uuid.UUID) (*models.EnrichedSchema, error) {
	tables, err := s.store.ListTables(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	columns, err := s.store.ListColumns(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	relationships, err := s.store.ListRelationships(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}

	byTable := make(map[uuid.UUID][]models.AgentColumn)
	columnNames := make(map[uuid.UUID]string, len(columns))
	for _, c := range columns {
		columnNames[c.ID] = c.ColumnName
		if c.IsVisible {
			byTable[c.TableID] = append(byTable[c.TableID], c)
		}
	}

	out := &models.EnrichedSchema{
		Tables:        make([]models.EnrichedTable, 0, len(tables)),
		Relationships: []models.EnrichedRelationship{},
	}
	tableNames := make(map[uuid.UUID]string, len(tables))
	for _, t := range tables {
		if !t.IsVisible {
			continue
		}
		tableNames[t.ID] = t.TableName

		et := models.EnrichedTable{
			Name:             t.TableName,
			Schema:           t.SchemaName,
			Description:      combineDescription(t.OriginalComment, t.AdminDescription),
			SemanticHints:    t.SemanticHints,
			CustomPrompt:     t.CustomPrompt,
			IsQueryable:      t.IsQueryable,
			RowCountEstimate: t.RowCountEstimate,
			Columns:          make([]models.EnrichedColumn, 0, len(byTable[t.ID])),
		}
		for _, c := range byTable[t.ID] {
			et.Columns = append(et.Columns, models.EnrichedColumn{
				Name:             c.ColumnName,
				Type:             c.DataType,
				Nullable:         c.IsNullable,
				PrimaryKey:       c.IsPrimaryKey,
				ForeignKey:       c.IsForeignKey,
				Unique:           c.IsUnique,
				Indexed:          c.IsIndexed,
				DefaultValue:     c.DefaultValue,
				Description:      combineDescription(c.OriginalComment, c.AdminDescription),
				SemanticHints:    c.SemanticHints,
				CustomPrompt:     c.CustomPrompt,
				IsQueryable:      c.IsQueryable,
				IsSensitive:      c.IsSensitive,
				SensitivityLevel: c.SensitivityOverride,
				MaskingStrategy:  c.MaskingStrategyOverride,
			})
		}
		out.Tables = append(out.Tables, et)
	}

	for _, r := range relationships {
		if !r.IsActive {
			continue
		}
		src, srcOK := tableNames[r.SourceTableID]
		dst, dstOK := tableNames[r.TargetTableID]
		if !srcOK || !dstOK {
			continue
		}
		out.Relationships = append(out.Relationships, models.EnrichedRelationship{
			SourceTable:    src,
			SourceColumn:   columnNames[r.SourceColumnID],
			TargetTable:    dst,
			TargetColumn:   columnNames[r.TargetColumnID],
			Type:           r.RelationshipType,
			ConstraintName: r.OriginalConstraintName,
		})
	}
	return out, nil
}

// combineDescription joins the database comment and the operator's description as
// "<comment>. <description>", or returns whichever one is set.
func combineDescription(comment, admin *string) *string {
	hasComment := comment != nil && *comment != ""
	hasAdmin := admin != nil && *admin != ""
	switch {
	case hasComment && hasAdmin:
		d := *comment + ". " + *admin
		return &d
	case hasComment:
		return comment
	case hasAdmin:
		return admin
	default:
		return nil
	}
}

func (s *MetadataService) PatchTable(ctx context.Context, agentID, tableID uuid.UUID, patch models.TableMetadataPatch) (*models.AgentTable, error) {
	t, err := s.store.UpdateTableMetadata(ctx, agentID, tableID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update table metadata: %w", err)
	}
	if t == nil {
		return nil, ErrTableNotFound
	}

	s.afterEdit(ctx, agentID, map[string]any{"table_id": tableID.String(), "table": t.TableName})
	return t, nil
}

func (s *MetadataService) PatchColumn(ctx context.Context, agentID, columnID uuid.UUID, patch models.ColumnMetadataPatch) (*models.AgentColumn, error) {
	c, err := s.store.UpdateColumnMetadata(ctx, agentID, columnID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update column metadata: %w", err)
	}
	if c == nil {
		return nil, ErrColumnNotFound
	}

	s.afterEdit(ctx, agentID, map[string]any{"column_id": columnID.String(), "column": c.ColumnName})
	return c, nil
}

func (s *MetadataService) afterEdit(ctx context.Context, agentID uuid.UUID, details map[string]any) {
	if err := s.cache.Delete(ctx, repositories.SchemaKey(agentID)); err != nil {
		s.log.Warn("schema cache invalidation failed", zap.String("agent_id", agentID.String()), zap.Error(err))
	}

	event := &models.AuditEvent{AgentID: agentID, Action: models.AuditMetadataEdit, Details: details}
	event.Prepare()
	if err := s.audit.Record(ctx, event); err != nil {
		s.log.Warn("failed to record audit event", zap.String("agent_id", agentID.String()), zap.Error(err))
	}
}

// AuditTrail returns the agent's most recent sync, import and edit events.
func (s *MetadataService) AuditTrail(ctx context.Context, agentID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	events, err := s.audit.ListByAgent(ctx, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit events: %w", err)
	}
	return events, nil
}
