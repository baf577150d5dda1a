package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"agentdb/internal/external"
	"agentdb/internal/models"
	"agentdb/internal/repositories"
)

type AuditSink interface {
	Record(ctx context.Context, e *models.AuditEvent) error
}

// PoolResolver returns the shared external pool of an agent.
type PoolResolver interface {
	Pool(ctx context.Context, agentID uuid.UUID) (*models.ExternalCredential, external.Pool, error)
}

type SchemaService struct {
	conns PoolResolver
	pools PoolProvider
	store repositories.MetadataStore
	cache repositories.Cache
	audit AuditSink
	log   *zap.Logger

	introspectorFor func(dialect string, log *zap.Logger) (external.Introspector, error)

	inflight singleflight.Group
	locks    sync.Map // agent id -> *sync.Mutex
}

func NewSchemaService(
	conns PoolResolver,
	pools PoolProvider,
	store repositories.MetadataStore,
	cache repositories.Cache,
	audit AuditSink,
	log *zap.Logger,
) *SchemaService {
	return &SchemaService{
		conns:           conns,
		pools:           pools,
		store:           store,
		cache:           cache,
		audit:           audit,
		log:             log,
		introspectorFor: external.IntrospectorFor,
	}
}

// poolQuerier binds an external pool to the manager's timeout and error wrapping.
type poolQuerier struct {
	pools PoolProvider
	pool  external.Pool
}

func (q poolQuerier) Execute(ctx context.Context, sql string, args ...any) (*models.QueryResult, error) {
	return q.pools.Execute(ctx, q.pool, sql, args...)
}

// FetchSchema introspects the agent's external database without touching stored metadata.
func (s *SchemaService) FetchSchema(ctx context.Context, agentID uuid.UUID) (*models.SchemaSnapshot, error) {
	cred, pool, err := s.conns.Pool(ctx, agentID)
	if err != nil {
		return nil, err
	}

	in, err := s.introspectorFor(cred.Dialect, s.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, cred.Dialect)
	}

	start := time.Now()
	snap, err := in.FetchSchema(ctx, poolQuerier{pools: s.pools, pool: pool}, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect external database: %w", err)
	}

	s.log.Info("external schema introspected",
		zap.String("agent_id", agentID.String()),
		zap.String("dialect", cred.Dialect),
		zap.Int("tables", len(snap.Tables)),
		zap.Int("columns", snap.ColumnCount()),
		zap.Int("relationships", len(snap.Relationships)),
		zap.Bool("relationships_complete", snap.RelationshipsComplete),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}

// Sync introspects the external database and merges the result into the agent's metadata.
// Concurrent calls for the same agent share a single run.
func (s *SchemaService) Sync(ctx context.Context, agentID uuid.UUID) (*models.SyncSummary, error) {
	v, err, shared := s.inflight.Do(agentID.String(), func() (any, error) {
		snap, err := s.FetchSchema(ctx, agentID)
		if err != nil {
			return nil, err
		}
		return s.SyncSnapshot(ctx, agentID, snap)
	})
	if shared {
		s.log.Debug("joined in-flight schema sync", zap.String("agent_id", agentID.String()))
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.SyncSummary), nil
}

// SyncSnapshot merges an already captured snapshot. Admin-curated fields of existing rows are
// never written.
func (s *SchemaService) SyncSnapshot(ctx context.Context, agentID uuid.UUID, snap *models.SchemaSnapshot) (*models.SyncSummary, error) {
	return s.apply(ctx, agentID, snap, models.AuditSchemaSync, false)
}

// ImportFromDocument replaces the agent's whole schema with the document's contents.
func (s *SchemaService) ImportFromDocument(ctx context.Context, agentID uuid.UUID, doc *models.SchemaSnapshot) (*models.SyncSummary, error) {
	if doc.CapturedAt == nil {
		now := time.Now().UTC()
		doc.CapturedAt = &now
	}
	// a document always carries its full relationship list
	doc.RelationshipsComplete = true
	return s.apply(ctx, agentID, doc, models.AuditSchemaImport, true)
}

func (s *SchemaService) lock(agentID uuid.UUID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(agentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *SchemaService) apply(ctx context.Context, agentID uuid.UUID, snap *models.SchemaSnapshot, action string, replace bool) (*models.SyncSummary, error) {
	mu := s.lock(agentID)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	var summary *models.SyncSummary
	err := s.store.WithTx(ctx, func(store repositories.MetadataStore) error {
		var err error
		summary, err = merge(ctx, store, agentID, snap, replace)
		return err
	})
	if err != nil {
		s.log.Error("schema merge failed",
			zap.String("agent_id", agentID.String()),
			zap.String("action", action),
			zap.Error(err))
		return nil, err
	}

	s.invalidate(ctx, agentID)
	s.recordAudit(ctx, agentID, action, summary, snap.Warnings)

	s.log.Info("schema merged",
		zap.String("agent_id", agentID.String()),
		zap.String("action", action),
		zap.Int("tables", summary.TablesCount),
		zap.Int("columns", summary.ColumnsCount),
		zap.Int("relationships", summary.RelationshipsCount),
		zap.Int("relationships_skipped", summary.RelationshipsSkipped),
		zap.Bool("relationships_preserved", summary.RelationshipsPreserved),
		zap.Duration("elapsed", time.Since(start)))
	return summary, nil
}

func (s *SchemaService) invalidate(ctx context.Context, agentID uuid.UUID) {
	if err := s.cache.Delete(ctx, repositories.SchemaKey(agentID)); err != nil {
		s.log.Warn("schema cache invalidation failed", zap.String("agent_id", agentID.String()), zap.Error(err))
	}
	n, err := s.cache.DeletePattern(ctx, repositories.EmbeddingsPattern(agentID))
	if err != nil {
		s.log.Warn("embeddings cache invalidation failed", zap.String("agent_id", agentID.String()), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Debug("embeddings cache invalidated", zap.String("agent_id", agentID.String()), zap.Int("keys", n))
	}
}

func (s *SchemaService) recordAudit(ctx context.Context, agentID uuid.UUID, action string, summary *models.SyncSummary, warnings []string) {
	details := map[string]any{
		"relationships_skipped":   summary.RelationshipsSkipped,
		"relationships_preserved": summary.RelationshipsPreserved,
	}
	if len(warnings) > 0 {
		details["warnings"] = warnings
	}

	event := &models.AuditEvent{
		AgentID:            agentID,
		Action:             action,
		TablesCount:        summary.TablesCount,
		ColumnsCount:       summary.ColumnsCount,
		RelationshipsCount: summary.RelationshipsCount,
		Details:            details,
	}
	event.Prepare()

	if err := s.audit.Record(ctx, event); err != nil {
		s.log.Warn("failed to record audit event",
			zap.String("agent_id", agentID.String()),
			zap.String("action", action),
			zap.Error(err))
	}
}
