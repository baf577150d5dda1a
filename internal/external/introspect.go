package external

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"agentdb/internal/models"
	"agentdb/internal/utils"
)

// Querier runs a statement against one external database.
type Querier interface {
	Execute(ctx context.Context, sql string, args ...any) (*models.QueryResult, error)
}

// Introspector reads the structure of an external database into a dialect-free snapshot.
type Introspector interface {
	FetchSchema(ctx context.Context, q Querier, cred *models.ExternalCredential) (*models.SchemaSnapshot, error)
}

// IntrospectorFor selects the strategy for a dialect.
func IntrospectorFor(dialect string, log *zap.Logger) (Introspector, error) {
	switch dialect {
	case models.DialectPostgres:
		return &PostgresIntrospector{log: log}, nil
	case models.DialectMySQL:
		return &MySQLIntrospector{log: log}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}
}

// snapshotBuilder groups column rows under their tables while keeping catalog order.
type snapshotBuilder struct {
	snap  *models.SchemaSnapshot
	index map[string]int
}

func newSnapshotBuilder() *snapshotBuilder {
	now := time.Now().UTC()
	return &snapshotBuilder{
		snap: &models.SchemaSnapshot{
			Tables:                []models.SnapshotTable{},
			Relationships:         []models.SnapshotRelationship{},
			RelationshipsComplete: true,
			CapturedAt:            &now,
		},
		index: make(map[string]int),
	}
}

func tableKey(schema, table string) string {
	return schema + "." + table
}

func (b *snapshotBuilder) addTable(t models.SnapshotTable) {
	if t.Columns == nil {
		t.Columns = []models.SnapshotColumn{}
	}
	b.index[tableKey(t.Schema, t.Name)] = len(b.snap.Tables)
	b.snap.Tables = append(b.snap.Tables, t)
}

// addColumn attaches a column to a known table. Columns of filtered-out tables are dropped.
func (b *snapshotBuilder) addColumn(schema, table string, c models.SnapshotColumn) {
	i, ok := b.index[tableKey(schema, table)]
	if !ok {
		return
	}
	b.snap.Tables[i].Columns = append(b.snap.Tables[i].Columns, c)
}

func (b *snapshotBuilder) schemas() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range b.snap.Tables {
		if !seen[t.Schema] {
			seen[t.Schema] = true
			out = append(out, t.Schema)
		}
	}
	return out
}

// relationshipsFailed records a foreign-key read failure without failing the snapshot.
func (b *snapshotBuilder) relationshipsFailed(log *zap.Logger, dialect string, err error) {
	log.Warn("relationship introspection failed, returning tables without relationships",
		zap.String("dialect", dialect),
		zap.Error(err))
	b.snap.Relationships = []models.SnapshotRelationship{}
	b.snap.RelationshipsComplete = false
	b.snap.Warnings = append(b.snap.Warnings, fmt.Sprintf("relationships unavailable: %v", err))
}

// filterSchemas applies include/exclude lists and drops system schemas.
func filterSchemas(candidates, exclude []string, system func(string) bool) []string {
	var out []string
	for _, s := range candidates {
		if s == "" || system(s) || utils.Contains(exclude, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
