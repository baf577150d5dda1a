//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"agentdb/internal/database"
	"agentdb/internal/models"
	"agentdb/internal/utils"
)

func startMetadataDB(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithUsername("agentdb"),
		postgres.WithPassword("agentdb"),
		postgres.WithDatabase("agentdb"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.RunMigrations(ctx, pool, zap.NewNop()))
	// migrations are idempotent
	require.NoError(t, database.RunMigrations(ctx, pool, zap.NewNop()))
	return pool
}

func TestCredentialRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(startMetadataDB(t))
	agentID := uuid.New()

	missing, err := repo.GetByAgentID(ctx, agentID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	cred := &models.ExternalCredential{
		AgentID:           agentID,
		Dialect:           models.DialectPostgres,
		Host:              "db.internal",
		Port:              5432,
		DatabaseName:      "shop",
		Username:          "reader",
		EncryptedPassword: "aa:bb:cc",
		SchemaInclude:     []string{"public"},
	}
	require.NoError(t, repo.Upsert(ctx, cred))
	require.NoError(t, repo.RecordConnectionTest(ctx, agentID, true, time.Now()))

	got, err := repo.GetByAgentID(ctx, agentID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "shop", got.DatabaseName)
	assert.Equal(t, []string{"public"}, got.SchemaInclude)
	assert.Equal(t, models.DefaultPoolSize, got.PoolSize)
	require.NotNil(t, got.LastConnectionTestSuccess)
	assert.True(t, *got.LastConnectionTestSuccess)

	// replacing the credential keeps one row per agent and resets the test result
	cred2 := *cred
	cred2.ID = uuid.Nil
	cred2.Host = "db2.internal"
	require.NoError(t, repo.Upsert(ctx, &cred2))
	got, err = repo.GetByAgentID(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, "db2.internal", got.Host)
	assert.Equal(t, cred.ID, got.ID)
	assert.Nil(t, got.LastConnectionTestSuccess)

	deleted, err := repo.Delete(ctx, agentID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestMetadataRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := NewMetadataRepository(startMetadataDB(t))
	agentID := uuid.New()

	require.NoError(t, repo.EnsureAgent(ctx, agentID))

	table := models.NewAgentTable(agentID, "public", "orders")
	table.AdminDescription = utils.StringPtr("Customer orders")
	require.NoError(t, repo.InsertTable(ctx, table))

	col := models.NewAgentColumn(agentID, table.ID, "id")
	col.DataType = "integer"
	col.IsPrimaryKey = true
	require.NoError(t, repo.InsertColumn(ctx, col))

	// external update leaves admin fields untouched
	require.NoError(t, repo.UpdateTableExternal(ctx, table.ID, models.TableExternal{OriginalComment: utils.StringPtr("orders")}))
	found, err := repo.FindTable(ctx, agentID, "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", *found.OriginalComment)
	assert.Equal(t, "Customer orders", *found.AdminDescription)

	require.NoError(t, repo.UpdateColumnExternal(ctx, col.ID, models.ColumnExternal{DataType: "bigint", IsPrimaryKey: true}))
	foundCol, err := repo.FindColumn(ctx, table.ID, "id")
	require.NoError(t, err)
	assert.Equal(t, "bigint", foundCol.DataType)

	hidden := false
	patched, err := repo.UpdateColumnMetadata(ctx, agentID, col.ID, models.ColumnMetadataPatch{IsVisible: &hidden})
	require.NoError(t, err)
	assert.False(t, patched.IsVisible)

	rel := &models.AgentRelationship{AgentID: agentID, SourceTableID: table.ID, SourceColumnID: col.ID,
		TargetTableID: table.ID, TargetColumnID: col.ID, IsActive: true}
	require.NoError(t, repo.InsertRelationship(ctx, rel))

	// a failing transaction leaves no trace
	boom := errors.New("boom")
	err = repo.WithTx(ctx, func(s MetadataStore) error {
		require.NoError(t, s.DeleteAgentSchema(ctx, agentID))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	tables, err := repo.ListTables(ctx, agentID)
	require.NoError(t, err)
	assert.Len(t, tables, 1)
	rels, err := repo.ListRelationships(ctx, agentID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	require.NoError(t, repo.WithTx(ctx, func(s MetadataStore) error {
		return s.DeleteAgentSchema(ctx, agentID)
	}))
	tables, err = repo.ListTables(ctx, agentID)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestAuditRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(startMetadataDB(t))
	agentID := uuid.New()

	first := &models.AuditEvent{AgentID: agentID, Action: models.AuditSchemaSync, TablesCount: 2, ColumnsCount: 5,
		CreatedAt: time.Now().Add(-time.Minute)}
	first.Prepare()
	require.NoError(t, repo.Record(ctx, first))

	second := &models.AuditEvent{AgentID: agentID, Action: models.AuditMetadataEdit,
		Details: map[string]any{"table": "orders"}}
	second.Prepare()
	require.NoError(t, repo.Record(ctx, second))

	events, err := repo.ListByAgent(ctx, agentID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AuditMetadataEdit, events[0].Action)
	assert.Equal(t, "orders", events[0].Details["table"])
	assert.Equal(t, 5, events[1].ColumnsCount)
}

func TestRedisRepositoryIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRedisRepository(rdb)

	agentID := uuid.New()
	require.NoError(t, repo.Set(ctx, SchemaKey(agentID), []byte(`{"tables":[]}`), time.Minute))
	for i := 0; i < 250; i++ {
		require.NoError(t, repo.Set(ctx, EmbeddingsPattern(agentID)[:len(EmbeddingsPattern(agentID))-1]+uuid.NewString(), []byte("x"), time.Minute))
	}

	val, ok, err := repo.Get(ctx, SchemaKey(agentID))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"tables":[]}`, string(val))

	n, err := repo.DeletePattern(ctx, EmbeddingsPattern(agentID))
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	require.NoError(t, repo.Delete(ctx, SchemaKey(agentID)))
	_, ok, err = repo.Get(ctx, SchemaKey(agentID))
	require.NoError(t, err)
	assert.False(t, ok)
}
