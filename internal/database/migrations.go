package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	migrations := []string{
		createAgentsTable,
		createExternalCredentialsTable,
		createAgentTablesTable,
		createAgentColumnsTable,
		createAgentRelationshipsTable,
		createAuditEventsTable,
		createQueryHistoryTable,
	}

	for i, migration := range migrations {
		log.Debug("running migration", zap.Int("step", i+1), zap.Int("total", len(migrations)))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("all migrations completed successfully")
	return nil
}

const createAgentsTable = `
CREATE TABLE IF NOT EXISTS agents (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const createExternalCredentialsTable = `
CREATE TABLE IF NOT EXISTS agent_external_db_credentials (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  agent_id UUID NOT NULL UNIQUE REFERENCES agents(id) ON DELETE CASCADE,
  db_type TEXT NOT NULL CHECK (db_type IN ('postgresql', 'mysql')),
  host TEXT NOT NULL,
  port INTEGER NOT NULL,
  database_name TEXT NOT NULL,
  username TEXT NOT NULL,
  encrypted_password TEXT NOT NULL,
  ssl_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  ssl_ca_cert TEXT,
  ssl_client_cert TEXT,
  ssl_client_key TEXT,
  connection_pool_size INTEGER NOT NULL DEFAULT 5,
  connection_timeout_ms INTEGER NOT NULL DEFAULT 5000,
  schema_filter_include TEXT[] NOT NULL DEFAULT '{}',
  schema_filter_exclude TEXT[] NOT NULL DEFAULT '{}',
  last_connection_test_at TIMESTAMP WITH TIME ZONE,
  last_connection_test_success BOOLEAN,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const createAgentTablesTable = `
CREATE TABLE IF NOT EXISTS agent_tables (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
  schema_name TEXT NOT NULL DEFAULT 'public',
  table_name TEXT NOT NULL,
  original_comment TEXT,
  row_count_estimate BIGINT,
  last_analyzed_at TIMESTAMP WITH TIME ZONE,
  admin_description TEXT,
  semantic_hints TEXT,
  custom_prompt TEXT,
  is_visible BOOLEAN NOT NULL DEFAULT TRUE,
  is_queryable BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (agent_id, schema_name, table_name)
);

CREATE INDEX IF NOT EXISTS idx_agent_tables_agent_id ON agent_tables(agent_id);
`

const createAgentColumnsTable = `
CREATE TABLE IF NOT EXISTS agent_columns (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
  table_id UUID NOT NULL REFERENCES agent_tables(id) ON DELETE CASCADE,
  column_name TEXT NOT NULL,
  ordinal_position INTEGER NOT NULL DEFAULT 0,
  data_type TEXT NOT NULL,
  is_nullable BOOLEAN NOT NULL DEFAULT TRUE,
  is_primary_key BOOLEAN NOT NULL DEFAULT FALSE,
  is_foreign_key BOOLEAN NOT NULL DEFAULT FALSE,
  is_unique BOOLEAN NOT NULL DEFAULT FALSE,
  is_indexed BOOLEAN NOT NULL DEFAULT FALSE,
  default_value TEXT,
  original_comment TEXT,
  admin_description TEXT,
  semantic_hints TEXT,
  custom_prompt TEXT,
  is_visible BOOLEAN NOT NULL DEFAULT TRUE,
  is_queryable BOOLEAN NOT NULL DEFAULT TRUE,
  is_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
  sensitivity_override TEXT CHECK (sensitivity_override IN ('low', 'medium', 'high', 'critical')),
  masking_strategy_override TEXT CHECK (masking_strategy_override IN ('full', 'partial', 'hash', 'redact', 'tokenize')),
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (table_id, column_name)
);

CREATE INDEX IF NOT EXISTS idx_agent_columns_agent_id ON agent_columns(agent_id);
`

const createAgentRelationshipsTable = `
CREATE TABLE IF NOT EXISTS agent_relationships (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
  source_table_id UUID NOT NULL REFERENCES agent_tables(id) ON DELETE CASCADE,
  source_column_id UUID NOT NULL REFERENCES agent_columns(id) ON DELETE CASCADE,
  target_table_id UUID NOT NULL REFERENCES agent_tables(id) ON DELETE CASCADE,
  target_column_id UUID NOT NULL REFERENCES agent_columns(id) ON DELETE CASCADE,
  relationship_type TEXT NOT NULL DEFAULT 'foreign_key',
  is_inferred BOOLEAN NOT NULL DEFAULT FALSE,
  original_constraint_name TEXT,
  admin_description TEXT,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_agent_relationships_agent_id ON agent_relationships(agent_id);
`

const createAuditEventsTable = `
CREATE TABLE IF NOT EXISTS audit_events (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  agent_id UUID NOT NULL,
  action TEXT NOT NULL,
  tables_count INTEGER NOT NULL DEFAULT 0,
  columns_count INTEGER NOT NULL DEFAULT 0,
  relationships_count INTEGER NOT NULL DEFAULT 0,
  details JSONB,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_events_agent_id ON audit_events(agent_id, created_at DESC);
`

const createQueryHistoryTable = `
CREATE TABLE IF NOT EXISTS query_history (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
  query_text TEXT NOT NULL,
  executed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  success BOOLEAN,
  row_count INTEGER,
  execution_time_ms INTEGER,
  error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_query_history_agent_id ON query_history(agent_id, executed_at DESC);
`
