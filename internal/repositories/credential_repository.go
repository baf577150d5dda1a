package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentdb/internal/models"
)

type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

const credentialColumns = `
	id, agent_id, db_type, host, port, database_name, username, encrypted_password,
	ssl_enabled, ssl_ca_cert, ssl_client_cert, ssl_client_key,
	connection_pool_size, connection_timeout_ms, schema_filter_include, schema_filter_exclude,
	last_connection_test_at, last_connection_test_success, created_at, updated_at
`

func scanCredential(row pgx.Row) (*models.ExternalCredential, error) {
	var c models.ExternalCredential
	err := row.Scan(
		&c.ID,
		&c.AgentID,
		&c.Dialect,
		&c.Host,
		&c.Port,
		&c.DatabaseName,
		&c.Username,
		&c.EncryptedPassword,
		&c.SSLEnabled,
		&c.SSLCACert,
		&c.SSLClientCert,
		&c.SSLClientKey,
		&c.PoolSize,
		&c.ConnectTimeoutMs,
		&c.SchemaInclude,
		&c.SchemaExclude,
		&c.LastConnectionTestAt,
		&c.LastConnectionTestSuccess,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert stores the single credential of an agent, replacing any previous one.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.ExternalCredential) error {
	cred.Prepare()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ensureAgent(ctx, tx, cred.AgentID); err != nil {
		return err
	}

	query := `
		INSERT INTO agent_external_db_credentials (
			id, agent_id, db_type, host, port, database_name, username, encrypted_password,
			ssl_enabled, ssl_ca_cert, ssl_client_cert, ssl_client_key,
			connection_pool_size, connection_timeout_ms, schema_filter_include, schema_filter_exclude,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (agent_id) DO UPDATE SET
			db_type = EXCLUDED.db_type,
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			database_name = EXCLUDED.database_name,
			username = EXCLUDED.username,
			encrypted_password = EXCLUDED.encrypted_password,
			ssl_enabled = EXCLUDED.ssl_enabled,
			ssl_ca_cert = EXCLUDED.ssl_ca_cert,
			ssl_client_cert = EXCLUDED.ssl_client_cert,
			ssl_client_key = EXCLUDED.ssl_client_key,
			connection_pool_size = EXCLUDED.connection_pool_size,
			connection_timeout_ms = EXCLUDED.connection_timeout_ms,
			schema_filter_include = EXCLUDED.schema_filter_include,
			schema_filter_exclude = EXCLUDED.schema_filter_exclude,
			last_connection_test_at = NULL,
			last_connection_test_success = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		cred.ID,
		cred.AgentID,
		cred.Dialect,
		cred.Host,
		cred.Port,
		cred.DatabaseName,
		cred.Username,
		cred.EncryptedPassword,
		cred.SSLEnabled,
		cred.SSLCACert,
		cred.SSLClientCert,
		cred.SSLClientKey,
		cred.PoolSize,
		cred.ConnectTimeoutMs,
		cred.SchemaInclude,
		cred.SchemaExclude,
	).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return err
	}

	cred.LastConnectionTestAt = nil
	cred.LastConnectionTestSuccess = nil
	return tx.Commit(ctx)
}

func (r *CredentialRepository) GetByAgentID(ctx context.Context, agentID uuid.UUID) (*models.ExternalCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM agent_external_db_credentials WHERE agent_id = $1`

	cred, err := scanCredential(r.pool.QueryRow(ctx, query, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cred, nil
}

func (r *CredentialRepository) Delete(ctx context.Context, agentID uuid.UUID) (bool, error) {
	query := `DELETE FROM agent_external_db_credentials WHERE agent_id = $1`
	tag, err := r.pool.Exec(ctx, query, agentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CredentialRepository) RecordConnectionTest(ctx context.Context, agentID uuid.UUID, success bool, at time.Time) error {
	query := `
		UPDATE agent_external_db_credentials
		SET last_connection_test_at = $2, last_connection_test_success = $3
		WHERE agent_id = $1
	`
	_, err := r.pool.Exec(ctx, query, agentID, at, success)
	return err
}

// ensureAgent registers the agent row owned by the platform when it does not exist yet.
func ensureAgent(ctx context.Context, db DBTX, agentID uuid.UUID) error {
	query := `INSERT INTO agents (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	_, err := db.Exec(ctx, query, agentID, agentID.String())
	return err
}
