package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agentdb/internal/external"
	"agentdb/internal/models"
	"agentdb/internal/repositories"
)

type CredentialStore interface {
	Upsert(ctx context.Context, cred *models.ExternalCredential) error
	GetByAgentID(ctx context.Context, agentID uuid.UUID) (*models.ExternalCredential, error)
	Delete(ctx context.Context, agentID uuid.UUID) (bool, error)
	RecordConnectionTest(ctx context.Context, agentID uuid.UUID, success bool, at time.Time) error
}

type SecretCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// PoolProvider is the slice of *external.PoolManager the services depend on.
type PoolProvider interface {
	GetPool(ctx context.Context, cred *models.ExternalCredential) (external.Pool, error)
	Open(ctx context.Context, cred *models.ExternalCredential) (external.Pool, error)
	Execute(ctx context.Context, pool external.Pool, sql string, args ...any) (*models.QueryResult, error)
	Evict(cred *models.ExternalCredential)
}

// connectionCacheTTL matches the lifetime other platform components expect for connection:<agent>.
const connectionCacheTTL = 300 * time.Second

type ConnectionService struct {
	creds   CredentialStore
	secrets SecretCodec
	pools   PoolProvider
	cache   repositories.Cache
	log     *zap.Logger
}

func NewConnectionService(creds CredentialStore, secrets SecretCodec, pools PoolProvider, cache repositories.Cache, log *zap.Logger) *ConnectionService {
	return &ConnectionService{
		creds:   creds,
		secrets: secrets,
		pools:   pools,
		cache:   cache,
		log:     log,
	}
}

type SaveCredentialRequest struct {
	Dialect          string   `json:"db_type" binding:"required,oneof=postgresql mysql"`
	Host             string   `json:"host" binding:"required"`
	Port             int      `json:"port" binding:"required,min=1,max=65535"`
	DatabaseName     string   `json:"database_name" binding:"required"`
	Username         string   `json:"username" binding:"required"`
	Password         string   `json:"password" binding:"required"`
	SSLEnabled       bool     `json:"ssl_enabled"`
	SSLCACert        *string  `json:"ssl_ca_cert"`
	SSLClientCert    *string  `json:"ssl_client_cert"`
	SSLClientKey     *string  `json:"ssl_client_key"`
	PoolSize         int      `json:"connection_pool_size" binding:"omitempty,min=1,max=100"`
	ConnectTimeoutMs int      `json:"connection_timeout_ms" binding:"omitempty,min=100,max=120000"`
	SchemaInclude    []string `json:"schema_filter_include"`
	SchemaExclude    []string `json:"schema_filter_exclude"`
}

type ConnectionTestResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMs int64  `json:"latencyMs"`
}

// cachedCredential keeps the secret fields that are hidden from API responses.
type cachedCredential struct {
	models.ExternalCredential
	EncryptedPassword string  `json:"encrypted_password"`
	SSLClientKey      *string `json:"ssl_client_key,omitempty"`
}

func (s *ConnectionService) SaveCredential(ctx context.Context, agentID uuid.UUID, req *SaveCredentialRequest) (*models.ExternalCredential, error) {
	if !models.IsSupportedDialect(req.Dialect) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, req.Dialect)
	}

	encrypted, err := s.secrets.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	previous, err := s.creds.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	cred := &models.ExternalCredential{
		AgentID:           agentID,
		Dialect:           req.Dialect,
		Host:              req.Host,
		Port:              req.Port,
		DatabaseName:      req.DatabaseName,
		Username:          req.Username,
		EncryptedPassword: encrypted,
		SSLEnabled:        req.SSLEnabled,
		SSLCACert:         req.SSLCACert,
		SSLClientCert:     req.SSLClientCert,
		SSLClientKey:      req.SSLClientKey,
		PoolSize:          req.PoolSize,
		ConnectTimeoutMs:  req.ConnectTimeoutMs,
		SchemaInclude:     req.SchemaInclude,
		SchemaExclude:     req.SchemaExclude,
	}
	if previous != nil {
		cred.ID = previous.ID
	}

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}

	// the pool of the old target and any pool opened with the old password must go
	if previous != nil {
		s.pools.Evict(previous)
	}
	s.pools.Evict(cred)
	s.invalidate(ctx, agentID)

	s.log.Info("external credentials saved",
		zap.String("agent_id", agentID.String()),
		zap.String("dialect", cred.Dialect),
		zap.String("target", cred.PoolKey()))
	return cred, nil
}

// GetCredential returns the agent's credential, reading through the connection cache.
func (s *ConnectionService) GetCredential(ctx context.Context, agentID uuid.UUID) (*models.ExternalCredential, error) {
	key := repositories.ConnectionKey(agentID)

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("connection cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var cached cachedCredential
		if err := json.Unmarshal(raw, &cached); err == nil {
			cred := cached.ExternalCredential
			cred.EncryptedPassword = cached.EncryptedPassword
			cred.SSLClientKey = cached.SSLClientKey
			return &cred, nil
		}
	}

	cred, err := s.creds.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if cred == nil {
		return nil, ErrCredentialsNotFound
	}

	raw, err := json.Marshal(cachedCredential{
		ExternalCredential: *cred,
		EncryptedPassword:  cred.EncryptedPassword,
		SSLClientKey:       cred.SSLClientKey,
	})
	if err == nil {
		if err := s.cache.Set(ctx, key, raw, connectionCacheTTL); err != nil {
			s.log.Warn("connection cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return cred, nil
}

func (s *ConnectionService) DeleteCredential(ctx context.Context, agentID uuid.UUID) error {
	cred, err := s.creds.GetByAgentID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if cred == nil {
		return ErrCredentialsNotFound
	}

	if _, err := s.creds.Delete(ctx, agentID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	s.pools.Evict(cred)
	s.invalidate(ctx, agentID)
	return nil
}

// TestConnection opens a fresh, uncached pool and records the outcome on the credential.
// An unreachable database is reported in the result, not as an error.
func (s *ConnectionService) TestConnection(ctx context.Context, agentID uuid.UUID) (*ConnectionTestResult, error) {
	cred, err := s.GetCredential(ctx, agentID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pool, err := s.pools.Open(ctx, cred)
	latency := time.Since(start).Milliseconds()

	result := &ConnectionTestResult{Success: err == nil, LatencyMs: latency}
	if err != nil {
		result.Message = err.Error()
	} else {
		pool.Close()
		result.Message = "Connection successful"
	}

	if recErr := s.creds.RecordConnectionTest(ctx, agentID, result.Success, time.Now()); recErr != nil {
		s.log.Warn("failed to record connection test", zap.String("agent_id", agentID.String()), zap.Error(recErr))
	}
	s.invalidate(ctx, agentID)

	s.log.Info("connection tested",
		zap.String("agent_id", agentID.String()),
		zap.Bool("success", result.Success),
		zap.Int64("latency_ms", latency))
	return result, nil
}

// Pool resolves the credential of an agent and returns its shared pool.
func (s *ConnectionService) Pool(ctx context.Context, agentID uuid.UUID) (*models.ExternalCredential, external.Pool, error) {
	cred, err := s.GetCredential(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	if !models.IsSupportedDialect(cred.Dialect) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, cred.Dialect)
	}

	pool, err := s.pools.GetPool(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	return cred, pool, nil
}

func (s *ConnectionService) invalidate(ctx context.Context, agentID uuid.UUID) {
	key := repositories.ConnectionKey(agentID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("connection cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
