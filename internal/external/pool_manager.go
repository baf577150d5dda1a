package external

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"agentdb/internal/models"
	"agentdb/internal/utils"
)

// Decrypter recovers a stored credential secret.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// PoolManager owns the process-wide cache of external pools keyed by host:port:database.
type PoolManager struct {
	mu      sync.Mutex
	pools   map[string]Pool
	openers map[string]Opener

	secrets      Decrypter
	queryTimeout time.Duration
	log          *zap.Logger
}

func NewPoolManager(secrets Decrypter, queryTimeout time.Duration, log *zap.Logger) *PoolManager {
	return &PoolManager{
		pools: make(map[string]Pool),
		openers: map[string]Opener{
			models.DialectPostgres: openPostgres,
			models.DialectMySQL:    openMySQL,
		},
		secrets:      secrets,
		queryTimeout: queryTimeout,
		log:          log,
	}
}

// SetOpener replaces the pool constructor for a dialect.
func (m *PoolManager) SetOpener(dialect string, opener Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openers[dialect] = opener
}

// GetPool returns the cached pool for the credential, opening and validating one on first use.
func (m *PoolManager) GetPool(ctx context.Context, cred *models.ExternalCredential) (Pool, error) {
	key := cred.PoolKey()

	m.mu.Lock()
	if p, ok := m.pools[key]; ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	// Opening happens outside the lock; a concurrent caller may win the race.
	p, err := m.Open(ctx, cred)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.pools[key]; ok {
		m.mu.Unlock()
		p.Close()
		return existing, nil
	}
	m.pools[key] = p
	m.mu.Unlock()

	m.log.Info("external pool created",
		zap.String("pool", key),
		zap.String("dialect", cred.Dialect),
		zap.Int("size", cred.PoolSize))
	return p, nil
}

// Open creates and validates a pool that is not cached. The caller closes it.
func (m *PoolManager) Open(ctx context.Context, cred *models.ExternalCredential) (Pool, error) {
	key := cred.PoolKey()

	m.mu.Lock()
	opener, ok := m.openers[cred.Dialect]
	m.mu.Unlock()
	if !ok {
		return nil, &ConnectionError{Key: key, Err: fmt.Errorf("unsupported database type: %s", cred.Dialect)}
	}

	password, err := m.secrets.Decrypt(cred.EncryptedPassword)
	if err != nil {
		return nil, &ConnectionError{Key: key, Err: fmt.Errorf("failed to decrypt password: %w", err)}
	}

	tlsCfg, err := tlsConfig(cred)
	if err != nil {
		return nil, &ConnectionError{Key: key, Err: err}
	}

	poolSize := cred.PoolSize
	if poolSize <= 0 {
		poolSize = models.DefaultPoolSize
	}

	p, err := opener(ctx, ConnectConfig{
		Dialect:        cred.Dialect,
		Host:           cred.Host,
		Port:           cred.Port,
		Database:       cred.DatabaseName,
		Username:       cred.Username,
		Password:       password,
		TLS:            tlsCfg,
		PoolSize:       poolSize,
		ConnectTimeout: cred.ConnectTimeout(),
	})
	if err != nil {
		return nil, &ConnectionError{Key: key, Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, cred.ConnectTimeout())
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		m.log.Warn("external pool validation failed", zap.String("pool", key), zap.Error(err))
		return nil, &ConnectionError{Key: key, Err: err}
	}
	return p, nil
}

// Execute runs a statement on the pool. Driver failures are wrapped in a QueryError.
func (m *PoolManager) Execute(ctx context.Context, pool Pool, sql string, args ...any) (*models.QueryResult, error) {
	if m.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := pool.Query(ctx, sql, args...)
	if err != nil {
		m.log.Warn("external query failed",
			zap.String("dialect", pool.Dialect()),
			zap.String("sql", utils.TruncateSQL(sql)),
			zap.Error(err))
		return nil, &QueryError{SQL: sql, Err: err}
	}
	result.ExecutionTime = time.Since(start).Milliseconds()

	m.log.Debug("external query executed",
		zap.String("sql", utils.TruncateSQL(sql)),
		zap.Int("rows", result.RowCount),
		zap.Int64("ms", result.ExecutionTime))
	return result, nil
}

// Evict closes and forgets the pool serving the credential, if any.
func (m *PoolManager) Evict(cred *models.ExternalCredential) {
	key := cred.PoolKey()

	m.mu.Lock()
	p, ok := m.pools[key]
	delete(m.pools, key)
	m.mu.Unlock()

	if ok {
		p.Close()
		m.log.Info("external pool evicted", zap.String("pool", key))
	}
}

// CloseAll closes every cached pool. Called on shutdown.
func (m *PoolManager) CloseAll() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]Pool)
	m.mu.Unlock()

	for key, p := range pools {
		p.Close()
		m.log.Debug("external pool closed", zap.String("pool", key))
	}
}

// Size returns the number of cached pools.
func (m *PoolManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}

// Executor binds a pool to the manager so callers can run statements without holding both.
type Executor struct {
	m    *PoolManager
	pool Pool
}

func (m *PoolManager) Executor(pool Pool) *Executor {
	return &Executor{m: m, pool: pool}
}

func (e *Executor) Execute(ctx context.Context, sql string, args ...any) (*models.QueryResult, error) {
	return e.m.Execute(ctx, e.pool, sql, args...)
}

func (e *Executor) Dialect() string { return e.pool.Dialect() }
