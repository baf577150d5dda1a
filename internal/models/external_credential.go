package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DialectPostgres = "postgresql"
	DialectMySQL    = "mysql"
)

const (
	DefaultPoolSize         = 5
	DefaultConnectTimeoutMs = 5000
)

// ExternalCredential holds the connection parameters of the customer database bound to an agent.
type ExternalCredential struct {
	ID                        uuid.UUID  `json:"id"`
	AgentID                   uuid.UUID  `json:"agent_id"`
	Dialect                   string     `json:"db_type"` // 'postgresql' or 'mysql'
	Host                      string     `json:"host"`
	Port                      int        `json:"port"`
	DatabaseName              string     `json:"database_name"`
	Username                  string     `json:"username"`
	EncryptedPassword         string     `json:"-"` // Don't expose encrypted password
	SSLEnabled                bool       `json:"ssl_enabled"`
	SSLCACert                 *string    `json:"ssl_ca_cert,omitempty"`
	SSLClientCert             *string    `json:"ssl_client_cert,omitempty"`
	SSLClientKey              *string    `json:"-"`
	PoolSize                  int        `json:"connection_pool_size"`
	ConnectTimeoutMs          int        `json:"connection_timeout_ms"`
	SchemaInclude             []string   `json:"schema_filter_include"`
	SchemaExclude             []string   `json:"schema_filter_exclude"`
	LastConnectionTestAt      *time.Time `json:"last_connection_test_at,omitempty"`
	LastConnectionTestSuccess *bool      `json:"last_connection_test_success,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

func (c *ExternalCredential) Prepare() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.ConnectTimeoutMs <= 0 {
		c.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if c.SchemaInclude == nil {
		c.SchemaInclude = []string{}
	}
	if c.SchemaExclude == nil {
		c.SchemaExclude = []string{}
	}
}

// PoolKey identifies the external pool shared by every credential pointing at the same database.
// Credentials that differ only in username or password share a pool.
func (c *ExternalCredential) PoolKey() string {
	return fmt.Sprintf("%s:%d:%s", c.Host, c.Port, c.DatabaseName)
}

func (c *ExternalCredential) ConnectTimeout() time.Duration {
	if c.ConnectTimeoutMs <= 0 {
		return DefaultConnectTimeoutMs * time.Millisecond
	}
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func IsSupportedDialect(dialect string) bool {
	return dialect == DialectPostgres || dialect == DialectMySQL
}
