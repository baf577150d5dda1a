package external

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"agentdb/internal/models"
)

// Pool is a bounded set of connections to one external database.
type Pool interface {
	Dialect() string
	Query(ctx context.Context, sql string, args ...any) (*models.QueryResult, error)
	Ping(ctx context.Context) error
	Close()
}

// ConnectConfig is a decrypted, dialect-neutral description of an external connection.
type ConnectConfig struct {
	Dialect        string
	Host           string
	Port           int
	Database       string
	Username       string
	Password       string
	TLS            *tls.Config
	PoolSize       int
	ConnectTimeout time.Duration
}

// Opener creates a pool without validating it.
type Opener func(ctx context.Context, cfg ConnectConfig) (Pool, error)

// tlsConfig builds client TLS settings from the PEM material stored with a credential.
// Without a CA certificate the server certificate is not verified.
func tlsConfig(cred *models.ExternalCredential) (*tls.Config, error) {
	if !cred.SSLEnabled {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName: cred.Host,
		MinVersion: tls.VersionTLS12,
	}

	if cred.SSLCACert != nil && *cred.SSLCACert != "" {
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM([]byte(*cred.SSLCACert)) {
			return nil, errors.New("invalid ssl_ca_cert")
		}
		cfg.RootCAs = roots
	} else {
		cfg.InsecureSkipVerify = true
	}

	if cred.SSLClientCert != nil && cred.SSLClientKey != nil && *cred.SSLClientCert != "" {
		cert, err := tls.X509KeyPair([]byte(*cred.SSLClientCert), []byte(*cred.SSLClientKey))
		if err != nil {
			return nil, fmt.Errorf("invalid client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
