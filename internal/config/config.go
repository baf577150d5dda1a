package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Config struct {
	Port int

	DB       DBConfig
	Redis    RedisConfig
	Query    QueryConfig
	CacheTTL time.Duration

	EncryptionKey string
	APIToken      string // bearer token required on /api/v1, empty disables the check
	LogJSON       bool
	CORSOrigins   []string
}

// DBConfig describes the platform's own metadata database.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type QueryConfig struct {
	Timeout         time.Duration
	ExportChunkSize int
	DefaultPageSize int
	MaxPageSize     int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "300s")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("QUERY_TIMEOUT", "30s")
	v.SetDefault("EXPORT_CHUNK_SIZE", 100)
	v.SetDefault("DEFAULT_PAGE_SIZE", 50)
	v.SetDefault("MAX_PAGE_SIZE", 1000)
	v.SetDefault("CORS_ORIGINS", "*")
}

// Load reads configuration from the environment (and .env, loaded on import).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port: v.GetInt("PORT"),
		DB: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Username: v.GetString("DB_USERNAME"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_DATABASE"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Query: QueryConfig{
			Timeout:         v.GetDuration("QUERY_TIMEOUT"),
			ExportChunkSize: v.GetInt("EXPORT_CHUNK_SIZE"),
			DefaultPageSize: v.GetInt("DEFAULT_PAGE_SIZE"),
			MaxPageSize:     v.GetInt("MAX_PAGE_SIZE"),
		},
		CacheTTL:      v.GetDuration("CACHE_TTL"),
		EncryptionKey: v.GetString("ENCRYPTION_KEY"),
		APIToken:      v.GetString("API_TOKEN"),
		LogJSON:       v.GetBool("LOG_JSON"),
		CORSOrigins:   splitList(v.GetString("CORS_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Username == "" {
		return fmt.Errorf("DB_USERNAME environment variable is required")
	}
	if c.DB.Password == "" {
		return fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	if c.DB.Database == "" {
		return fmt.Errorf("DB_DATABASE environment variable is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY environment variable is required")
	}
	if c.Query.ExportChunkSize <= 0 {
		return fmt.Errorf("EXPORT_CHUNK_SIZE must be positive, got %d", c.Query.ExportChunkSize)
	}
	if c.Query.DefaultPageSize <= 0 || c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return fmt.Errorf("invalid page size bounds: default %d, max %d",
			c.Query.DefaultPageSize, c.Query.MaxPageSize)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
