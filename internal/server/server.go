package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agentdb/internal/config"
	"agentdb/internal/database"
	"agentdb/internal/external"
	"agentdb/internal/handlers"
	"agentdb/internal/middlewares"
	"agentdb/internal/repositories"
	"agentdb/internal/routes"
	"agentdb/internal/services"
	"agentdb/internal/utils"
)

// App holds the process-wide dependencies shared by the HTTP server and the CLI.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	DB    *pgxpool.Pool
	Redis *redis.Client // nil when REDIS_ENABLED=false
	Pools *external.PoolManager

	Connections *services.ConnectionService
	Schema      *services.SchemaService
	Metadata    *services.MetadataService
	Query       *services.QueryService
}

// NewApp connects to the metadata database and redis, applies migrations and wires services.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := database.EnsureDatabaseExists(ctx, cfg.DB, log); err != nil {
		return nil, err
	}

	db, err := database.Connect(ctx, cfg.DB, log)
	if err != nil {
		return nil, err
	}

	if err := database.RunMigrations(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}

	app := &App{Config: cfg, Log: log, DB: db}

	var cache repositories.Cache = repositories.NoopCache{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// fail fast with a clear message
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			db.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

		app.Redis = rdb
		cache = repositories.NewRedisRepository(rdb)
	} else {
		log.Info("redis disabled, cache invalidation is a no-op")
	}

	codec, err := utils.NewSecretCodec(cfg.EncryptionKey)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Dependency injection
	credRepo := repositories.NewCredentialRepository(db)
	metadataRepo := repositories.NewMetadataRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	historyRepo := repositories.NewQueryHistoryRepository(db)

	app.Pools = external.NewPoolManager(codec, cfg.Query.Timeout, log.Named("external"))
	app.Connections = services.NewConnectionService(credRepo, codec, app.Pools, cache, log.Named("connection"))
	app.Schema = services.NewSchemaService(app.Connections, app.Pools, metadataRepo, cache, auditRepo, log.Named("schema"))
	app.Metadata = services.NewMetadataService(metadataRepo, cache, auditRepo, cfg.CacheTTL, log.Named("metadata"))
	app.Query = services.NewQueryService(app.Connections, app.Pools, historyRepo, cfg.Query, log.Named("query"))

	return app, nil
}

// Close releases external pools first, then redis and the metadata pool.
func (a *App) Close() {
	if a.Pools != nil {
		a.Pools.CloseAll()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// NewRouter builds the gin engine serving the agent API.
func NewRouter(app *App) *gin.Engine {
	if app.Config.LogJSON {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestLogger(app.Log.Named("http")))
	router.Use(cors.New(corsConfig(app.Config.CORSOrigins)))

	routes.RegisterRoutes(router, routes.Handlers{
		Connection: handlers.NewConnectionHandler(app.Connections),
		Schema:     handlers.NewSchemaHandler(app.Schema, app.Metadata),
		Query:      handlers.NewQueryHandler(app.Query),
	}, app.Config.APIToken)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func NewServer(app *App) *http.Server {
	// Create and configure the HTTP server. Exports stream for as long as they take, so there is
	// no write timeout.
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config.Port),
		Handler:           NewRouter(app),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
}
