package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/semlens/semlens-engine/pkg/adapters/catalog"
	catalogmssql "github.com/semlens/semlens-engine/pkg/adapters/catalog/mssql"
	catalogpg "github.com/semlens/semlens-engine/pkg/adapters/catalog/postgres"
	"github.com/semlens/semlens-engine/pkg/config"
	"github.com/semlens/semlens-engine/pkg/database"
	"github.com/semlens/semlens-engine/pkg/graphstore"
	"github.com/semlens/semlens-engine/pkg/handlers"
	"github.com/semlens/semlens-engine/pkg/logging"
	"github.com/semlens/semlens-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("catalog_driver", cfg.Catalog.Driver),
		zap.String("catalog", logging.SanitizeConnectionString(cfg.Catalog.ConnectionString())),
		zap.Bool("graph_store_configured", cfg.GraphStore.IsConfigured()),
		zap.Bool("cache_configured", cfg.Redis.Host != ""))

	ctx := context.Background()

	source, cleanup, err := openCatalogSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open catalog source", zap.String("error", logging.SanitizeError(err)))
	}
	defer cleanup()

	loader := services.NewCatalogLoader(source, logger)

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("error", logging.SanitizeError(err)))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	cacheTTL := time.Duration(cfg.Redis.TTLSeconds) * time.Second
	resolver, err := services.NewResolverService(ctx, loader, redisClient, cacheTTL, logger)
	if err != nil {
		logger.Fatal("Failed to build initial graph snapshot", zap.Error(err))
	}

	if cfg.GraphStore.IsConfigured() {
		if err := persistGraphs(ctx, cfg, resolver, logger); err != nil {
			logger.Fatal("Failed to persist graphs", zap.String("error", logging.SanitizeError(err)))
		}
	}

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	resolverHandler := handlers.NewResolverHandler(resolver, logger)
	resolverHandler.RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting semlens-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// openCatalogSource builds the catalog source for the configured driver.
// For postgres it also applies pending catalog migrations first.
func openCatalogSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (catalog.Source, func(), error) {
	if err := catalog.ValidateDriver(cfg.Catalog.Driver); err != nil {
		return nil, nil, err
	}

	if cfg.Catalog.Driver == catalog.DriverMSSQL {
		source, err := catalogmssql.NewSource(ctx, cfg.Catalog.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		return source, func() { _ = source.Close() }, nil
	}

	sqlDB, err := sql.Open("pgx", cfg.Catalog.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(sqlDB, "./migrations", logger); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	_ = sqlDB.Close()

	db, err := database.NewConnection(ctx, &cfg.Catalog)
	if err != nil {
		return nil, nil, err
	}
	source := catalogpg.NewSource(db.Pool)
	return source, db.Close, nil
}

// persistGraphs writes the freshly built schema and semantic graphs to the
// shared graph store, replacing any previous builds.
func persistGraphs(ctx context.Context, cfg *config.Config, resolver services.ResolverService, logger *zap.Logger) error {
	client, err := graphstore.NewClient(ctx, &cfg.GraphStore)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(ctx) }()

	adapter := graphstore.NewAdapter(client.Runner(), logger)
	opts := graphstore.PersistOptions{BatchSize: cfg.GraphStore.BatchSize, Overwrite: true}

	if err := adapter.Persist(ctx, resolver.SchemaGraph(), "schema", opts); err != nil {
		return err
	}
	if err := adapter.Persist(ctx, resolver.SemanticGraph(), "semantic", opts); err != nil {
		return err
	}
	logger.Info("Graphs persisted to shared store")
	return nil
}
