package setup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lumapix/lumapix/internal/database"
	"github.com/lumapix/lumapix/internal/database/migrations"
	"github.com/lumapix/lumapix/internal/recommend"
	"github.com/lumapix/lumapix/internal/redis"
	"github.com/lumapix/lumapix/internal/scheduler"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/lumapix/lumapix/internal/setup/telemetry"
	"github.com/lumapix/lumapix/internal/similarity"
	"github.com/lumapix/lumapix/internal/vector"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	RedisManager *redis.Manager     // Redis connection manager
	Index        *vector.Index      // Embedding vector index
	Scorer       *similarity.Scorer // Hybrid photo similarity scorer
	Engine       *recommend.Engine  // Recommendation engine
	Scheduler    *scheduler.Scheduler
	Queue        *scheduler.Queue
	StateStore   *scheduler.StateStore
	Monitor      *scheduler.Monitor
	LogManager   *telemetry.Manager // Log management system
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for the various caches
	redisManager := redis.NewManager(&cfg.Redis, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.PostgreSQL, dbLogger)
	if err != nil {
		return nil, err
	}

	// Vector index loads its snapshot from disk if one exists
	index := vector.New(&cfg.Vector, db.Model().Photo(), logger)

	// Similarity scorer with its pairwise Redis cache
	similarityClient, err := redisManager.GetClient(redis.SimilarityDBIndex)
	if err != nil {
		return nil, err
	}

	pairCache := similarity.NewPairCache(
		similarityClient, time.Duration(cfg.Similarity.CacheTTLMinutes)*time.Minute, logger,
	)
	scorer := similarity.NewScorer(index, pairCache, &cfg.Similarity, logger)

	// Recommendation engine with display cache and scheduler wiring
	recClient, err := redisManager.GetClient(redis.RecommendationDBIndex)
	if err != nil {
		return nil, err
	}

	recTTL := time.Duration(cfg.Scheduler.RecommendationTTLMinutes) * time.Minute
	recCache := recommend.NewCache(recClient, recTTL, logger)

	schedulerClient, err := redisManager.GetClient(redis.SchedulerDBIndex)
	if err != nil {
		return nil, err
	}

	queue := scheduler.NewQueue(schedulerClient, logger)
	stateStore := scheduler.NewStateStore(schedulerClient, recTTL, logger)

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return nil, err
	}

	monitor := scheduler.NewMonitor(statusClient, logger)

	sched := scheduler.New(queue, stateStore, recCache, logger)
	engine := recommend.NewEngine(recommend.NewStore(db), scorer, recCache, sched, &cfg.Scoring, logger)

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		Index:        index,
		Scorer:       scorer,
		Engine:       engine,
		Scheduler:    sched,
		Queue:        queue,
		StateStore:   stateStore,
		Monitor:      monitor,
		LogManager:   logManager,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Persist the vector index before shutting anything else down
	if err := s.Index.Save(); err != nil {
		s.Logger.Error("Failed to save vector index", zap.Error(err))
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	var db database.Client

	unapplied := ms.Unapplied()
	if len(unapplied) > 0 {
		log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

		var response string

		_, _ = fmt.Scanln(&response)

		if response == "y" || response == "Y" {
			tempDB.Close()

			db, err = database.NewConnection(ctx, cfg, dbLogger, true)
		} else {
			log.Fatalf("Closing program due to incomplete migrations")
		}
	} else {
		db = tempDB
	}

	return db, err
}
