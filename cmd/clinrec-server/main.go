package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinrec/clinrec/internal/config"
	"github.com/clinrec/clinrec/internal/domain/audittrail"
	"github.com/clinrec/clinrec/internal/domain/fieldcatalog"
	"github.com/clinrec/clinrec/internal/domain/identity"
	"github.com/clinrec/clinrec/internal/domain/reconcile"
	"github.com/clinrec/clinrec/internal/domain/records"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/blobstore"
	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/internal/platform/extractq"
	"github.com/clinrec/clinrec/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinrec-server",
		Short: "Clinical records platform API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Extraction queue
	var queue *extractq.Queue
	if cfg.RedisURL != "" {
		queue, err = extractq.New(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer queue.Close()
		logger.Info().Msg("connected to extraction queue")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", db.HealthHandler(pool, queueRedisClient(queue)))

	// Domain wiring
	fieldSvc := fieldcatalog.NewService(fieldcatalog.NewRepoPG(pool))
	fieldcatalog.NewHandler(fieldSvc).RegisterRoutes(apiV1)

	store := records.NewStorePG(pool)
	recordsSvc := records.NewService(store)
	records.NewHandler(recordsSvc).RegisterRoutes(apiV1)

	auditSvc := audittrail.NewService(audittrail.NewRepoPG(pool))
	audittrail.NewHandler(auditSvc).RegisterRoutes(apiV1)

	identitySvc := identity.NewService(identity.NewRepoPG(pool))
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	blobstore.NewHandler(blobstore.NewMemoryStore()).RegisterRoutes(apiV1)

	txRunner := &db.PoolTxRunner{Pool: pool}
	var jobQueue reconcile.JobQueue = queue
	if queue == nil {
		jobQueue = noQueue{}
	}
	reconcileSvc := reconcile.NewService(
		reconcile.NewRepoPG(pool), store, auditSvc, jobQueue, txRunner, logger)
	reconcile.NewHandler(reconcileSvc).RegisterRoutes(apiV1)

	// Extraction worker
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if queue != nil {
		extractor := reconcile.NewHTTPExtractor(cfg.ExtractorURL, logger)
		worker := reconcile.NewWorker(reconcileSvc, queue, extractor, logger)
		consumer := fmt.Sprintf("clinrec-%d", os.Getpid())
		go func() {
			if err := worker.Run(workerCtx, consumer); err != nil && workerCtx.Err() == nil {
				logger.Error().Err(err).Msg("extraction worker stopped")
			}
		}()
		logger.Info().Str("consumer", consumer).Msg("extraction worker started")
	} else {
		logger.Warn().Msg("REDIS_URL not set, imports will stay processing-pending")
	}

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	stopWorker()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func queueRedisClient(q *extractq.Queue) *redis.Client {
	if q == nil {
		return nil
	}
	return q.Client()
}

// noQueue rejects submissions when no queue is configured, instead of
// silently accepting imports nothing will ever process.
type noQueue struct{}

func (noQueue) Enqueue(ctx context.Context, _ uuid.UUID) error {
	return fmt.Errorf("extraction queue is not configured")
}
