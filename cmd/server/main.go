package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/detective-ai/gateway/internal/api"
	"github.com/detective-ai/gateway/internal/authapi"
	"github.com/detective-ai/gateway/internal/authflow"
	"github.com/detective-ai/gateway/internal/database"
	"github.com/detective-ai/gateway/internal/detectapi"
	"github.com/detective-ai/gateway/internal/queue"
	"github.com/detective-ai/gateway/internal/session"
	"github.com/detective-ai/gateway/pkg/logging"
	"github.com/detective-ai/gateway/pkg/metrics"
	"github.com/detective-ai/gateway/pkg/tracing"
)

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env.local wins over .env; both are optional.
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			logger.Info("loaded configuration file", "file", name)
		}
	}

	logger.Info("gateway service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("detective-gateway")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Get default values from environment variables, with fallbacks
	portDefault := getEnv("PORT", "8080")
	dbPathDefault := getEnv("DB_PATH", "gateway.db")
	detectURLDefault := getEnv("DETECT_API_URL", "http://localhost:8000")
	authURLDefault := getEnv("AUTH_API_URL", "http://localhost:8001")
	redisAddrDefault := getEnv("REDIS_ADDR", "localhost:6379")
	concurrencyDefault := getEnvInt("WORKER_CONCURRENCY", 4)

	var (
		port        = flag.String("port", portDefault, "Server port (env: PORT)")
		dbPath      = flag.String("db", dbPathDefault, "Database file path (env: DB_PATH)")
		detectURL   = flag.String("detect-url", detectURLDefault, "Detection API URL (env: DETECT_API_URL)")
		authURL     = flag.String("auth-url", authURLDefault, "Auth API URL (env: AUTH_API_URL)")
		redisAddr   = flag.String("redis", redisAddrDefault, "Redis address for the job queue (env: REDIS_ADDR)")
		concurrency = flag.Int("concurrency", concurrencyDefault, "Image worker concurrency (env: WORKER_CONCURRENCY)")
	)
	flag.Parse()

	// Initialize database
	db, err := database.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "database_path", *dbPath)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize metrics
	businessMetrics := metrics.NewBusinessMetrics("gateway")
	dbMetrics := metrics.NewDatabaseMetrics("gateway")
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			dbMetrics.UpdateDBStats(db.Conn())
		}
	}()

	// Remote API clients
	detector, err := detectapi.New(*detectURL)
	if err != nil {
		logger.Error("failed to initialize detection client", "error", err)
		os.Exit(1)
	}
	authClient, err := authapi.New(*authURL)
	if err != nil {
		logger.Error("failed to initialize auth client", "error", err)
		os.Exit(1)
	}

	sessions := session.NewStore(db, logger)
	flow := authflow.New(authClient, sessions, logger)

	// Background image analysis
	queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: *redisAddr})
	defer queueClient.Close()

	worker := queue.NewWorker(queue.WorkerConfig{
		RedisAddr:   *redisAddr,
		Concurrency: *concurrency,
	}, db, detector, businessMetrics)

	go func() {
		if err := worker.Start(); err != nil {
			logger.Error("queue worker failed", "error", err)
			os.Exit(1)
		}
	}()

	// Initialize API handler
	apiHandler := api.NewHandler(api.Config{
		DB:       db,
		Detector: detector,
		Auth:     authClient,
		Flow:     flow,
		Sessions: sessions,
		Queue:    queueClient,
		Metrics:  businessMetrics,
		Logger:   logger,
	})

	// Wrap handler with middleware chain: HTTP logging -> tracing -> handlers
	handler := logging.HTTPLoggingMiddleware(logger)(
		tracing.HTTPMiddleware("gateway")(apiHandler),
	)

	// Image uploads and slow remote analyses need generous write timeouts
	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("gateway service starting",
			"port", *port,
			"database", *dbPath,
			"detect_api", *detectURL,
			"auth_api", *authURL,
			"redis", *redisAddr,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	worker.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
