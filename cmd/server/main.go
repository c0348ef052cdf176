package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.pilab.hu/wabroker/api/echo"
	"go.pilab.hu/wabroker/browser"
	rediscache "go.pilab.hu/wabroker/cache/redis"
	"go.pilab.hu/wabroker/config"
	"go.pilab.hu/wabroker/internal/server"
	"go.pilab.hu/wabroker/log"
	"go.pilab.hu/wabroker/middleware"
	"go.pilab.hu/wabroker/mongodb"
	"go.pilab.hu/wabroker/notify"
	"go.pilab.hu/wabroker/services"
	"go.pilab.hu/wabroker/tracing"
)

var (
	appLogger      log.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize Logger
	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)
	appLogger.Info(context.Background(), "Starting wabroker server...")
	appLogger.Info(context.Background(), "Configuration loaded", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"redis_addr":    cfg.RedisAddr,
		"target_url":    cfg.WATargetURL,
		"headless":      cfg.BrowserHeadless,
		"log_level":     cfg.LogLevel,
		"otel_service":  cfg.OtelServiceName,
	})

	// Initialize OpenTelemetry TracerProvider
	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(context.Background(), "Failed to initialize TracerProvider", err, nil)
	}
	tracerProvider = tp

	// --- Initialize Dependencies ---
	ctx := context.Background()
	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", initErr, nil)
	}
	db := mongodb.GetDB()

	sessionRepo, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize SessionRepository", err, nil)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
		appLogger.Fatal(ctx, "Failed to connect to Redis", pingErr, nil)
	}
	sessionCache := rediscache.NewSessionCache(redisClient, cfg.RedisPrefix, cfg.SessionCacheTTL())

	browserCfg := browser.DefaultConfig()
	browserCfg.Headless = cfg.BrowserHeadless
	driver, err := browser.NewRodDriver(browserCfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to start browser driver", err, nil)
	}

	// Services
	svcCfg := services.DefaultConfig()
	svcCfg.TargetURL = cfg.WATargetURL
	resources := services.NewResourceManager(driver, svcCfg.TargetURL, svcCfg.LaunchAttempts, svcCfg.LaunchBackoff)
	store := services.NewSessionStore(sessionRepo, sessionCache)
	hub := notify.NewHub(svcCfg.NotifyAttempts, svcCfg.NotifyBackoff)
	monitor := services.NewScanMonitor(store, resources, hub, svcCfg)
	sessionService := services.NewSessionService(svcCfg, store, resources, monitor)

	// HTTP API
	sessionAPI := echo.NewSessionAPI(sessionService, hub)
	webhookAPI := echo.NewWebhookAPI(sessionService, hub, cfg.WebhookAPIKey)
	requireAuth := middleware.RequireAuth([]byte(cfg.JWTAccessSecret))

	httpServer = server.NewHTTPServer(cfg, appLogger, sessionAPI, webhookAPI, requireAuth)
	go func() {
		appLogger.Info(context.Background(), fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(context.Background(), "Failed to start HTTP server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(context.Background(), fmt.Sprintf("Received signal: %v. Shutting down...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Tear down browser automation before the HTTP server so no handler
	// can hand out a handle that is being released underneath it.
	if err := sessionService.Shutdown(); err != nil {
		appLogger.Error(shutdownCtx, "Session service shutdown error", err, nil)
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "HTTP server shutdown error", err, nil)
		}
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err, nil)
		}
	}

	mongodb.CloseMongoDB(shutdownCtx)

	// The fast store goes last: cache invalidations issued during the
	// drain above still need a live connection.
	if err := sessionCache.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Redis disconnect error", err, nil)
	}

	appLogger.Info(context.Background(), "Server shut down gracefully.")
}
