package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	messagingmodels "whatsmoney/backend/messaging/models"
	"whatsmoney/backend/pkg/config"
	"whatsmoney/backend/pkg/di"
	"whatsmoney/backend/pkg/logger"
	"whatsmoney/backend/pkg/router"
	"whatsmoney/backend/pkg/secrets"
	"whatsmoney/backend/shared/observability"
	usermodels "whatsmoney/backend/user/models"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	appLog := logger.New(logConfig)
	logger.SetGlobal(appLog)

	appLog.Info("starting chat backend", "version", os.Getenv("APP_VERSION"))

	shutdownTracing := observability.SetupTracing("whatsmoney-chat", appLog)
	defer shutdownTracing()

	db, err := config.NewDB()
	if err != nil {
		appLog.LogError(err, "failed to initialize database")
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&usermodels.User{},
		&messagingmodels.Message{},
		&messagingmodels.ConversationSummary{},
	); err != nil {
		appLog.LogError(err, "failed to migrate database")
		os.Exit(1)
	}

	// Composite index covering the pair filter of listing and polling queries
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_pair_created ON messages(sender_id, recipient_id, created_at, id)").Error; err != nil {
		appLog.LogError(err, "failed to create message pair index")
	}

	// Resolve the token-signing secret, preferring Vault
	diConfig := di.DefaultConfig()
	diConfig.LoggerConfig = logConfig
	if vaultManager, err := secrets.NewVaultManager(appLog); err != nil {
		appLog.LogError(err, "failed to initialize vault manager")
	} else if secret, err := vaultManager.JWTSecret(context.Background()); err == nil {
		diConfig.JWTSecret = secret
	} else {
		appLog.Warn("JWT secret not found in vault, using configuration", "error", err.Error())
	}

	container, err := di.New(db, diConfig)
	if err != nil {
		appLog.LogError(err, "failed to initialize dependency container")
		os.Exit(1)
	}

	// Operational repair: recompute conversation summaries on demand
	if os.Getenv("REBUILD_SUMMARIES") == "true" {
		appLog.Info("rebuilding conversation summaries")
		if err := container.MessageRepo.RebuildSummaries(context.Background()); err != nil {
			appLog.LogError(err, "failed to rebuild conversation summaries")
			os.Exit(1)
		}
	}

	r := router.New(container)
	r.SetupRoutes()

	if schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH"); schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	go func() {
		appLog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.LogError(err, "server failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLog.LogError(err, "server forced to shutdown")
	}

	appLog.Info("server exited gracefully")
}
