package main

import (
	"context"
	_ "embed"
	"log/slog"
	"os"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tinywideclouds/go-notification-relay/internal/auth"
	"github.com/tinywideclouds/go-notification-relay/internal/fanout"
	"github.com/tinywideclouds/go-notification-relay/internal/platform/apns"
	"github.com/tinywideclouds/go-notification-relay/internal/platform/fcm"
	"github.com/tinywideclouds/go-notification-relay/internal/storage/cache"
	"github.com/tinywideclouds/go-notification-relay/internal/storage/gormstore"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay/config"
	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

//go:embed local.yaml
var configFile []byte

func main() {
	_ = godotenv.Load()

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-notification-relay")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Storage ---
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Database connection failed", "err", err)
		os.Exit(1)
	}
	store := gormstore.New(db)
	if err := store.Migrate(); err != nil {
		logger.Error("Database migration failed", "err", err)
		os.Exit(1)
	}

	// --- Token Store (Decorated) ---
	var tokenStore dispatch.TokenStore = store
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		tokenStore = cache.NewCachedTokenStore(store, redisClient, 24*time.Hour)
		logger.Info("TokenStore upgraded", "type", "redis_cached_gorm")
	} else {
		tokenStore = cache.NewCachedTokenStore(store, cache.NewMemoryClient(time.Hour), time.Hour)
		logger.Info("TokenStore upgraded", "type", "memory_cached_gorm")
	}

	// --- Dispatchers ---
	// A missing platform config disables that branch; a broken one is fatal.

	var apnsDispatcher dispatch.Dispatcher
	if cfg.APNS.Enabled() {
		keyBytes, err := os.ReadFile(cfg.APNS.AuthKeyFile)
		if err != nil {
			logger.Error("Failed to read APNs auth key", "file", cfg.APNS.AuthKeyFile, "err", err)
			os.Exit(1)
		}
		apnsDispatcher, err = apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(keyBytes),
			Host:         cfg.APNS.Host,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize APNs dispatcher", "err", err)
			os.Exit(1)
		}
		logger.Info("APNs dispatcher enabled", "bundle_id", cfg.APNS.BundleID)
	} else {
		logger.Warn("APNs not configured. iOS push disabled.")
	}

	var fcmDispatcher dispatch.Dispatcher
	if cfg.FCM.Enabled() {
		var opts []option.ClientOption
		if cfg.FCM.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FCM.CredentialsFile))
		}
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FCM.ProjectID}, opts...)
		if err != nil {
			logger.Error("Failed to initialize Firebase App", "err", err)
			os.Exit(1)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Error("Failed to create FCM messaging client", "err", err)
			os.Exit(1)
		}
		fcmDispatcher = fcm.NewDispatcher(fcmMessaging, logger)
		logger.Info("FCM dispatcher enabled", "project_id", cfg.FCM.ProjectID)
	} else {
		logger.Warn("FCM not configured. Android push disabled.")
	}

	// --- Auth ---
	verifier, err := auth.NewVerifier(cfg.Auth.Method, cfg.Auth.LDAP, cfg.Auth.URL)
	if err != nil {
		logger.Error("Auth backend failed", "err", err)
		os.Exit(1)
	}

	// --- Fan-out & Service ---
	orchestrator := fanout.NewOrchestrator(
		fanout.Config{Parallelism: cfg.ParallelPush, SendTimeout: cfg.SendTimeout},
		store,
		tokenStore,
		apnsDispatcher,
		fcmDispatcher,
		dispatch.ActiveOnly,
		logger,
	)

	service, err := notificationrelay.New(cfg, store, tokenStore, orchestrator, verifier, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// openDatabase picks the driver from the DSN: postgres for postgres:// URLs,
// sqlite for anything else.
func openDatabase(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
}
