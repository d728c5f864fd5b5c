package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-relay/internal/auth"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type APNSConfig struct {
	KeyID       string
	TeamID      string
	BundleID    string
	AuthKeyFile string
	// Host overrides the production APNs endpoint, e.g. for the sandbox.
	Host string
}

func (c APNSConfig) Enabled() bool {
	return c.KeyID != "" && c.TeamID != "" && c.BundleID != "" && c.AuthKeyFile != ""
}

type FCMConfig struct {
	ProjectID string
	// CredentialsFile is optional; without it the Firebase SDK falls back to
	// application default credentials.
	CredentialsFile string
}

func (c FCMConfig) Enabled() bool {
	return c.ProjectID != ""
}

type AuthConfig struct {
	// Method selects the credential backend, "ldap" or "url".
	Method string
	URL    string
	LDAP   auth.LDAPConfig
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	SecretKey      string
	AccessTokenTTL time.Duration
	AdminUsers     []string

	// AllowedNetworks restricts notification creation by source CIDR.
	// Empty means no restriction.
	AllowedNetworks []string

	// RateLimitPerSec caps notification creation across all services.
	RateLimitPerSec float64

	ParallelPush int
	SendTimeout  time.Duration

	Auth AuthConfig
	APNS APNSConfig
	FCM  FCMConfig

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.DatabaseURL = val
	}
	if val := os.Getenv("SECRET_KEY"); val != "" {
		cfg.SecretKey = val
	}
	if val := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); val != "" {
		if minutes, err := strconv.Atoi(val); err == nil && minutes > 0 {
			logger.Debug("Overriding config value", "key", "ACCESS_TOKEN_EXPIRE_MINUTES", "source", "env")
			cfg.AccessTokenTTL = time.Duration(minutes) * time.Minute
		}
	}
	if val := os.Getenv("ADMIN_USERS"); val != "" {
		logger.Debug("Overriding config value", "key", "ADMIN_USERS", "source", "env")
		cfg.AdminUsers = splitAndTrim(val)
	}
	if val := os.Getenv("ALLOWED_NETWORKS"); val != "" {
		logger.Debug("Overriding config value", "key", "ALLOWED_NETWORKS", "source", "env")
		cfg.AllowedNetworks = splitAndTrim(val)
	}
	if val := os.Getenv("NOTIFICATION_RATE_LIMIT"); val != "" {
		if limit, err := strconv.ParseFloat(val, 64); err == nil && limit > 0 {
			cfg.RateLimitPerSec = limit
		}
	}
	if val := os.Getenv("NB_PARALLEL_PUSH"); val != "" {
		if parallel, err := strconv.Atoi(val); err == nil && parallel > 0 {
			logger.Debug("Overriding config value", "key", "NB_PARALLEL_PUSH", "source", "env")
			cfg.ParallelPush = parallel
		}
	}
	if val := os.Getenv("PUSH_SEND_TIMEOUT_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil && seconds > 0 {
			cfg.SendTimeout = time.Duration(seconds) * time.Second
		}
	}

	// Auth backend overrides
	if val := os.Getenv("AUTHENTICATION_METHOD"); val != "" {
		logger.Debug("Overriding config value", "key", "AUTHENTICATION_METHOD", "source", "env")
		cfg.Auth.Method = strings.ToLower(val)
	}
	if val := os.Getenv("AUTHENTICATION_URL"); val != "" {
		cfg.Auth.URL = val
	}
	if val := os.Getenv("LDAP_URI"); val != "" {
		cfg.Auth.LDAP.URI = val
	}
	if val := os.Getenv("LDAP_USER_DN_TEMPLATE"); val != "" {
		cfg.Auth.LDAP.UserDNTemplate = val
	}

	// APNs overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_KEY_ID", "source", "env")
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_AUTH_KEY_FILE"); val != "" {
		cfg.APNS.AuthKeyFile = val
	}
	if val := os.Getenv("TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APPLE_SERVER"); val != "" {
		cfg.APNS.Host = val
	}

	// FCM overrides
	if val := os.Getenv("FIREBASE_PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "FIREBASE_PROJECT_ID", "source", "env")
		cfg.FCM.ProjectID = val
	}
	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		cfg.FCM.CredentialsFile = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		cfg.CorsConfig.AllowedOrigins = splitAndTrim(corsOrigins)
	}

	// Final Validation
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret_key is required (set via YAML or SECRET_KEY env var)")
	}
	if cfg.Auth.Method == "" {
		return nil, fmt.Errorf("authentication method is required (set via YAML or AUTHENTICATION_METHOD env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "relay.db"
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 12 * time.Hour
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
