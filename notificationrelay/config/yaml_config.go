package config

import (
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-relay/internal/auth"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlAuthConfig struct {
	Method            string `yaml:"method"`
	URL               string `yaml:"url"`
	LDAPURI           string `yaml:"ldap_uri"`
	LDAPUserDNPattern string `yaml:"ldap_user_dn_pattern"`
}

type YamlAPNSConfig struct {
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	BundleID    string `yaml:"bundle_id"`
	AuthKeyFile string `yaml:"auth_key_file"`
	Host        string `yaml:"host"`
}

type YamlFCMConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ListenAddr               string          `yaml:"listen_addr"`
	DatabaseURL              string          `yaml:"database_url"`
	SecretKey                string          `yaml:"secret_key"`
	AccessTokenExpireMinutes int             `yaml:"access_token_expire_minutes"`
	AdminUsers               []string        `yaml:"admin_users"`
	AllowedNetworks          []string        `yaml:"allowed_networks"`
	RateLimitPerSec          float64         `yaml:"rate_limit_per_sec"`
	ParallelPush             int             `yaml:"parallel_push"`
	SendTimeoutSeconds       int             `yaml:"send_timeout_seconds"`
	AuthConfig               YamlAuthConfig  `yaml:"auth"`
	APNSConfig               YamlAPNSConfig  `yaml:"apns"`
	FCMConfig                YamlFCMConfig   `yaml:"fcm"`
	CorsConfig               YamlCorsConfig  `yaml:"cors"`
	RedisConfig              YamlRedisConfig `yaml:"redis"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ListenAddr:      baseCfg.ListenAddr,
		DatabaseURL:     baseCfg.DatabaseURL,
		SecretKey:       baseCfg.SecretKey,
		AccessTokenTTL:  time.Duration(baseCfg.AccessTokenExpireMinutes) * time.Minute,
		AdminUsers:      baseCfg.AdminUsers,
		AllowedNetworks: baseCfg.AllowedNetworks,
		RateLimitPerSec: baseCfg.RateLimitPerSec,
		ParallelPush:    baseCfg.ParallelPush,
		SendTimeout:     time.Duration(baseCfg.SendTimeoutSeconds) * time.Second,
		Auth: AuthConfig{
			Method: baseCfg.AuthConfig.Method,
			URL:    baseCfg.AuthConfig.URL,
			LDAP: auth.LDAPConfig{
				URI:            baseCfg.AuthConfig.LDAPURI,
				UserDNTemplate: baseCfg.AuthConfig.LDAPUserDNPattern,
			},
		},
		APNS: APNSConfig{
			KeyID:       baseCfg.APNSConfig.KeyID,
			TeamID:      baseCfg.APNSConfig.TeamID,
			BundleID:    baseCfg.APNSConfig.BundleID,
			AuthKeyFile: baseCfg.APNSConfig.AuthKeyFile,
			Host:        baseCfg.APNSConfig.Host,
		},
		FCM: FCMConfig{
			ProjectID:       baseCfg.FCMConfig.ProjectID,
			CredentialsFile: baseCfg.FCMConfig.CredentialsFile,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
	}

	logger.Debug("YAML config mapping complete",
		"listen_addr", cfg.ListenAddr,
		"auth_method", cfg.Auth.Method,
	)

	return cfg, nil
}
