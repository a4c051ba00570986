package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teslabridge/quotaserver/internal/util"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	// DefaultServerAddr is the listen address used when none is configured.
	DefaultServerAddr = ":8080"
	// DefaultQuotaBalance is the starting balance granted to new accounts.
	DefaultQuotaBalance = 10
	// DefaultUserinfoURL is the vehicle OAuth userinfo endpoint.
	DefaultUserinfoURL = "https://auth.tesla.com/oauth2/v3/userinfo"
	// DefaultIdentityTimeout bounds a single userinfo round trip.
	DefaultIdentityTimeout = 10 * time.Second
	// DefaultPurchaseMode is the purchase mode advertised to clients.
	DefaultPurchaseMode = "creditPack"
	// DefaultAdminTokenExpiry is the admin JWT lifetime.
	DefaultAdminTokenExpiry = 12 * time.Hour
	// DefaultSettingsRefreshInterval is the settings snapshot poll interval.
	DefaultSettingsRefreshInterval = time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the ledger store connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// QuotaConfig holds quota provisioning settings.
type QuotaConfig struct {
	DefaultBalance int64 `yaml:"default-balance"`
}

// IdentityConfig holds identity provider settings.
type IdentityConfig struct {
	UserinfoURL string        `yaml:"userinfo-url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BridgeConfig holds the client settings served by the settings endpoint.
type BridgeConfig struct {
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
	PurchaseMode string `yaml:"purchase-mode"`
}

// AdminConfig holds admin authentication settings.
type AdminConfig struct {
	JWTSecret   string        `yaml:"jwt-secret"`
	TokenExpiry time.Duration `yaml:"token-expiry"`
	// Bootstrap credentials created on first run when no admin exists.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig selects the optional redis-backed ledger.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key-prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SettingsConfig holds settings snapshot refresh behavior.
type SettingsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh-interval"`
}

// AppConfig is the process-wide configuration resolved once at startup.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Quota    QuotaConfig    `yaml:"quota"`
	Identity IdentityConfig `yaml:"identity"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Admin    AdminConfig    `yaml:"admin"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Settings SettingsConfig `yaml:"settings"`
}

// ResolveConfigPath resolves the effective config file path, honoring the
// writable path override used in container deployments.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = "config.yaml"
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, trimmed)
	}
	return trimmed
}

// Load reads and validates the configuration file at path.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	applyDefaults(&cfg)
	if errValidate := cfg.Validate(); errValidate != nil {
		return cfg, errValidate
	}
	return cfg, nil
}

// Validate checks required fields.
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.Admin.JWTSecret) == "" {
		return fmt.Errorf("config: admin.jwt-secret is required")
	}
	if c.Quota.DefaultBalance < 0 {
		return fmt.Errorf("config: quota.default-balance must not be negative")
	}
	return nil
}

// RedisEnabled reports whether the redis-backed ledger is configured.
func (c AppConfig) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// applyDefaults fills unset fields with their defaults.
func applyDefaults(cfg *AppConfig) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Quota.DefaultBalance == 0 {
		cfg.Quota.DefaultBalance = DefaultQuotaBalance
	}
	if strings.TrimSpace(cfg.Identity.UserinfoURL) == "" {
		cfg.Identity.UserinfoURL = DefaultUserinfoURL
	}
	if cfg.Identity.Timeout <= 0 {
		cfg.Identity.Timeout = DefaultIdentityTimeout
	}
	if strings.TrimSpace(cfg.Bridge.PurchaseMode) == "" {
		cfg.Bridge.PurchaseMode = DefaultPurchaseMode
	}
	if cfg.Admin.TokenExpiry <= 0 {
		cfg.Admin.TokenExpiry = DefaultAdminTokenExpiry
	}
	if cfg.Settings.RefreshInterval <= 0 {
		cfg.Settings.RefreshInterval = DefaultSettingsRefreshInterval
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}
