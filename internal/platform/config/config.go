// Package config loads process configuration from defaults, an optional
// config file (CONFIG_FILE) and environment variables, in increasing order
// of precedence. Nested keys map to env names by upper-casing and replacing
// dots with underscores: identity.provider.mode -> IDENTITY_PROVIDER_MODE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Identity Identity `mapstructure:"identity"`
	JWT      JWT      `mapstructure:"jwt"`
	Log      Log      `mapstructure:"log"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// Database selects the store. An empty URL runs on the in-memory store.
type Database struct {
	URL          string `mapstructure:"url"`
	Driver       string `mapstructure:"driver"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type Redis struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Kafka enables the audit outbox relay when Brokers is set.
type Kafka struct {
	Brokers       string        `mapstructure:"brokers"`
	AuditTopic    string        `mapstructure:"audit_topic"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
}

// BrokerList splits the comma separated broker string.
func (k Kafka) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type Identity struct {
	Provider IdentityProvider `mapstructure:"provider"`
	HashCost int              `mapstructure:"hash_cost"`
	Submit   SubmitThrottle   `mapstructure:"submit"`
}

type IdentityProvider struct {
	URL     string        `mapstructure:"url"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SubmitThrottle struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type JWT struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DevSigningKey is used when JWT_SIGNING_KEY is unset. Override it in production.
const DevSigningKey = "dev-secret-key-change-in-production"

// defaults lists every key so AutomaticEnv can resolve it during Unmarshal.
var defaults = map[string]any{
	"server.addr":               ":8080",
	"server.shutdown_timeout":   10 * time.Second,
	"server.request_timeout":    30 * time.Second,
	"database.url":              "",
	"database.driver":           "postgres",
	"database.max_open_conns":   20,
	"redis.url":                 "",
	"redis.pool_size":           10,
	"redis.min_idle_conns":      2,
	"redis.dial_timeout":        5 * time.Second,
	"redis.read_timeout":        3 * time.Second,
	"redis.write_timeout":       3 * time.Second,
	"kafka.brokers":             "",
	"kafka.audit_topic":         "profileclaim.admin-audit",
	"kafka.relay_interval":      time.Second,
	"identity.provider.url":     "",
	"identity.provider.mode":    "strict",
	"identity.provider.timeout": 10 * time.Second,
	"identity.hash_cost":        12,
	"identity.submit.limit":     5,
	"identity.submit.window":    time.Hour,
	"jwt.signing_key":           DevSigningKey,
	"jwt.issuer":                "profileclaim",
	"jwt.audience":              "profileclaim-api",
	"log.level":                 "info",
	"log.format":                "json",
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("SERVER_ADDR must not be empty"))
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or pgx, got %q", c.Database.Driver))
	}
	switch c.Identity.Provider.Mode {
	case "strict", "permissive":
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_PROVIDER_MODE must be strict or permissive, got %q", c.Identity.Provider.Mode))
	}
	if c.Identity.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("IDENTITY_PROVIDER_TIMEOUT must be positive"))
	}
	if c.Identity.HashCost < 4 || c.Identity.HashCost > 31 {
		errs = append(errs, fmt.Errorf("IDENTITY_HASH_COST must be between 4 and 31, got %d", c.Identity.HashCost))
	}
	if c.Identity.Submit.Limit < 1 || c.Identity.Submit.Window <= 0 {
		errs = append(errs, errors.New("IDENTITY_SUBMIT_LIMIT and IDENTITY_SUBMIT_WINDOW must be positive"))
	}
	if c.JWT.SigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not be empty"))
	}
	if c.Kafka.Brokers != "" && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}
