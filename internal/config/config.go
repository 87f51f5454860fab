// Package config loads the YAML configuration file that drives the broker:
// server binding, database DSN, cache backend, routing knobs and the model
// catalog itself.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/router-for-me/CreditRouter/internal/analyzer"
	"github.com/router-for-me/CreditRouter/internal/catalog"
	"gopkg.in/yaml.v3"
)

// Duration unmarshals YAML strings like "30s" or "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, errParse := time.ParseDuration(raw)
	if errParse != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, errParse)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig binds the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"` // Listen address, empty for all interfaces.
	Port int    `yaml:"port"` // Listen port.
}

// DatabaseConfig holds the storage DSN. Postgres and SQLite DSNs are both
// accepted; the dialect is detected from the DSN shape.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the optional Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig controls log level and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`       // trace, debug, info, warn, error.
	File       string `yaml:"file"`        // Empty logs to stderr only.
	MaxSizeMB  int    `yaml:"max-size-mb"` // Rotate above this size.
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// AdminConfig guards the admin endpoints.
type AdminConfig struct {
	// APIKeyHash is the bcrypt hash of the admin key. Empty disables the
	// admin surface entirely.
	APIKeyHash string `yaml:"api-key-hash"`
}

// RouterConfig tunes the routing pipeline.
type RouterConfig struct {
	MaxAttempts        int      `yaml:"max-attempts"`
	CallTimeout        Duration `yaml:"call-timeout"`
	ReservationTTL     Duration `yaml:"reservation-ttl"`
	UsageRetentionDays int      `yaml:"usage-retention-days"`
}

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// CacheConfig selects and sizes the response cache.
type CacheConfig struct {
	Backend       string   `yaml:"backend"` // memory or redis.
	Capacity      int      `yaml:"capacity"`
	SweepInterval Duration `yaml:"sweep-interval"`
}

// ProviderConfig declares one upstream provider endpoint.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base-url"`
	APIKey  string `yaml:"api-key"`
}

// ModelConfig declares one routable model.
type ModelConfig struct {
	ID              string   `yaml:"id"`
	Provider        string   `yaml:"provider"`
	CostPer1KMicros int64    `yaml:"cost-per-1k-micros"`
	RateLimitRPM    int      `yaml:"rate-limit-rpm"`
	QualityScore    float64  `yaml:"quality-score"`
	Tags            []string `yaml:"tags"`
	Priority        int      `yaml:"priority"`
}

// Config is the full configuration file.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Log       LogConfig        `yaml:"log"`
	Admin     AdminConfig      `yaml:"admin"`
	Router    RouterConfig     `yaml:"router"`
	Cache     CacheConfig      `yaml:"cache"`
	Analyzer  analyzer.Config  `yaml:"analyzer"`
	Providers []ProviderConfig `yaml:"providers"`
	Models    []ModelConfig    `yaml:"models"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(raw, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8317
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendMemory
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 4096
	}
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if c.Cache.Backend != CacheBackendMemory && c.Cache.Backend != CacheBackendRedis {
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheBackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required for the redis cache backend")
	}
	providers := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: providers[%d] has empty name", i)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("config: provider %s has empty base-url", p.Name)
		}
		providers[p.Name] = struct{}{}
	}
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("config: models[%d] has empty id", i)
		}
		if _, ok := providers[m.Provider]; !ok {
			return fmt.Errorf("config: model %s references unknown provider %q", m.ID, m.Provider)
		}
		if m.CostPer1KMicros < 0 {
			return fmt.Errorf("config: model %s has negative cost", m.ID)
		}
	}
	return nil
}

// Descriptors converts the configured models to catalog descriptors.
func (c *Config) Descriptors() []catalog.ModelDescriptor {
	out := make([]catalog.ModelDescriptor, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, catalog.ModelDescriptor{
			ID:              m.ID,
			Provider:        m.Provider,
			CostPer1KMicros: m.CostPer1KMicros,
			RateLimitRPM:    m.RateLimitRPM,
			QualityScore:    m.QualityScore,
			CapabilityTags:  m.Tags,
			PriorityRank:    m.Priority,
		})
	}
	return out
}
