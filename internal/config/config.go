package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache store drivers.
const (
	DriverRedis   = "redis"   // rueidis
	DriverGoRedis = "goredis" // go-redis, configured by URL
	DriverMemory  = "memory"
)

// Config holds the jobfed configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
	SearchLog   SearchLogConfig   `yaml:"search_log"`
	Budget      BudgetConfig      `yaml:"budget"`
	Sources     []SourceConfig    `yaml:"sources"`
	Selection   SelectionConfig   `yaml:"selection"`
	Aggregation AggregationConfig `yaml:"aggregation"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"` // empty disables auth
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // must cover the slowest tier for streaming searches
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig holds result cache store and TTL settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // redis, goredis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	URL              string   `yaml:"url"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Shards           int      `yaml:"shards"`
	RequesterTTLSec  int      `yaml:"requester_ttl_sec"`
	LocationTTLSec   int      `yaml:"location_ttl_sec"`
	RetentionSec     int      `yaml:"retention_sec"`
	SweepSchedule    string   `yaml:"sweep_schedule"` // cron spec, empty disables the scheduler
}

// RequesterTTL returns the requester tier TTL.
func (c CacheConfig) RequesterTTL() time.Duration { return time.Duration(c.RequesterTTLSec) * time.Second }

// LocationTTL returns the location tier TTL.
func (c CacheConfig) LocationTTL() time.Duration { return time.Duration(c.LocationTTLSec) * time.Second }

// Retention returns the absolute lifetime of a cache entry.
func (c CacheConfig) Retention() time.Duration { return time.Duration(c.RetentionSec) * time.Second }

// SearchLogConfig holds the optional Postgres search log.
type SearchLogConfig struct {
	PostgresURL string `yaml:"postgres_url"` // empty disables the log
}

// BudgetConfig holds source spend limits.
type BudgetConfig struct {
	DailyLimit   float64 `yaml:"daily_limit"`   // 0 = unlimited
	MonthlyLimit float64 `yaml:"monthly_limit"` // 0 = unlimited
	Action       string  `yaml:"action"`        // "reject" | "warn" (default)
}

// SourceConfig describes one JSON API source.
type SourceConfig struct {
	ID          string            `yaml:"id"`
	Endpoint    string            `yaml:"endpoint"`
	Tier        int               `yaml:"tier"`
	CostPerCall float64           `yaml:"cost_per_call"`
	MaxResults  int               `yaml:"max_results"`
	Enabled     *bool             `yaml:"enabled"` // default true
	TimeoutSec  int               `yaml:"timeout_sec"`
	ResultsPath string            `yaml:"results_path"`
	Fields      map[string]string `yaml:"fields"`
	Headers     map[string]string `yaml:"headers"`
}

// IsEnabled reports the enabled flag, defaulting to true.
func (s SourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// SelectionConfig holds the source selection rules.
type SelectionConfig struct {
	AlwaysInclude       []string `yaml:"always_include"` // default: every fast-tier source
	RemoteSpecialist    string   `yaml:"remote_specialist"`
	FreelanceSpecialist string   `yaml:"freelance_specialist"`
}

// AggregationConfig holds federation, dedup and progressive settings.
type AggregationConfig struct {
	Waves               [][]string `yaml:"waves"` // default: derived from tiers
	MinResults          int        `yaml:"min_results"`
	FallbackSource      string     `yaml:"fallback_source"`
	SimilarityThreshold float64    `yaml:"similarity_threshold"`
	PageDelayMs         int        `yaml:"page_delay_ms"`
	MaxPages            int        `yaml:"max_pages"`
}

// PageDelay returns the inter-page delay.
func (a AggregationConfig) PageDelay() time.Duration {
	return time.Duration(a.PageDelayMs) * time.Millisecond
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, substitutes ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = DriverRedis
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "jobfed:"
	}
	if c.Cache.RequesterTTLSec <= 0 {
		c.Cache.RequesterTTLSec = 30 * 60
	}
	if c.Cache.LocationTTLSec <= 0 {
		c.Cache.LocationTTLSec = 60 * 60
	}
	if c.Cache.RetentionSec <= 0 {
		c.Cache.RetentionSec = 24 * 60 * 60
	}
	if c.Budget.Action == "" {
		c.Budget.Action = "warn"
	}
	if c.Aggregation.MinResults <= 0 {
		c.Aggregation.MinResults = 10
	}
	if c.Aggregation.SimilarityThreshold <= 0 {
		c.Aggregation.SimilarityThreshold = 0.85
	}
	if c.Aggregation.PageDelayMs <= 0 {
		c.Aggregation.PageDelayMs = 1000
	}
	if c.Aggregation.MaxPages <= 0 {
		c.Aggregation.MaxPages = 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Cache.Driver {
	case DriverRedis:
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
		}
	case DriverGoRedis:
		if c.Cache.URL == "" {
			return fmt.Errorf("cache.url is required for driver %q", c.Cache.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("cache.driver must be one of redis, goredis, memory, got %q", c.Cache.Driver)
	}

	switch c.Budget.Action {
	case "warn", "reject":
	default:
		return fmt.Errorf("budget.action must be \"warn\" or \"reject\", got %q", c.Budget.Action)
	}

	if c.Aggregation.SimilarityThreshold > 1 {
		return fmt.Errorf("aggregation.similarity_threshold must be in (0, 1], got %v", c.Aggregation.SimilarityThreshold)
	}

	ids := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID)
		}
		ids[s.ID] = true
		if s.Endpoint == "" {
			return fmt.Errorf("sources.%s.endpoint is required", s.ID)
		}
		if s.Tier < 1 || s.Tier > 3 {
			return fmt.Errorf("sources.%s.tier must be 1, 2 or 3, got %d", s.ID, s.Tier)
		}
		if s.CostPerCall < 0 {
			return fmt.Errorf("sources.%s.cost_per_call must not be negative", s.ID)
		}
	}

	refs := append([]string{c.Aggregation.FallbackSource, c.Selection.RemoteSpecialist, c.Selection.FreelanceSpecialist},
		c.Selection.AlwaysInclude...)
	for _, w := range c.Aggregation.Waves {
		refs = append(refs, w...)
	}
	for _, id := range refs {
		if id != "" && !ids[id] {
			return fmt.Errorf("unknown source %q referenced in selection/aggregation", id)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
