package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset names used as keys of Sources.
const (
	SourceSurvey  = "survey"
	SourceAddress = "address"
	SourceTaxlot  = "taxlot"
)

// Config holds the surveysearch service configuration.
type Config struct {
	HTTP       HTTPConfig              `yaml:"http"`
	Auth       AuthConfig              `yaml:"auth"`
	Logging    LoggingConfig           `yaml:"logging"`
	Database   DatabaseConfig          `yaml:"database"`
	Snapshot   SnapshotConfig          `yaml:"snapshot"`
	NATS       NATSConfig              `yaml:"nats"`
	Transport  TransportConfig         `yaml:"transport"`
	Resilience ResilienceConfig        `yaml:"resilience"`
	Sources    map[string]SourceConfig `yaml:"sources"`
	Search     SearchConfig            `yaml:"search"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the snapshot store connection. Persistence is off
// unless Enabled is set.
type DatabaseConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Standalone       bool     `yaml:"standalone"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SnapshotConfig holds snapshot persistence settings.
type SnapshotConfig struct {
	TTLHours       int  `yaml:"ttl_hours"` // 0 = no expiry
	RestoreOnStart bool `yaml:"restore_on_start"`
}

// NATSConfig holds render-event publishing settings. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// TransportConfig holds Feature Source HTTP settings.
type TransportConfig struct {
	TimeoutSec int     `yaml:"timeout_sec"`
	RatePerSec float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Burst      int     `yaml:"burst"`
	OutWKID    int     `yaml:"out_wkid"`
}

// ResilienceConfig holds retry and circuit breaker settings.
type ResilienceConfig struct {
	RetryMaxAttempts      int     `yaml:"retry_max_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms"`
	BreakerDisabled       bool    `yaml:"breaker_disabled"`
	BreakerMinRequests    uint32  `yaml:"breaker_min_requests"`
	BreakerFailureRatio   float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSec int     `yaml:"breaker_open_timeout_sec"`
}

// SourceConfig describes one Feature Source layer. Empty Fields use the
// built-in partition of the dataset; an empty Baseline uses the built-in
// baseline.
type SourceConfig struct {
	URL              string   `yaml:"url"`
	Fields           []string `yaml:"fields"`
	SearchableFields []string `yaml:"searchable_fields"`
	Baseline         string   `yaml:"baseline"`
}

// SearchConfig holds orchestration settings.
type SearchConfig struct {
	Scope                    string             `yaml:"scope"` // mode | all
	Thresholds               map[string]float64 `yaml:"thresholds"`
	SurveyIntersectPredicate string             `yaml:"survey_intersect_predicate"` // baseline | matched
	AddressParcelField       string             `yaml:"address_parcel_field"`
	TaxlotParcelField        string             `yaml:"taxlot_parcel_field"`
	SessionIdleTTLSec        int                `yaml:"session_idle_ttl_sec"`
	MaxQueryLength           int                `yaml:"max_query_length"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references, then
// applies defaults and validates.
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
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "surveysearch:"
	}
	if c.Transport.TimeoutSec <= 0 {
		c.Transport.TimeoutSec = 30
	}
	if c.Transport.Burst <= 0 {
		c.Transport.Burst = 5
	}
	if c.Transport.OutWKID <= 0 {
		c.Transport.OutWKID = 4326
	}
	if c.Search.Scope == "" {
		c.Search.Scope = "mode"
	}
	if c.Search.SurveyIntersectPredicate == "" {
		c.Search.SurveyIntersectPredicate = "baseline"
	}
	if c.Search.Thresholds == nil {
		c.Search.Thresholds = map[string]float64{}
	}
	for m, th := range map[string]float64{"surveys": 0.2, "addresses": 0.1, "maptaxlots": 0} {
		if _, ok := c.Search.Thresholds[m]; !ok {
			c.Search.Thresholds[m] = th
		}
	}
	if c.Search.AddressParcelField == "" {
		c.Search.AddressParcelField = "maptaxlot"
	}
	if c.Search.TaxlotParcelField == "" {
		c.Search.TaxlotParcelField = "MAPTAXLOT"
	}
	if c.Search.SessionIdleTTLSec <= 0 {
		c.Search.SessionIdleTTLSec = 1800
	}
	if c.Search.MaxQueryLength <= 0 {
		c.Search.MaxQueryLength = 256
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Enabled && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required when database.enabled is set")
	}
	if c.Transport.RatePerSec < 0 {
		return fmt.Errorf("transport.rate_per_sec must not be negative, got %v", c.Transport.RatePerSec)
	}
	if r := c.Resilience.BreakerFailureRatio; r < 0 || r > 1 {
		return fmt.Errorf("resilience.breaker_failure_ratio must be between 0 and 1, got %v", r)
	}

	for _, name := range []string{SourceSurvey, SourceAddress, SourceTaxlot} {
		src, ok := c.Sources[name]
		if !ok || strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("sources.%s.url is required", name)
		}
	}
	for name := range c.Sources {
		switch name {
		case SourceSurvey, SourceAddress, SourceTaxlot:
		default:
			return fmt.Errorf("sources.%s: unknown dataset", name)
		}
	}
	if err := c.validatePartitions(); err != nil {
		return err
	}

	switch c.Search.Scope {
	case "mode", "all":
	default:
		return fmt.Errorf("search.scope must be \"mode\" or \"all\", got %q", c.Search.Scope)
	}
	switch c.Search.SurveyIntersectPredicate {
	case "baseline", "matched":
	default:
		return fmt.Errorf(
			"search.survey_intersect_predicate must be \"baseline\" or \"matched\", got %q",
			c.Search.SurveyIntersectPredicate,
		)
	}
	for m, th := range c.Search.Thresholds {
		switch m {
		case "surveys", "addresses", "maptaxlots":
		default:
			return fmt.Errorf("search.thresholds.%s: unknown mode", m)
		}
		if th < 0 || th > 1 {
			return fmt.Errorf("search.thresholds.%s must be between 0 and 1, got %v", m, th)
		}
	}
	return nil
}

// validatePartitions checks that explicitly configured field lists do not
// overlap and that searchable fields are among them.
func (c *Config) validatePartitions() error {
	owner := make(map[string]string)
	for _, name := range []string{SourceSurvey, SourceAddress, SourceTaxlot} {
		src := c.Sources[name]
		for _, f := range src.Fields {
			if prev, dup := owner[f]; dup && prev != name {
				return fmt.Errorf("sources.%s.fields: %q already belongs to %s", name, f, prev)
			}
			owner[f] = name
		}
		if len(src.Fields) == 0 {
			continue
		}
		for _, f := range src.SearchableFields {
			if owner[f] != name {
				return fmt.Errorf("sources.%s.searchable_fields: %q is not in fields", name, f)
			}
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
