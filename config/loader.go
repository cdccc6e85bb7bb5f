// Package config provides multi-source configuration loading for vprism.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VPRISM").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is vprism's complete configuration tree, covering every key
// enumerated in §6.
type Config struct {
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	Circuit   CircuitConfig   `yaml:"circuit" env:"CIRCUIT"`
	Health    HealthConfig    `yaml:"health" env:"HEALTH"`
	Batch     BatchConfig     `yaml:"batch" env:"BATCH"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
}

// CacheConfig configures the two-tier cache and its TTL policy (§4.6).
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	MemorySize  int           `yaml:"memory_size" env:"MEMORY_SIZE"`
	DiskPath    string        `yaml:"disk_path" env:"DISK_PATH"`
	TTLDefault  time.Duration `yaml:"ttl_default" env:"TTL_DEFAULT"`
	TTLTick     time.Duration `yaml:"ttl_tick" env:"TTL_TICK"`
	TTLIntraday time.Duration `yaml:"ttl_intraday" env:"TTL_INTRADAY"`
	TTLDaily    time.Duration `yaml:"ttl_daily" env:"TTL_DAILY"`
	TTLWeekly   time.Duration `yaml:"ttl_weekly" env:"TTL_WEEKLY"`
}

// ProvidersConfig configures vendor-adapter resilience defaults (§4.1, §4.5).
type ProvidersConfig struct {
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RateLimit     bool          `yaml:"rate_limit" env:"RATE_LIMIT"`
	BackoffFactor float64       `yaml:"backoff_factor" env:"BACKOFF_FACTOR"`
	MaxBackoff    time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
}

// CircuitConfig configures the breaker state machine (§4.4).
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// HealthConfig configures the periodic provider health checker (§4.2).
type HealthConfig struct {
	IntervalSeconds  int `yaml:"interval_seconds" env:"INTERVAL_SECONDS"`
	TimeoutSeconds   int `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
}

// BatchConfig configures the default concurrency used when a caller's
// BatchRequest doesn't specify one (§4.8).
type BatchConfig struct {
	DefaultConcurrency int `yaml:"default_concurrency" env:"DEFAULT_CONCURRENCY"`
}

// DatabaseConfig configures the columnar repository's backing store (§4.7).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// Loader is a builder-pattern configuration loader.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VPRISM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator, run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves defaults -> YAML file -> environment variables, then runs
// every registered validator.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively overlays struct fields from environment
// variables carrying the loader's env prefix, following each field's `env` tag.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads config from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads config from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks structural invariants on a loaded Config.
func (c *Config) Validate() error {
	var errs []string

	if c.Cache.MemorySize <= 0 {
		errs = append(errs, "cache.memory_size must be positive")
	}
	if c.Providers.MaxRetries < 0 {
		errs = append(errs, "providers.max_retries must not be negative")
	}
	if c.Circuit.FailureThreshold <= 0 {
		errs = append(errs, "circuit.failure_threshold must be positive")
	}
	if c.Health.FailureThreshold <= 0 || c.Health.SuccessThreshold <= 0 {
		errs = append(errs, "health thresholds must be positive")
	}
	if c.Batch.DefaultConcurrency <= 0 {
		errs = append(errs, "batch.default_concurrency must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns a driver-appropriate connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
