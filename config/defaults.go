// Sensible defaults for every configuration section.
package config

import "time"

// DefaultConfig returns the fully-populated default configuration.
func DefaultConfig() *Config {
	return &Config{
		Cache:     DefaultCacheConfig(),
		Providers: DefaultProvidersConfig(),
		Circuit:   DefaultCircuitConfig(),
		Health:    DefaultHealthConfig(),
		Batch:     DefaultBatchConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultCacheConfig matches internal/cache.DefaultTTLPolicy's tick, daily,
// weekly and default TTLs. Its single TTLIntraday (5m) is applied by the
// client to every intraday timeframe, including 1m.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:     true,
		MemorySize:  1000,
		DiskPath:    "vprism.db",
		TTLDefault:  time.Hour,
		TTLTick:     5 * time.Second,
		TTLIntraday: 5 * time.Minute,
		TTLDaily:    time.Hour,
		TTLWeekly:   24 * time.Hour,
	}
}

// DefaultProvidersConfig matches internal/retry.DefaultPolicy's backoff
// factor and max delay. MaxRetries counts retries after the first call, so
// the client's retryer makes MaxRetries+1 attempts (4 by default).
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RateLimit:     true,
		BackoffFactor: 2,
		MaxBackoff:    60 * time.Second,
	}
}

// DefaultCircuitConfig mirrors internal/circuitbreaker.DefaultConfig's values.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// DefaultHealthConfig mirrors internal/provider.DefaultHealthConfig's values.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		IntervalSeconds:  300,
		TimeoutSeconds:   5,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

// DefaultBatchConfig mirrors §4.8's documented default concurrentLimit.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		DefaultConcurrency: 10,
	}
}

// DefaultDatabaseConfig defaults to an embedded sqlite file; operators
// override Driver/Host/Port for postgres or mysql.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "vprism.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig mirrors the teacher's zap-production-leaning defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
