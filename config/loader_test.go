package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1000, cfg.Cache.MemorySize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 3, cfg.Providers.MaxRetries)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 1000, cfg.Cache.MemorySize)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
cache:
  memory_size: 5000
  ttl_default: 90s

providers:
  max_retries: 7
  timeout: 10s

circuit:
  failure_threshold: 8

database:
  driver: "postgres"
  host: "db.example.com"
  port: 5432

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Cache.MemorySize)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTLDefault)
	assert.Equal(t, 7, cfg.Providers.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, 8, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"VPRISM_CACHE_MEMORY_SIZE":         "2500",
		"VPRISM_PROVIDERS_MAX_RETRIES":     "9",
		"VPRISM_CIRCUIT_FAILURE_THRESHOLD": "11",
		"VPRISM_DATABASE_DRIVER":           "mysql",
		"VPRISM_LOG_LEVEL":                 "warn",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 2500, cfg.Cache.MemorySize)
	assert.Equal(t, 9, cfg.Providers.MaxRetries)
	assert.Equal(t, 11, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
cache:
  memory_size: 5000
database:
  driver: "postgres"
  name: "yaml-db"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("VPRISM_CACHE_MEMORY_SIZE", "9999")
	os.Setenv("VPRISM_DATABASE_DRIVER", "mysql")
	defer func() {
		os.Unsetenv("VPRISM_CACHE_MEMORY_SIZE")
		os.Unsetenv("VPRISM_DATABASE_DRIVER")
	}()

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Cache.MemorySize)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "yaml-db", cfg.Database.Name)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_CACHE_MEMORY_SIZE", "42")
	os.Setenv("MYAPP_DATABASE_DRIVER", "postgres")
	defer func() {
		os.Unsetenv("MYAPP_CACHE_MEMORY_SIZE")
		os.Unsetenv("MYAPP_DATABASE_DRIVER")
	}()

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Cache.MemorySize)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Cache.MemorySize < 0 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("VPRISM_CACHE_MEMORY_SIZE", "-1")
	defer os.Unsetenv("VPRISM_CACHE_MEMORY_SIZE")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 1000, cfg.Cache.MemorySize)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
cache:
  memory_size: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid cache memory size",
			modify: func(c *Config) {
				c.Cache.MemorySize = 0
			},
			wantErr: true,
		},
		{
			name: "invalid providers max retries",
			modify: func(c *Config) {
				c.Providers.MaxRetries = -1
			},
			wantErr: true,
		},
		{
			name: "invalid circuit failure threshold",
			modify: func(c *Config) {
				c.Circuit.FailureThreshold = 0
			},
			wantErr: true,
		},
		{
			name: "invalid health thresholds",
			modify: func(c *Config) {
				c.Health.FailureThreshold = 0
			},
			wantErr: true,
		},
		{
			name: "invalid batch concurrency",
			modify: func(c *Config) {
				c.Batch.DefaultConcurrency = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver:   "mysql",
				Host:     "localhost",
				Port:     3306,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name: "sqlite DSN",
			config: DatabaseConfig{
				Driver: "sqlite",
				Name:   "/path/to/db.sqlite",
			},
			expected: "/path/to/db.sqlite",
		},
		{
			name: "unknown driver",
			config: DatabaseConfig{
				Driver: "unknown",
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
cache:
  memory_size: 2000
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 2000, cfg.Cache.MemorySize)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("VPRISM_DATABASE_DRIVER", "mysql")
	defer os.Unsetenv("VPRISM_DATABASE_DRIVER")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
}
