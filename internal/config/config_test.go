package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
  host: "0.0.0.0"

database:
  host: "localhost"
  port: 5432
  name: "testdb"
  user: "testuser"
  password: "testpass"
  ssl_mode: "disable"
  max_connections: 10
  connection_timeout: 5

ws:
  refresh_interval_sec: 3
  max_entities_per_data_subscription: 500

logging:
  level: "debug"
  format: "json"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	assert.NoError(t, err)

	// Test loading configuration
	config, err := Load(configPath)
	assert.NoError(t, err)
	assert.NotNil(t, config)

	// Verify loaded values
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "localhost", config.Database.Host)
	assert.Equal(t, "testdb", config.Database.Name)
	assert.Equal(t, 3, config.WS.RefreshIntervalSec)
	assert.Equal(t, 500, config.WS.MaxEntitiesPerDataSubscription)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  host: "localhost"
  name: "testdb"
  user: "testuser"
  password: "testpass"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	assert.NoError(t, err)

	config, err := Load(configPath)
	assert.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 5432, config.Database.Port)
	assert.Equal(t, 6, config.WS.RefreshIntervalSec)
	assert.Equal(t, 100, config.WS.DefaultLimit)
	assert.Equal(t, 10, config.WS.MaxAlarmQueriesPerRefreshInterval)
	assert.Equal(t, 1000, config.Cache.EntityCacheSize)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadWithEnvOverride(t *testing.T) {
	// Set environment variables
	t.Setenv("APP_DATABASE_HOST", "envhost")
	t.Setenv("APP_DATABASE_PORT", "5433")

	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  host: $APP_DATABASE_HOST
  port: $APP_DATABASE_PORT
  name: "testdb"
  user: "testuser"
  password: "testpass"
  ssl_mode: "disable"
  max_connections: 10
  connection_timeout: 5
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	assert.NoError(t, err)

	// Test loading configuration
	config, err := Load(configPath)
	assert.NoError(t, err)
	assert.NotNil(t, config)

	// Verify environment variables override config file
	assert.Equal(t, "envhost", config.Database.Host)
	assert.Equal(t, 5433, config.Database.Port)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "localhost", Port: 5432, Name: "telemetry",
		User: "tsuser", Password: "secret", SSLMode: "disable", ConnectionTimeout: 5,
	}
	assert.Equal(t,
		"host=localhost port=5432 dbname=telemetry user=tsuser password=secret sslmode=disable connect_timeout=5",
		db.DSN())
}
