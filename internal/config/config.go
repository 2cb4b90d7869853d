package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the telemetry service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	WS       WSConfig       `mapstructure:"ws"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	MaxConnections    int    `mapstructure:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
}

// WSConfig tunes the websocket subscription layer.
type WSConfig struct {
	RefreshIntervalSec                int      `mapstructure:"refresh_interval_sec"`
	RefreshPoolSize                   int      `mapstructure:"refresh_pool_size"`
	MaxEntitiesPerDataSubscription    int      `mapstructure:"max_entities_per_data_subscription"`
	MaxEntitiesPerAlarmSubscription   int      `mapstructure:"max_entities_per_alarm_subscription"`
	MaxAlarmQueriesPerRefreshInterval int      `mapstructure:"max_alarm_queries_per_refresh_interval"`
	DefaultLimit                      int      `mapstructure:"default_limit"`
	CommandsPerSecond                 float64  `mapstructure:"commands_per_second"`
	CommandBurst                      int      `mapstructure:"command_burst"`
	AllowedOrigins                    []string `mapstructure:"allowed_origins"`
	StatsIntervalSec                  int      `mapstructure:"stats_interval_sec"`
}

type CacheConfig struct {
	EntityCacheSize int `mapstructure:"entity_cache_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand ${VAR} references before parsing
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// DSN builds the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode, c.ConnectionTimeout)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("ws.refresh_interval_sec", 6)
	v.SetDefault("ws.refresh_pool_size", 4)
	v.SetDefault("ws.max_entities_per_data_subscription", 1000)
	v.SetDefault("ws.max_entities_per_alarm_subscription", 1000)
	v.SetDefault("ws.max_alarm_queries_per_refresh_interval", 10)
	v.SetDefault("ws.default_limit", 100)
	v.SetDefault("ws.commands_per_second", 50)
	v.SetDefault("ws.command_burst", 100)
	v.SetDefault("ws.stats_interval_sec", 10)

	v.SetDefault("cache.entity_cache_size", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
