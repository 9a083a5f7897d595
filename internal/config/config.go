// FilePath: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	MQTT       MQTTConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	TimescaleDB PostgresConfig `mapstructure:"timescaledb"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool sizing is independent of request concurrency; callers queue
	// for a free connection instead of opening unbounded new ones.
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BrokerURL   string        `mapstructure:"broker_url"`
	ClientID    string        `mapstructure:"client_id"`
	IngestTopic string        `mapstructure:"ingest_topic"`
	RPCEnabled  bool          `mapstructure:"rpc_enabled"`
	QoS         byte          `mapstructure:"qos"`
	KeepAlive   uint16        `mapstructure:"keep_alive"`
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("SENSEGRID")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.timescaledb.host", "localhost")
	viper.SetDefault("database.timescaledb.port", 5432)
	viper.SetDefault("database.timescaledb.dbname", "sensegrid")
	viper.SetDefault("database.timescaledb.sslmode", "disable")
	viper.SetDefault("database.timescaledb.max_open_conns", 16)
	viper.SetDefault("database.timescaledb.max_idle_conns", 8)
	viper.SetDefault("database.timescaledb.conn_max_lifetime", "30m")
	viper.SetDefault("database.timescaledb.query_timeout", "10s")

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", true)
	viper.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "sensegrid-hub")
	viper.SetDefault("mqtt.ingest_topic", "sensors/readings/#")
	viper.SetDefault("mqtt.rpc_enabled", true)
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.keep_alive", 60)
	viper.SetDefault("mqtt.queue_size", 256)
	viper.SetDefault("mqtt.workers", 2)
	viper.SetDefault("mqtt.conn_timeout", "10s")

	// Monitoring defaults
	viper.SetDefault("monitoring.log_level", "info")
}

func validateConfig(config *Config) error {
	if config.Database.TimescaleDB.Host == "" {
		return fmt.Errorf("timescaledb host is required")
	}
	if config.Database.TimescaleDB.DBName == "" {
		return fmt.Errorf("timescaledb dbname is required")
	}
	if config.MQTT.Enabled {
		if config.MQTT.BrokerURL == "" {
			return fmt.Errorf("mqtt broker_url is required when mqtt is enabled")
		}
		if config.MQTT.IngestTopic == "" {
			return fmt.Errorf("mqtt ingest_topic is required when mqtt is enabled")
		}
		if config.MQTT.QueueSize < 1 {
			return fmt.Errorf("mqtt queue_size must be positive")
		}
		if config.MQTT.Workers < 1 {
			return fmt.Errorf("mqtt workers must be positive")
		}
	}
	return nil
}
