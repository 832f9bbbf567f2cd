package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig        `mapstructure:"server"`
	Arango  ArangoConfig        `mapstructure:"arango"`
	Adapter AdapterConfig       `mapstructure:"adapter"`
	Logging LoggingConfig       `mapstructure:"logging"`
	Schemas []domain.SchemaDecl `mapstructure:"schemas"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ArangoConfig contains the database connection parameters
type ArangoConfig struct {
	Endpoints      []string `mapstructure:"endpoints"`
	Database       string   `mapstructure:"database"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	MaxConnections int      `mapstructure:"max_connections"`
	CreateDatabase bool     `mapstructure:"create_database"`
}

// Key identifies the backend this configuration resolves to. Two configs
// with the same key share one adapter instance.
func (c ArangoConfig) Key() string {
	endpoints := append([]string(nil), c.Endpoints...)
	sort.Strings(endpoints)
	return strings.Join(endpoints, ",") + "|" + c.Database + "|" + c.Username
}

// AdapterConfig tunes the record adapter
type AdapterConfig struct {
	MaxConcurrentOps int           `mapstructure:"max_concurrent_ops"`
	IndexWorkers     int           `mapstructure:"index_workers"`
	GenerateKeys     bool          `mapstructure:"generate_keys"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SchemaList converts the declared schemas.
func (c *Config) SchemaList() []domain.Schema {
	schemas := make([]domain.Schema, 0, len(c.Schemas))
	for _, d := range c.Schemas {
		schemas = append(schemas, d.Schema())
	}
	return schemas
}

// Load reads configuration from an optional YAML file and APP_* environment
// variables on top of the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("arango.endpoints", []string{"http://localhost:8529"})
	v.SetDefault("arango.database", "_system")
	v.SetDefault("arango.username", "root")
	v.SetDefault("arango.password", "")
	v.SetDefault("arango.max_connections", 32)
	v.SetDefault("arango.create_database", false)

	v.SetDefault("adapter.max_concurrent_ops", 64)
	v.SetDefault("adapter.index_workers", 4)
	v.SetDefault("adapter.generate_keys", false)
	v.SetDefault("adapter.operation_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// bindEnvVars binds the keys AutomaticEnv cannot discover on its own
// (Unmarshal only sees keys viper already knows about).
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("arango.endpoints", "APP_ARANGO_ENDPOINTS")
	_ = v.BindEnv("arango.database", "APP_ARANGO_DATABASE")
	_ = v.BindEnv("arango.username", "APP_ARANGO_USERNAME")
	_ = v.BindEnv("arango.password", "APP_ARANGO_PASSWORD")
	_ = v.BindEnv("logging.level", "APP_LOGGING_LEVEL")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if len(cfg.Arango.Endpoints) == 0 {
		return fmt.Errorf("arango.endpoints is required")
	}
	if cfg.Arango.Database == "" {
		return fmt.Errorf("arango.database is required")
	}
	if cfg.Arango.MaxConnections < 1 {
		return fmt.Errorf("arango.max_connections must be at least 1")
	}

	if cfg.Adapter.MaxConcurrentOps < 1 {
		return fmt.Errorf("adapter.max_concurrent_ops must be at least 1")
	}
	if cfg.Adapter.IndexWorkers < 1 {
		return fmt.Errorf("adapter.index_workers must be at least 1")
	}
	if cfg.Adapter.OperationTimeout < 0 {
		return fmt.Errorf("adapter.operation_timeout must be non-negative")
	}

	seen := make(map[string]struct{}, len(cfg.Schemas))
	for i, s := range cfg.Schemas {
		if s.Name == "" {
			return fmt.Errorf("schemas[%d].name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("schema %q declared twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	return nil
}
