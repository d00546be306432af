package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/refql/internal/db"
)

// Config holds the full server configuration.
type Config struct {
	ServerAddr     string
	StoreBackend   string // "memory" or "postgres"
	SchemaDir      string
	MigrationsPath string
	MaxQueryDepth  int
	Database       db.Config
}

// DefaultConfig returns the configuration used when no config file or
// environment overrides are present.
func DefaultConfig() Config {
	return Config{
		ServerAddr:     ":8080",
		StoreBackend:   "memory",
		SchemaDir:      "schemas",
		MigrationsPath: "migrations",
		MaxQueryDepth:  0,
		Database:       db.DefaultConfig(),
	}
}

// Load reads config.yaml from configPath, with environment overrides
// mapped under the REFQL prefix (REFQL_SERVER_ADDR, REFQL_DATABASE_HOST...).
func Load(configPath string) (Config, error) {
	// Start with default
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides
	v.SetEnvPrefix("REFQL")

	// Optional: Map nested keys to flat env vars
	v.BindEnv("server.addr")
	v.BindEnv("store.backend")
	v.BindEnv("store.schema_dir")
	v.BindEnv("store.migrations_path")
	v.BindEnv("query.max_depth")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("server.addr") {
		cfg.ServerAddr = v.GetString("server.addr")
	}
	if v.IsSet("store.backend") {
		cfg.StoreBackend = v.GetString("store.backend")
	}
	if v.IsSet("store.schema_dir") {
		cfg.SchemaDir = v.GetString("store.schema_dir")
	}
	if v.IsSet("store.migrations_path") {
		cfg.MigrationsPath = v.GetString("store.migrations_path")
	}
	if v.IsSet("query.max_depth") {
		cfg.MaxQueryDepth = v.GetInt("query.max_depth")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	switch cfg.StoreBackend {
	case "memory", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}
