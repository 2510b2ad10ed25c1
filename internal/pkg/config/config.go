package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Session   SessionConfig   `mapstructure:"session"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	// URL, when set, replaces the individual connection fields.
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns    int32 `mapstructure:"max_conns"`
	MinConns    int32 `mapstructure:"min_conns"`
	MaxConnIdle int   `mapstructure:"max_conn_idle"` // seconds
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
	// PointsTTL is how long a filtered point set stays cached, in seconds.
	PointsTTL int `mapstructure:"points_ttl"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// ClusterConfig tunes the clustering index. Zero values fall back to the
// cluster package defaults.
type ClusterConfig struct {
	Radius    float64 `mapstructure:"radius"`
	MaxZoom   int     `mapstructure:"max_zoom"`
	MinPoints int     `mapstructure:"min_points"`
	Extent    int     `mapstructure:"extent"`
	NodeSize  int     `mapstructure:"node_size"`
	// MaxIndexes bounds the number of point sets kept indexed at once.
	MaxIndexes int `mapstructure:"max_indexes"`
}

type SessionConfig struct {
	// DebounceMS is the quiet period after the last move before syncing the
	// URL, for clients without a native settle signal.
	DebounceMS int `mapstructure:"debounce_ms"`
	// IdleTimeout closes WebSocket sessions without traffic, in seconds.
	IdleTimeout int `mapstructure:"idle_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "propmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "propmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_idle", 300)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.points_ttl", 300)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("cluster.radius", 60)
	v.SetDefault("cluster.max_zoom", 16)
	v.SetDefault("cluster.min_points", 2)
	v.SetDefault("cluster.extent", 512)
	v.SetDefault("cluster.node_size", 64)
	v.SetDefault("cluster.max_indexes", 32)
	v.SetDefault("session.debounce_ms", 500)
	v.SetDefault("session.idle_timeout", 600)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PROPMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("PROPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Cluster.Radius < 0 {
		errs = append(errs, "cluster.radius must not be negative")
	}
	if c.Cluster.MaxZoom < 0 || c.Cluster.MaxZoom > 30 {
		errs = append(errs, fmt.Sprintf("cluster.max_zoom must be 0-30, got %d", c.Cluster.MaxZoom))
	}
	if c.Cluster.MinPoints < 0 {
		errs = append(errs, "cluster.min_points must not be negative")
	}
	if c.Cluster.MaxIndexes <= 0 {
		errs = append(errs, "cluster.max_indexes must be positive")
	}
	if c.Session.DebounceMS <= 0 {
		errs = append(errs, "session.debounce_ms must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
