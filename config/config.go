// Package config loads the server configuration through viper.
//
// Precedence, lowest first: defaults, optional YAML file, ZAKO_* environment
// variables, command flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "ZAKO"

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Store   StoreConfig   `mapstructure:"store"`
	Geo     GeoConfig     `mapstructure:"geo"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StoreConfig struct {
	Driver         string         `mapstructure:"driver"`
	DSN            string         `mapstructure:"dsn"`
	ConnectTimeout time.Duration  `mapstructure:"connect_timeout"`
	DynamoDB       DynamoDBConfig `mapstructure:"dynamodb"`
}

type DynamoDBConfig struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	TablePrefix  string `mapstructure:"table_prefix"`
	CreateTables bool   `mapstructure:"create_tables"`
}

type GeoConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type SessionConfig struct {
	CookieName       string `mapstructure:"cookie_name"`
	ClientCookieName string `mapstructure:"client_cookie_name"`
	SecureCookie     bool   `mapstructure:"secure_cookie"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key so that environment overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "data/zako.db")
	v.SetDefault("store.connect_timeout", 30*time.Second)
	v.SetDefault("store.dynamodb.region", "us-east-1")
	v.SetDefault("store.dynamodb.endpoint", "")
	v.SetDefault("store.dynamodb.table_prefix", "")
	v.SetDefault("store.dynamodb.create_tables", false)
	v.SetDefault("geo.enabled", true)
	v.SetDefault("geo.endpoint", "https://ip9.com.cn/get")
	v.SetDefault("geo.timeout", 3*time.Second)
	v.SetDefault("geo.cache_ttl", 6*time.Hour)
	v.SetDefault("session.cookie_name", "zako_session")
	v.SetDefault("session.client_cookie_name", "zako_uuid")
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("health.addr", ":8086")
}

// Load reads configuration into a Config. file may be empty.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	// PORT predates the ZAKO_ variables; it only replaces the default address
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		v.SetDefault("server.addr", ":"+port)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	case DriverDynamoDB:
		if c.Store.DynamoDB.Region == "" {
			errs = append(errs, errors.New("store.dynamodb.region is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.request_timeout":  c.Server.RequestTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"store.connect_timeout":   c.Store.ConnectTimeout,
		"geo.timeout":             c.Geo.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	return errors.Join(errs...)
}
