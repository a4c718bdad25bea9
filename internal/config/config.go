// Package config loads the application configuration: a .env file, an
// optional YAML file and environment overrides, validated on load.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Network sources
const (
	SourceDB   = "db"
	SourceGTFS = "gtfs"
	SourceJSON = "json"
)

// Config is the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Network   NetworkConfig   `yaml:"network"`
	Routing   RoutingConfig   `yaml:"routing"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	NATS      NATSConfig      `yaml:"nats"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	CORSOrigins  string        `yaml:"cors_origins"`
}

// DatabaseConfig is the Postgres connection and pool configuration
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gt=0,lte=65535"`
	Name     string `yaml:"name" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MinConns int    `yaml:"min_conns" validate:"gte=0"`
	MaxConns int    `yaml:"max_conns" validate:"gt=0,gtefield=MinConns"`
	// MaxConnLifetime and MaxConnIdleTime fall back to pgxpool's own
	// defaults when zero
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" validate:"gte=0"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" validate:"gte=0"`
	// SimpleProtocol disables prepared statements, as transaction-mode
	// poolers (pgbouncer, Supabase on 6543) require
	SimpleProtocol bool `yaml:"simple_protocol"`
}

// NetworkConfig selects where the served timetable comes from
type NetworkConfig struct {
	Source   string `yaml:"source" validate:"oneof=db gtfs json"`
	GTFSPath string `yaml:"gtfs_path" validate:"required_if=Source gtfs"`
	JSONPath string `yaml:"json_path" validate:"required_if=Source json"`
	// ServiceDate is YYYY-MM-DD; empty means today in Timezone
	ServiceDate string        `yaml:"service_date" validate:"omitempty,datetime=2006-01-02"`
	Timezone    string        `yaml:"timezone" validate:"required"`
	Reload      time.Duration `yaml:"reload_interval" validate:"gte=0"`
	// GTFS stops closer than this many meters are merged; 0 disables
	MergeDistance float64 `yaml:"merge_distance_meters" validate:"gte=0"`
}

type RoutingConfig struct {
	MinimumTransferTime time.Duration `yaml:"minimum_transfer_time" validate:"gte=0"`
	QueryTimeout        time.Duration `yaml:"query_timeout" validate:"gt=0"`
}

type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TTL         time.Duration `yaml:"ttl" validate:"gt=0"`
	LockTimeout time.Duration `yaml:"lock_timeout" validate:"gt=0"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"gt=0"`
	Burst             int  `yaml:"burst" validate:"gt=0"`
}

type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys" validate:"required_if=Enabled true,dive,startswith=pk_"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"required_if=Enabled true"`
	Subject string `yaml:"subject" validate:"required"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			CORSOrigins:  "*",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "connscan",
			User:            "postgres",
			SSLMode:         "disable",
			MinConns:        2,
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Network: NetworkConfig{
			Source:   SourceDB,
			Timezone: "UTC",
		},
		Routing: RoutingConfig{
			MinimumTransferTime: 5 * time.Minute,
			QueryTimeout:        5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:     true,
			TTL:         10 * time.Minute,
			LockTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             20,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "journeys",
		},
	}
}

// Load reads .env into the environment (ignored if missing), then the YAML
// file at path when path is not empty, then applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Network.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: timezone %q: %w", cfg.Network.Timezone, err)
	}
	return nil
}

// Location returns the network timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Network.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ServiceDate returns the configured service date at midnight in the
// network timezone, or the date of now there when none is configured.
func (c *Config) ServiceDate(now time.Time) (time.Time, error) {
	loc := c.Location()
	if c.Network.ServiceDate == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", c.Network.ServiceDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid service date %q: %w", c.Network.ServiceDate, err)
	}
	return day, nil
}

func applyEnv(cfg *Config) error {
	if err := setInt(&cfg.Server.Port, "PORT"); err != nil {
		return err
	}
	setString(&cfg.Server.CORSOrigins, "CORS_ORIGINS")

	setString(&cfg.Database.Host, "DB_HOST")
	if err := setInt(&cfg.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	if err := setInt(&cfg.Database.MinConns, "DB_MIN_CONNS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Database.MaxConns, "DB_MAX_CONNS"); err != nil {
		return err
	}
	if err := setBool(&cfg.Database.SimpleProtocol, "DB_SIMPLE_PROTOCOL"); err != nil {
		return err
	}

	setString(&cfg.Network.Source, "NETWORK_SOURCE")
	setString(&cfg.Network.GTFSPath, "GTFS_PATH")
	setString(&cfg.Network.JSONPath, "TIMETABLE_PATH")
	setString(&cfg.Network.ServiceDate, "SERVICE_DATE")
	setString(&cfg.Network.Timezone, "TIMEZONE")
	if err := setDuration(&cfg.Network.Reload, "NETWORK_RELOAD_INTERVAL"); err != nil {
		return err
	}

	if err := setDuration(&cfg.Routing.MinimumTransferTime, "MIN_TRANSFER_TIME"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Routing.QueryTimeout, "QUERY_TIMEOUT"); err != nil {
		return err
	}

	if err := setBool(&cfg.Cache.Enabled, "CACHE_ENABLED"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Cache.TTL, "CACHE_TTL"); err != nil {
		return err
	}

	if err := setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED"); err != nil {
		return err
	}
	if err := setInt(&cfg.RateLimit.RequestsPerMinute, "RATE_LIMIT_RPM"); err != nil {
		return err
	}

	if err := setBool(&cfg.Auth.Enabled, "AUTH_ENABLED"); err != nil {
		return err
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Auth.APIKeys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, k)
			}
		}
	}

	if err := setBool(&cfg.NATS.Enabled, "NATS_ENABLED"); err != nil {
		return err
	}
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "NATS_SUBJECT")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("90s") or a bare number of seconds
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = d
	return nil
}
