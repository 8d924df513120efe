package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration, resolved once at startup and passed
// to every component that needs it.
type Config struct {
	Port            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RunMigrations   bool

	Database DatabaseConfig
	Redis    RedisConfig

	AuthEnabled bool
	JWTSecret   string

	ReservationTTL      time.Duration
	IdempotencyCacheTTL time.Duration
	LockTimeout         time.Duration
	ReferencePrefix     string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the idempotency cache connection settings.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

var envBindings = map[string]string{
	"port":                      "PORT",
	"log.level":                 "LOG_LEVEL",
	"log.format":                "LOG_FORMAT",
	"shutdown_timeout":          "SHUTDOWN_TIMEOUT",
	"run_migrations":            "RUN_MIGRATIONS",
	"database.host":             "DATABASE_HOST",
	"database.port":             "DATABASE_PORT",
	"database.user":             "DATABASE_USER",
	"database.password":         "DATABASE_PASSWORD",
	"database.name":             "DATABASE_NAME",
	"database.ssl_mode":         "DATABASE_SSL_MODE",
	"database.max_open":         "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle":         "DATABASE_MAX_IDLE_CONNS",
	"database.max_lifetime":     "DATABASE_CONN_MAX_LIFETIME",
	"redis.host":                "REDIS_HOST",
	"redis.port":                "REDIS_PORT",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"auth.enabled":              "AUTH_ENABLED",
	"jwt.secret_key":            "JWT_SECRET_KEY",
	"transfer.reservation_ttl":  "RESERVATION_TTL",
	"transfer.idempotency_ttl":  "IDEMPOTENCY_CACHE_TTL",
	"transfer.lock_timeout":     "LOCK_TIMEOUT",
	"transfer.reference_prefix": "REFERENCE_PREFIX",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("run_migrations", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "ledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open", 25)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.max_lifetime", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("jwt.secret_key", "")

	v.SetDefault("transfer.reservation_ttl", 5*time.Minute)
	v.SetDefault("transfer.idempotency_ttl", 24*time.Hour)
	v.SetDefault("transfer.lock_timeout", 5*time.Second)
	v.SetDefault("transfer.reference_prefix", "TXN")
}

// Load reads an optional .env file and the environment. Environment
// variables win over the file.
func Load(envFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		// a missing .env is fine; defaults and the environment still apply
		if err := v.ReadInConfig(); err == nil {
			for key, env := range envBindings {
				if fileVal := v.Get(strings.ToLower(env)); fileVal != nil {
					v.SetDefault(key, fileVal)
				}
			}
		}
	}

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := Config{
		Port:            v.GetString("port"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		RunMigrations:   v.GetBool("run_migrations"),
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open"),
			MaxIdleConns:    v.GetInt("database.max_idle"),
			ConnMaxLifetime: v.GetDuration("database.max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		AuthEnabled:         v.GetBool("auth.enabled"),
		JWTSecret:           v.GetString("jwt.secret_key"),
		ReservationTTL:      v.GetDuration("transfer.reservation_ttl"),
		IdempotencyCacheTTL: v.GetDuration("transfer.idempotency_ttl"),
		LockTimeout:         v.GetDuration("transfer.lock_timeout"),
		ReferencePrefix:     v.GetString("transfer.reference_prefix"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY must be set when AUTH_ENABLED=true")
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive, got %s", c.ReservationTTL)
	}
	if c.ReferencePrefix == "" {
		return fmt.Errorf("REFERENCE_PREFIX must not be empty")
	}
	return nil
}
