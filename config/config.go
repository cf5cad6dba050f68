// Package config reads service settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendTables   = "tables"
	BackendPostgres = "postgres"
)

// Config holds all settings of the board service.
type Config struct {
	Backend          string
	ConnectionString string
	TasksTable       string
	EventsQueue      string
	PostgresURL      string

	RedisConnection string
	UpdatesChannel  string
	BoardCacheTTL   time.Duration

	Auth0Domain   string
	Auth0Audience string
	AuthTestMode  bool
	TestJWTSecret string

	Port            string
	Debug           bool
	LogFormat       string
	StreamHeartbeat time.Duration
	MaxMoveAttempts int
}

// Load reads the configuration and validates it.
func Load() (Config, error) {
	var err error
	cfg := Config{
		Backend:          strings.ToLower(envStr("STORAGE_BACKEND", BackendMemory)),
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:       envStr("TASKS_TABLE", "tasks"),
		EventsQueue:      os.Getenv("EVENTS_QUEUE"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		RedisConnection:  os.Getenv("REDIS_CONNECTION_STRING"),
		UpdatesChannel:   envStr("UPDATES_CHANNEL", "board-updates"),
		Auth0Domain:      os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:    os.Getenv("AUTH0_AUDIENCE"),
		TestJWTSecret:    os.Getenv("TEST_JWT_SECRET"),
		Port:             envStr("PORT", "8080"),
		LogFormat:        strings.ToLower(os.Getenv("LOG_FORMAT")),
	}
	if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.Port = v
	}
	if cfg.BoardCacheTTL, err = envDur("BOARD_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StreamHeartbeat, err = envDur("STREAM_HEARTBEAT", 25*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MaxMoveAttempts, err = envInt("MAX_MOVE_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = envBool("DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.AuthTestMode, err = envBool("AUTH0_TEST_MODE", false); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendTables:
		if c.ConnectionString == "" || c.TasksTable == "" {
			return errors.New("tables backend needs STORAGE_CONNECTION_STRING and TASKS_TABLE")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres backend needs POSTGRES_URL")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q", c.Backend)
	}
	if c.EventsQueue != "" && c.ConnectionString == "" {
		return errors.New("EVENTS_QUEUE needs STORAGE_CONNECTION_STRING")
	}
	if c.AuthTestMode {
		if c.TestJWTSecret == "" {
			return errors.New("AUTH0_TEST_MODE needs TEST_JWT_SECRET")
		}
	} else if c.Auth0Domain == "" || c.Auth0Audience == "" {
		return errors.New("missing Auth0 config")
	}
	if c.MaxMoveAttempts < 1 {
		return errors.New("invalid MAX_MOVE_ATTEMPTS: must be greater than zero")
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// Issuer is the expected token issuer for the configured Auth0 tenant.
func (c Config) Issuer() string {
	if c.Auth0Domain == "" {
		return ""
	}
	return "https://" + c.Auth0Domain + "/"
}

// JWKSURL is where the tenant publishes its signing keys.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// RedisOptions accepts redis:// URLs as well as Azure style
// "host:port,password=...,ssl=True" strings.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "password":
			opts.Password = v
		case "ssl":
			if strings.EqualFold(v, "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
