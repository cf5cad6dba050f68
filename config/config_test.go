package config

import (
	"strings"
	"testing"
	"time"
)

func setTestAuth(t *testing.T) {
	t.Setenv("AUTH0_TEST_MODE", "1")
	t.Setenv("TEST_JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setTestAuth(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.Port != "8080" || cfg.UpdatesChannel != "board-updates" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.BoardCacheTTL != 5*time.Minute || cfg.StreamHeartbeat != 25*time.Second || cfg.MaxMoveAttempts != 3 {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if !cfg.AuthTestMode || cfg.Debug {
		t.Fatalf("unexpected flags %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "Postgres")
	t.Setenv("POSTGRES_URL", "postgres://localhost/board")
	t.Setenv("AUTH0_DOMAIN", "tenant.eu.auth0.com")
	t.Setenv("AUTH0_AUDIENCE", "api://board")
	t.Setenv("STREAM_HEARTBEAT", "5s")
	t.Setenv("MAX_MOVE_ATTEMPTS", "5")
	t.Setenv("DEBUG", "true")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "7071")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendPostgres || cfg.Port != "7071" || cfg.MaxMoveAttempts != 5 || !cfg.Debug {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.StreamHeartbeat != 5*time.Second {
		t.Fatalf("unexpected heartbeat %v", cfg.StreamHeartbeat)
	}
	if cfg.Issuer() != "https://tenant.eu.auth0.com/" {
		t.Fatalf("unexpected issuer %s", cfg.Issuer())
	}
	if cfg.JWKSURL() != "https://tenant.eu.auth0.com/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks url %s", cfg.JWKSURL())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad backend", map[string]string{"STORAGE_BACKEND": "mongo"}, "STORAGE_BACKEND"},
		{"tables without connection", map[string]string{"STORAGE_BACKEND": "tables"}, "STORAGE_CONNECTION_STRING"},
		{"postgres without url", map[string]string{"STORAGE_BACKEND": "postgres"}, "POSTGRES_URL"},
		{"queue without connection", map[string]string{"EVENTS_QUEUE": "events"}, "EVENTS_QUEUE"},
		{"bad ttl", map[string]string{"BOARD_CACHE_TTL": "soon"}, "BOARD_CACHE_TTL"},
		{"negative heartbeat", map[string]string{"STREAM_HEARTBEAT": "-1s"}, "STREAM_HEARTBEAT"},
		{"bad attempts", map[string]string{"MAX_MOVE_ATTEMPTS": "x"}, "MAX_MOVE_ATTEMPTS"},
		{"zero attempts", map[string]string{"MAX_MOVE_ATTEMPTS": "0"}, "MAX_MOVE_ATTEMPTS"},
		{"bad debug", map[string]string{"DEBUG": "maybe"}, "DEBUG"},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"test mode without secret", map[string]string{"TEST_JWT_SECRET": ""}, "TEST_JWT_SECRET"},
		{"missing auth0", map[string]string{"AUTH0_TEST_MODE": "0"}, "Auth0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestAuth(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:pw@localhost:6380/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts, err = RedisOptions("board.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "board.redis.cache.windows.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected azure options %+v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}
