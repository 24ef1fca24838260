package config

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PASETO_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "8080" || !cfg.Server.IsDevelopment() {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Auth.RefreshTokenStore != "postgres" || cfg.Auth.AccessTokenDuration != 15*time.Minute {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Cache.AccountCapacity != 1024 || !cfg.RateLimit.Enabled {
		t.Errorf("cache = %+v, rate limit = %+v", cfg.Cache, cfg.RateLimit)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PASETO_KEY", testKey)
	t.Setenv("ACCESS_TOKEN_DURATION", "90")
	t.Setenv("REFRESH_TOKEN_DURATION", "48h")
	t.Setenv("REFRESH_TOKEN_STORE", "redis")
	t.Setenv("TRUSTED_ORIGINS", " https://a.test , ,https://b.test")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RPC_USER_RATE", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.AccessTokenDuration != 90*time.Second {
		t.Errorf("AccessTokenDuration = %v", cfg.Auth.AccessTokenDuration)
	}
	if cfg.Auth.RefreshTokenDuration != 48*time.Hour {
		t.Errorf("RefreshTokenDuration = %v", cfg.Auth.RefreshTokenDuration)
	}
	if cfg.Auth.RefreshTokenStore != "redis" {
		t.Errorf("RefreshTokenStore = %q", cfg.Auth.RefreshTokenStore)
	}
	if got := cfg.Server.TrustedOrigins; len(got) != 2 || got[0] != "https://a.test" || got[1] != "https://b.test" {
		t.Errorf("TrustedOrigins = %v", got)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.UserRate != 0.5 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short key", map[string]string{"PASETO_KEY": "short"}, "PASETO_KEY"},
		{"unknown store", map[string]string{"PASETO_KEY": testKey, "REFRESH_TOKEN_STORE": "memcached"}, "REFRESH_TOKEN_STORE"},
		{"zero capacity", map[string]string{"PASETO_KEY": testKey, "ACCOUNT_CACHE_CAPACITY": "0"}, "ACCOUNT_CACHE_CAPACITY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss", DBName: "todo", SSLMode: "disable"}
	want := "postgres://app:p%40ss@db:5432/todo?sslmode=disable"
	if got := c.URL(); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
