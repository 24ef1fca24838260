package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Guest     GuestConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins for cookie auth
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey            []byte
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	// RefreshTokenStore is "postgres", "redis" or "memory"
	RefreshTokenStore    string
	TokenCleanupInterval time.Duration
}

type CacheConfig struct {
	// AccountCapacity caps the number of accounts held in memory
	AccountCapacity int
}

type RateLimitConfig struct {
	Enabled   bool
	IPLimit   int
	IPWindow  time.Duration
	UserRate  float64 // requests per second
	UserBurst int
}

type GuestConfig struct {
	// ServerCache enables guest entry caches hosted in Redis for browser clients
	ServerCache bool
	TTL         time.Duration
}

// Load reads configuration from environment variables, after loading .env if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "dev"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "todo"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			PasetoKey:            []byte(getEnv("PASETO_KEY", "")),
			AccessTokenDuration:  getDurationEnv("ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getDurationEnv("REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			RefreshTokenStore:    getEnv("REFRESH_TOKEN_STORE", "postgres"),
			TokenCleanupInterval: getDurationEnv("TOKEN_CLEANUP_INTERVAL", time.Hour),
		},
		Cache: CacheConfig{
			AccountCapacity: getIntEnv("ACCOUNT_CACHE_CAPACITY", 1024),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getBoolEnv("RATE_LIMIT_ENABLED", true),
			IPLimit:   getIntEnv("AUTH_IP_LIMIT", 10),
			IPWindow:  getDurationEnv("AUTH_IP_WINDOW", 15*time.Minute),
			UserRate:  getFloatEnv("RPC_USER_RATE", 2),
			UserBurst: getIntEnv("RPC_USER_BURST", 120),
		},
		Guest: GuestConfig{
			ServerCache: getBoolEnv("GUEST_SERVER_CACHE", true),
			TTL:         getDurationEnv("GUEST_CACHE_TTL", 30*24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Auth.PasetoKey) != 32 {
		return fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey))
	}
	switch c.Auth.RefreshTokenStore {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("REFRESH_TOKEN_STORE must be postgres, redis or memory, got %q", c.Auth.RefreshTokenStore)
	}
	if c.Cache.AccountCapacity < 1 {
		return fmt.Errorf("ACCOUNT_CACHE_CAPACITY must be positive, got %d", c.Cache.AccountCapacity)
	}
	if c.RateLimit.UserRate <= 0 || c.RateLimit.UserBurst < 1 {
		return fmt.Errorf("RPC_USER_RATE and RPC_USER_BURST must be positive")
	}
	return nil
}

// URL returns the postgres:// form used by both lib/pq and golang-migrate
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getDurationEnv accepts Go durations ("90s", "15m") or a bare number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
