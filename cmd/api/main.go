package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"

	_ "github.com/redmonkez12/todo-app/docs" // Swagger docs
	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/auth"
	"github.com/redmonkez12/todo-app/internal/config"
	"github.com/redmonkez12/todo-app/internal/database"
	httpServer "github.com/redmonkez12/todo-app/internal/http"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/metrics"
	"github.com/redmonkez12/todo-app/internal/password"
	"github.com/redmonkez12/todo-app/internal/ratelimit"
	"github.com/redmonkez12/todo-app/internal/rpc"
)

// @title           Todo API
// @version         1.0
// @description     Multi-user to-do list: account auth, per-user entry procedures and guest entry caches.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"refresh_token_store", cfg.Auth.RefreshTokenStore,
	)

	if err := database.RunMigrations(cfg.Database.URL()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.Open(cfg.Database.URL(), database.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	accounts := account.NewStore(
		account.NewBunRepository(db),
		password.NewHasher(password.DefaultParams),
		account.NewCache(cfg.Cache.AccountCapacity, collector),
		logger,
	)

	pasetoService, err := auth.NewPasetoService(cfg.Auth.PasetoKey)
	if err != nil {
		return fmt.Errorf("failed to initialize PASETO service: %w", err)
	}

	var guestCaches auth.GuestCaches
	var guestHandler *auth.GuestHandler
	var claimer *auth.GuestClaimer
	if cfg.Guest.ServerCache {
		guestCaches = func(guestID string) *localcache.Cache {
			return localcache.New(localcache.NewRedisStorage(redisClient, guestID, cfg.Guest.TTL))
		}
		guestHandler = auth.NewGuestHandler(guestCaches, !cfg.Server.IsDevelopment(), cfg.Guest.TTL)
		claimer = auth.NewGuestClaimer(accounts, guestCaches, logger, collector)
	}

	authService := auth.NewService(
		accounts,
		refreshTokenRepository(cfg.Auth.RefreshTokenStore, db, redisClient),
		pasetoService,
		claimer,
		logger,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)

	var ipLimiter *ratelimit.Limiter
	var userLimiter *ratelimit.UserLimiter
	if cfg.RateLimit.Enabled {
		ipLimiter = ratelimit.NewLimiter(redisClient, cfg.RateLimit.IPLimit, cfg.RateLimit.IPWindow)
		userLimiter = ratelimit.NewUserLimiter(ratelimit.UserConfig{
			Rate:  rate.Limit(cfg.RateLimit.UserRate),
			Burst: cfg.RateLimit.UserBurst,
		})
		defer userLimiter.Stop()
	}

	router := httpServer.NewRouter(httpServer.Deps{
		Config: cfg,
		Logger: logger,
		Auth: auth.NewHandler(
			authService,
			ipLimiter,
			!cfg.Server.IsDevelopment(), // isProduction
			cfg.Auth.AccessTokenDuration,
			cfg.Auth.RefreshTokenDuration,
		),
		AuthMiddleware: auth.NewMiddleware(pasetoService),
		Guest:          guestHandler,
		RPC:            rpc.NewHandler(accounts),
		UserLimiter:    userLimiter,
		Metrics:        collector,
		Gatherer:       reg,
		Checks: map[string]httpServer.HealthCheck{
			"database": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go authService.CleanupExpiredTokens(ctx, cfg.Auth.TokenCleanupInterval)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func refreshTokenRepository(store string, db *bun.DB, client *redis.Client) auth.RefreshTokenRepository {
	switch store {
	case "redis":
		return auth.NewRedisRepository(client)
	case "memory":
		return auth.NewMemoryRepository()
	default:
		return auth.NewRepository(db)
	}
}

// initRedis connects and pings Redis
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
