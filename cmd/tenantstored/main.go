// Package main 多租户存储服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenantstore/internal/backup"
	"tenantstore/internal/config"
	"tenantstore/internal/crypto"
	"tenantstore/internal/domain/repository"
	"tenantstore/internal/infrastructure/persistence/postgres"
	"tenantstore/internal/infrastructure/persistence/redis"
	"tenantstore/internal/interfaces/http/middleware"
	"tenantstore/internal/interfaces/http/router"
	"tenantstore/internal/store"
	"tenantstore/pkg/logger"
	"tenantstore/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting tenantstored",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Postgres：租户注册表所在的默认库
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer func() {
		if err := pgClient.Close(); err != nil {
			log.Error("failed to close postgres", "error", err)
		}
	}()

	// Redis 可选，缺失时注册表直连库、限流直接放行
	var (
		redisClient *redis.Client
		limiter     middleware.TenantRateLimiter
	)
	var registry repository.TenantRegistry = postgres.NewTenantRegistry(pgClient)
	if redisClient, err = redis.NewClient(&cfg.Cache.Redis); err != nil {
		log.Warn("redis unavailable, tenant cache and rate limit disabled", "error", err)
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("failed to close redis", "error", err)
			}
		}()
		cache := redis.NewCache(redisClient)
		registry = redis.NewCachedTenantRegistry(registry, cache, cfg.Cache.TenantTTL)
		limiter = redis.NewRateLimiter(redisClient)
	}

	// 密钥管理器
	keys, err := crypto.NewKeyManager(&cfg.Encryption)
	if err != nil {
		logger.Fatal(ctx, "failed to init key manager", err)
	}

	// 每租户连接管理与备份
	conns := postgres.NewConnManager(&cfg.Database.Postgres)
	backups := backup.NewManager(&cfg.Backup, &cfg.Database.Postgres)

	// 存储门面
	st := store.New(registry, conns, keys, backups)
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("failed to close tenant connections", "error", err)
		}
	}()

	// 路由
	r := router.New(cfg, st, pgClient, redisClient, limiter)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
