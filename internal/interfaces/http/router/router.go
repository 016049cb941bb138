// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantstore/internal/config"
	"tenantstore/internal/infrastructure/persistence/postgres"
	"tenantstore/internal/infrastructure/persistence/redis"
	"tenantstore/internal/interfaces/http/handler"
	"tenantstore/internal/interfaces/http/middleware"
	"tenantstore/internal/store"
)

// Router HTTP 路由器
type Router struct {
	engine  *gin.Engine
	cfg     *config.Config
	store   *store.Store
	pg      *postgres.Client
	redis   *redis.Client
	limiter middleware.TenantRateLimiter
}

// New 创建新的路由器
//
// limiter 允许为 nil，此时限流中间件直接放行。
func New(cfg *config.Config, st *store.Store, pg *postgres.Client, redisClient *redis.Client, limiter middleware.TenantRateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:  engine,
		cfg:     cfg,
		store:   st,
		pg:      pg,
		redis:   redisClient,
		limiter: limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	healthHandler := handler.NewHealthHandler(r.pg, r.redis)
	tenantHandler := handler.NewTenantHandler(r.store.Registry())
	backupHandler := handler.NewBackupHandler(r.store)

	// 系统端点
	r.engine.GET("/health", healthHandler.Health)
	r.engine.GET("/ready", healthHandler.Ready)
	r.engine.GET("/live", healthHandler.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")

	// 控制面：租户登记管理，不经过租户上下文中间件
	tenants := v1.Group("/tenants")
	{
		tenants.POST("", tenantHandler.Create)
		tenants.GET("", tenantHandler.List)
		tenants.GET("/:id", tenantHandler.Get)
		tenants.PUT("/:id", tenantHandler.Update)
		tenants.PUT("/:id/status", tenantHandler.UpdateStatus)
		tenants.DELETE("/:id", tenantHandler.Delete)
	}

	// 数据面：请求必须携带租户头，中间件负责激活与清除租户上下文
	data := v1.Group("")
	data.Use(middleware.Tenant(r.store, r.cfg.Server.HTTP.TenantHeader))
	data.Use(middleware.RateLimit(r.cfg.Security.RateLimit, r.limiter))
	{
		backups := data.Group("/backups")
		{
			backups.POST("", backupHandler.Create)
			backups.GET("", backupHandler.List)
			backups.POST("/:id/restore", backupHandler.Restore)
		}

		data.POST("/encryption/rotate", backupHandler.RotateKey)
	}
}
