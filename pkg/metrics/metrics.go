// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tenantstore"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 连接池指标
	PoolSourcesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "sources_created_total",
			Help:      "Total number of per-tenant connection sources created",
		},
	)

	PoolSourcesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "sources_active",
			Help:      "Current number of cached per-tenant connection sources",
		},
	)

	// 仓储指标
	RepositoryQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "query_duration_seconds",
			Help:      "Repository operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"strategy", "operation"}, // strategy: schema/row
	)

	RepositoryQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "query_total",
			Help:      "Total number of repository operations",
		},
		[]string{"strategy", "operation", "status"},
	)

	// 越权访问指标
	CrossTenantRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "cross_tenant_rejections_total",
			Help:      "Total number of rejected cross-tenant access attempts",
		},
	)

	// 备份指标
	BackupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "operations_total",
			Help:      "Total number of backup operations",
		},
		[]string{"operation", "status"}, // operation: create/restore/cleanup
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "duration_seconds",
			Help:      "Backup operation duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	BackupSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "size_bytes",
			Help:      "Size of created backup artifacts in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// 加密指标
	CryptoOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crypto",
			Name:      "operations_total",
			Help:      "Total number of field encryption operations",
		},
		[]string{"operation", "status"}, // operation: encrypt/decrypt/derive/rotate
	)

	// 缓存指标
	TenantCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "tenant_lookups_total",
			Help:      "Total number of tenant config cache lookups",
		},
		[]string{"result"}, // result: hit/miss/error
	)
)
