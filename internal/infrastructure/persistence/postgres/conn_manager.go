// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"tenantstore/internal/config"
	"tenantstore/internal/tenant"
	"tenantstore/pkg/logger"
	"tenantstore/pkg/metrics"
)

// ConnManager 按租户缓存池化连接源
//
// 每个租户一个 *sql.DB，首次访问时惰性创建；创建路径由 singleflight
// 去重并只在登记缓存的瞬间持有写锁，常规路径只取读锁。
// 创建时不拨号，首次真实查询才会建立物理连接。
type ConnManager struct {
	cfg *config.PostgresConfig

	mu      sync.RWMutex
	sources map[string]*sql.DB
	closed  bool

	sf singleflight.Group

	// openFn 打开连接源，测试可替换
	openFn func(dsn string) (*sql.DB, error)
}

// NewConnManager 创建连接管理器
func NewConnManager(cfg *config.PostgresConfig) *ConnManager {
	return &ConnManager{
		cfg:     cfg,
		sources: make(map[string]*sql.DB),
		openFn: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

// Source 返回租户的池化连接源，必要时创建
// 先经过跨租户守卫：调用方持有 A 租户上下文时即使显式传入 B 的 ID 也拿不到 B 的源
func (m *ConnManager) Source(ctx context.Context, tenantID string) (*sql.DB, error) {
	if err := tenant.AssertAccess(ctx, tenantID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	db, ok := m.sources[tenantID]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("connection manager is closed")
	}
	if ok {
		return db, nil
	}

	// 守卫已确认 tenantID 即活动租户，连接目标取自活动上下文
	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, err
	}

	v, err, _ := m.sf.Do(tenantID, func() (interface{}, error) {
		// 双重检查：singleflight 合并了并发调用，但上一轮可能已完成创建
		m.mu.RLock()
		db, ok := m.sources[tenantID]
		m.mu.RUnlock()
		if ok {
			return db, nil
		}

		dsn := tc.ConnectionTarget
		if dsn == "" {
			dsn = m.cfg.DSN()
		}

		db, err := m.openFn(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open tenant source: %w", err)
		}
		db.SetMaxOpenConns(m.cfg.TenantMaxOpenConns)
		db.SetMaxIdleConns(m.cfg.TenantMaxIdleConns)
		db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(m.cfg.ConnMaxIdleTime)

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			db.Close()
			return nil, fmt.Errorf("connection manager is closed")
		}
		m.sources[tenantID] = db
		active := len(m.sources)
		m.mu.Unlock()

		metrics.PoolSourcesCreated.Inc()
		metrics.PoolSourcesActive.Set(float64(active))
		logger.Info(ctx, "tenant connection source created", "pool_max_open", m.cfg.TenantMaxOpenConns)

		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

// Session 返回绑定到租户连接源的新逻辑会话
// 池耗尽表现为底层的等待/超时错误，原样向上传播，本层不做重试
func (m *ConnManager) Session(ctx context.Context, tenantID string) (*sql.Conn, error) {
	db, err := m.Source(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	return conn, nil
}

// CloseAll 释放全部连接源，用于进程退出
func (m *ConnManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, db := range m.sources {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source %s: %w", id, err))
		}
	}
	m.sources = make(map[string]*sql.DB)
	m.closed = true
	metrics.PoolSourcesActive.Set(0)

	return errors.Join(errs...)
}
