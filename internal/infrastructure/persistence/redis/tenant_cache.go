// Package redis 提供租户配置的读穿缓存
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"tenantstore/internal/domain/entity"
	"tenantstore/internal/domain/repository"
	"tenantstore/pkg/metrics"
)

// CachedTenantRegistry 带 Redis 缓存的租户注册表
//
// 租户激活发生在每个请求的入口，直查数据库会把注册表变成热点，
// 这里按 TTL 缓存激活参数。写操作直写底层注册表并使缓存失效，
// 不存在的租户不缓存，注销后立即生效。
type CachedTenantRegistry struct {
	inner repository.TenantRegistry
	cache *Cache
	ttl   time.Duration

	group singleflight.Group
}

// NewCachedTenantRegistry 创建带缓存的租户注册表
func NewCachedTenantRegistry(inner repository.TenantRegistry, cache *Cache, ttl time.Duration) *CachedTenantRegistry {
	return &CachedTenantRegistry{inner: inner, cache: cache, ttl: ttl}
}

func tenantConfigKey(id string) string {
	return fmt.Sprintf("tenant:%s:config", id)
}

// Create 登记租户
func (r *CachedTenantRegistry) Create(ctx context.Context, tc *entity.TenantContext) error {
	return r.inner.Create(ctx, tc)
}

// GetByID 获取租户激活参数，优先走缓存
func (r *CachedTenantRegistry) GetByID(ctx context.Context, id string) (*entity.TenantContext, error) {
	key := tenantConfigKey(id)

	if data, err := r.cache.Get(ctx, key); err == nil {
		metrics.TenantCacheHits.WithLabelValues("hit").Inc()
		var tc entity.TenantContext
		if err := json.Unmarshal(data, &tc); err == nil {
			return &tc, nil
		}
		// 缓存内容损坏时当作未命中，回源后覆盖
	}
	metrics.TenantCacheHits.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		tc, err := r.inner.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if tc == nil {
			return (*entity.TenantContext)(nil), nil
		}
		// 缓存写入失败不影响返回结果
		_ = r.cache.Set(ctx, key, tc, r.ttl)
		return tc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.TenantContext), nil
}

// Update 更新租户并使缓存失效
func (r *CachedTenantRegistry) Update(ctx context.Context, tc *entity.TenantContext) error {
	if err := r.inner.Update(ctx, tc); err != nil {
		return err
	}
	return r.cache.Delete(ctx, tenantConfigKey(tc.TenantID))
}

// Delete 注销租户并使缓存失效
func (r *CachedTenantRegistry) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	return r.cache.Delete(ctx, tenantConfigKey(id))
}

// List 获取全部租户，列表不缓存
func (r *CachedTenantRegistry) List(ctx context.Context) ([]*entity.TenantContext, error) {
	return r.inner.List(ctx)
}

// UpdateStatus 更新租户状态并使缓存失效
func (r *CachedTenantRegistry) UpdateStatus(ctx context.Context, id string, status entity.TenantStatus) error {
	if err := r.inner.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	return r.cache.Delete(ctx, tenantConfigKey(id))
}
