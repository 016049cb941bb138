// Package tenant 维护请求/任务级的活动租户上下文
//
// 活动租户通过 context 传播，天然随 goroutine 作用域隔离，
// 并发请求之间互不可见，不存在进程级共享状态。
package tenant

import (
	"context"

	"tenantstore/internal/domain/entity"
	"tenantstore/pkg/errors"
	"tenantstore/pkg/logger"
	"tenantstore/pkg/metrics"
)

// activeKey 活动租户的 context 键
type activeKey struct{}

// Activate 将租户上下文绑定到 ctx，返回派生 context
// 同一 ctx 上重复激活会覆盖之前的活动租户
func Activate(ctx context.Context, tc *entity.TenantContext) (context.Context, error) {
	if tc == nil {
		return nil, errors.ErrInvalidParam.WithDetail("tenant context is nil")
	}
	if err := tc.Validate(); err != nil {
		return nil, errors.ErrInvalidParam.WithError(err)
	}
	ctx = context.WithValue(ctx, activeKey{}, tc)
	// 让日志自动携带租户标识
	ctx = logger.WithContext(ctx, logger.TenantIDKey, tc.TenantID)
	return ctx, nil
}

// Deactivate 清除活动租户，返回派生 context
func Deactivate(ctx context.Context) context.Context {
	return context.WithValue(ctx, activeKey{}, (*entity.TenantContext)(nil))
}

// Active 返回当前活动租户，没有任何活动租户时返回 ErrTenantNotConfigured
func Active(ctx context.Context) (*entity.TenantContext, error) {
	tc, ok := ctx.Value(activeKey{}).(*entity.TenantContext)
	if !ok || tc == nil {
		return nil, errors.ErrTenantNotConfigured
	}
	return tc, nil
}

// AssertAccess 校验对 tenantID 的访问是否属于活动租户
// 任何数据访问在触达存储层之前都必须通过该检查
func AssertAccess(ctx context.Context, tenantID string) error {
	tc, err := Active(ctx)
	if err != nil {
		return err
	}
	if tc.TenantID != tenantID {
		metrics.CrossTenantRejections.Inc()
		// 错误信息不携带任何租户标识，避免跨租户信息泄露
		return errors.ErrCrossTenantAccess
	}
	return nil
}
