// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"tenantstore/internal/domain/entity"
)

// TenantRegistry 租户激活参数的控制面存储
// 只负责存取激活参数；租户的 schema/库表创建由外部迁移步骤完成
type TenantRegistry interface {
	// Create 登记租户
	Create(ctx context.Context, tc *entity.TenantContext) error

	// GetByID 根据 ID 获取租户，未找到返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.TenantContext, error)

	// Update 更新租户激活参数（隔离策略不可变更）
	Update(ctx context.Context, tc *entity.TenantContext) error

	// Delete 注销租户
	Delete(ctx context.Context, id string) error

	// List 获取全部租户
	List(ctx context.Context) ([]*entity.TenantContext, error)

	// UpdateStatus 更新租户状态
	UpdateStatus(ctx context.Context, id string, status entity.TenantStatus) error
}
