// Package store 组合租户注册表、连接管理、字段加密与备份，
// 对外提供统一的多租户存储门面。
package store

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tenantstore/internal/backup"
	"tenantstore/internal/crypto"
	"tenantstore/internal/domain/entity"
	"tenantstore/internal/domain/repository"
	"tenantstore/internal/infrastructure/persistence/postgres"
	"tenantstore/internal/tenant"
	apperrors "tenantstore/pkg/errors"
	"tenantstore/pkg/logger"
)

var tracer = otel.Tracer("store")

// Store 多租户存储门面
//
// 调用方先 SetTenantContext 激活租户，之后经 RepositoryFor 获得的
// 仓储以及备份、密钥操作都自动落在活动租户上，无处指定租户 ID。
type Store struct {
	registry repository.TenantRegistry
	conns    *postgres.ConnManager
	keys     *crypto.KeyManager
	backups  *backup.Manager
}

// New 创建存储门面
func New(registry repository.TenantRegistry, conns *postgres.ConnManager, keys *crypto.KeyManager, backups *backup.Manager) *Store {
	return &Store{registry: registry, conns: conns, keys: keys, backups: backups}
}

// SetTenantContext 激活租户，返回携带租户上下文的派生 context
// 未登记的租户返回 ErrTenantNotFound，停用的租户返回 ErrTenantSuspended
func (s *Store) SetTenantContext(ctx context.Context, tenantID string) (context.Context, error) {
	ctx, span := tracer.Start(ctx, "store.SetTenantContext",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	tc, err := s.registry.GetByID(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if tc == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if tc.Status == entity.TenantStatusSuspended {
		return nil, apperrors.ErrTenantSuspended
	}
	if !tc.IsActive() {
		return nil, apperrors.ErrTenantNotFound
	}

	activated, err := tenant.Activate(ctx, tc)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 预热连接源，让激活失败在这里暴露而不是第一条查询
	if _, err := s.conns.Source(activated, tenantID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Debug(activated, "tenant context activated")
	return activated, nil
}

// ClearTenantContext 清除活动租户，返回派生 context
func (s *Store) ClearTenantContext(ctx context.Context) context.Context {
	return tenant.Deactivate(ctx)
}

// CreateBackup 为指定租户创建备份，租户必须是当前活动租户
func (s *Store) CreateBackup(ctx context.Context, tenantID string) (*entity.BackupRecord, error) {
	if err := s.validateTarget(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.backups.Create(ctx)
}

// RestoreBackup 恢复指定租户的备份，租户必须是当前活动租户
func (s *Store) RestoreBackup(ctx context.Context, tenantID, backupID string) error {
	if err := s.validateTarget(ctx, tenantID); err != nil {
		return err
	}
	return s.backups.Restore(ctx, backupID)
}

// ListBackups 列出指定租户的备份，最新在前
func (s *Store) ListBackups(ctx context.Context, tenantID string) ([]*entity.BackupRecord, error) {
	if err := s.validateTarget(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.backups.List(ctx)
}

// RotateEncryptionKey 轮换指定租户的数据密钥
// 已落库的密文仍由旧密钥加密，轮换后无法解出，调用方需自行重写存量数据
func (s *Store) RotateEncryptionKey(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "store.RotateEncryptionKey")
	defer span.End()

	if err := s.validateTarget(ctx, tenantID); err != nil {
		return err
	}
	if err := s.keys.RotateKey(ctx, tenantID); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Info(ctx, "tenant encryption key rotated")
	return nil
}

// Registry 暴露租户注册表，供控制面管理租户
func (s *Store) Registry() repository.TenantRegistry {
	return s.registry
}

// Close 释放全部租户连接源
func (s *Store) Close() error {
	return s.conns.CloseAll()
}

// validateTarget 确认请求目标就是当前活动租户
func (s *Store) validateTarget(ctx context.Context, tenantID string) error {
	tc, err := tenant.Active(ctx)
	if err != nil {
		return err
	}
	if tc.TenantID != tenantID {
		return apperrors.ErrInvalidTenantContext
	}
	return nil
}
