package store

import (
	"context"

	"tenantstore/internal/domain/entity"
	"tenantstore/internal/domain/repository"
	"tenantstore/internal/infrastructure/persistence/postgres"
	"tenantstore/internal/tenant"
	apperrors "tenantstore/pkg/errors"
)

// RepositoryFor 返回按活动租户隔离策略自动分派的仓储
// 调用方拿到统一的 Repository 契约，永远不感知策略差异
func RepositoryFor[T any](s *Store, mapping repository.Mapping[T]) repository.Repository[T] {
	return &strategyRepository[T]{
		row:    postgres.NewRowRepository(s.conns, mapping, s.keys),
		schema: postgres.NewSchemaRepository(s.conns, mapping, s.keys),
	}
}

// strategyRepository 每次调用时按活动租户的配置选择底层实现
type strategyRepository[T any] struct {
	row    *postgres.RowRepository[T]
	schema *postgres.SchemaRepository[T]
}

func (r *strategyRepository[T]) delegate(ctx context.Context) (repository.Repository[T], error) {
	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, err
	}
	switch tc.IsolationStrategy {
	case entity.IsolationSchema:
		return r.schema, nil
	case entity.IsolationRow:
		return r.row, nil
	default:
		// Activate 已校验过策略，不应到达这里
		return nil, apperrors.ErrInvalidParam.WithDetail("unknown isolation strategy")
	}
}

func (r *strategyRepository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	d, err := r.delegate(ctx)
	if err != nil {
		return nil, err
	}
	return d.GetByID(ctx, id)
}

func (r *strategyRepository[T]) GetAll(ctx context.Context) ([]*T, error) {
	d, err := r.delegate(ctx)
	if err != nil {
		return nil, err
	}
	return d.GetAll(ctx)
}

func (r *strategyRepository[T]) Create(ctx context.Context, e *T) error {
	d, err := r.delegate(ctx)
	if err != nil {
		return err
	}
	return d.Create(ctx, e)
}

func (r *strategyRepository[T]) Update(ctx context.Context, e *T) (bool, error) {
	d, err := r.delegate(ctx)
	if err != nil {
		return false, err
	}
	return d.Update(ctx, e)
}

func (r *strategyRepository[T]) Delete(ctx context.Context, id string) (bool, error) {
	d, err := r.delegate(ctx)
	if err != nil {
		return false, err
	}
	return d.Delete(ctx, id)
}
