// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenantstore/internal/domain/repository"
	"tenantstore/internal/tenant"
	"tenantstore/pkg/metrics"
)

// tenantColumn 行隔离模式的租户判别列
// 由仓储透明维护，调用方的领域对象不感知其存在
const tenantColumn = "tenant_id"

// RowRepository 行隔离仓储实现
//
// 所有租户共享数据表，每条读写都注入活动租户的判别条件。
// 隔离完全由本层保证：Update/Delete 命不中其他租户的行时
// 与"不存在"表现一致，不暴露行在别的租户名下是否存在。
type RowRepository[T any] struct {
	conns   *ConnManager
	mapping repository.Mapping[T]
	cipher  repository.FieldCipher
}

// NewRowRepository 创建行隔离仓储
func NewRowRepository[T any](conns *ConnManager, mapping repository.Mapping[T], cipher repository.FieldCipher) *RowRepository[T] {
	return &RowRepository[T]{conns: conns, mapping: mapping, cipher: cipher}
}

// GetByID 按 ID 获取活动租户的实体
func (r *RowRepository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	ctx, span := tracer.Start(ctx, "postgres.RowRepository.GetByID")
	defer span.End()
	defer r.observe("get_by_id", time.Now())

	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, err
	}
	if err := tenant.AssertAccess(ctx, tc.TenantID); err != nil {
		return nil, err
	}

	db, err := r.conns.Source(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	q := getQuerier(ctx, db)

	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s = $1 AND %s = $2",
		r.mapping.IDCol(), columnList(r.mapping), r.mapping.Table, r.mapping.IDCol(), tenantColumn,
	)

	e := new(T)
	dests, swaps, err := prepareDests(r.mapping, r.mapping.Dest(e))
	if err != nil {
		return nil, err
	}

	var entityID string
	scanDests := append([]any{&entityID}, dests...)
	if err := q.QueryRowContext(ctx, query, id, tc.TenantID).Scan(scanDests...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("row", "get_by_id", "error").Inc()
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	r.mapping.SetID(e, entityID)

	if err := applySwaps(ctx, r.cipher, tc.TenantID, swaps); err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.RepositoryQueryTotal.WithLabelValues("row", "get_by_id", "ok").Inc()
	return e, nil
}

// GetAll 获取活动租户的全部实体
func (r *RowRepository[T]) GetAll(ctx context.Context) ([]*T, error) {
	ctx, span := tracer.Start(ctx, "postgres.RowRepository.GetAll")
	defer span.End()
	defer r.observe("get_all", time.Now())

	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, err
	}
	if err := tenant.AssertAccess(ctx, tc.TenantID); err != nil {
		return nil, err
	}

	db, err := r.conns.Source(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	q := getQuerier(ctx, db)

	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s = $1 ORDER BY %s",
		r.mapping.IDCol(), columnList(r.mapping), r.mapping.Table, tenantColumn, r.mapping.IDCol(),
	)

	rows, err := q.QueryContext(ctx, query, tc.TenantID)
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("row", "get_all", "error").Inc()
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		e := new(T)
		dests, swaps, err := prepareDests(r.mapping, r.mapping.Dest(e))
		if err != nil {
			return nil, err
		}
		var entityID string
		if err := rows.Scan(append([]any{&entityID}, dests...)...); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		r.mapping.SetID(e, entityID)
		if err := applySwaps(ctx, r.cipher, tc.TenantID, swaps); err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("row", "get_all", "error").Inc()
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("row", "get_all", "ok").Inc()
	return out, nil
}

// Create 创建实体，判别列由仓储补充
func (r *RowRepository[T]) Create(ctx context.Context, e *T) error {
	ctx, span := tracer.Start(ctx, "postgres.RowRepository.Create")
	defer span.End()
	defer r.observe("create", time.Now())

	tc, err := tenant.Active(ctx)
	if err != nil {
		return err
	}
	if err := tenant.AssertAccess(ctx, tc.TenantID); err != nil {
		return err
	}

	db, err := r.conns.Source(ctx, tc.TenantID)
	if err != nil {
		return err
	}

	id := r.mapping.ID(e)
	if id == "" {
		id = uuid.New().String()
		r.mapping.SetID(e, id)
	}

	values, err := encryptValues(ctx, r.cipher, r.mapping, tc.TenantID, r.mapping.Values(e))
	if err != nil {
		span.RecordError(err)
		return err
	}

	cols := make([]string, 0, len(r.mapping.Columns)+2)
	cols = append(cols, r.mapping.IDCol(), tenantColumn)
	for _, c := range r.mapping.Columns {
		cols = append(cols, c.Name)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		r.mapping.Table, strings.Join(cols, ", "), placeholders(len(cols)),
	)

	args := append([]any{id, tc.TenantID}, values...)
	err = withWriteTx(ctx, db, func(q Querier) error {
		_, err := q.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("row", "create", "error").Inc()
		return fmt.Errorf("failed to create entity: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("row", "create", "ok").Inc()
	return nil
}

// Update 更新活动租户的实体；命不中时返回 (false, nil)
func (r *RowRepository[T]) Update(ctx context.Context, e *T) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.RowRepository.Update")
	defer span.End()
	defer r.observe("update", time.Now())

	tc, err := tenant.Active(ctx)
	if err != nil {
		return false, err
	}
	if err := tenant.AssertAccess(ctx, tc.TenantID); err != nil {
		return false, err
	}

	db, err := r.conns.Source(ctx, tc.TenantID)
	if err != nil {
		return false, err
	}

	values, err := encryptValues(ctx, r.cipher, r.mapping, tc.TenantID, r.mapping.Values(e))
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	sets := make([]string, len(r.mapping.Columns))
	for i, c := range r.mapping.Columns {
		sets[i] = fmt.Sprintf("%s = $%d", c.Name, i+1)
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d AND %s = $%d",
		r.mapping.Table, strings.Join(sets, ", "),
		r.mapping.IDCol(), len(sets)+1, tenantColumn, len(sets)+2,
	)

	args := append(values, r.mapping.ID(e), tc.TenantID)

	var affected int64
	err = withWriteTx(ctx, db, func(q Querier) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("row", "update", "error").Inc()
		return false, fmt.Errorf("failed to update entity: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("row", "update", "ok").Inc()
	return affected > 0, nil
}

// Delete 删除活动租户的实体；命不中时返回 (false, nil)
func (r *RowRepository[T]) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.RowRepository.Delete")
	defer span.End()
	defer r.observe("delete", time.Now())

	tc, err := tenant.Active(ctx)
	if err != nil {
		return false, err
	}
	if err := tenant.AssertAccess(ctx, tc.TenantID); err != nil {
		return false, err
	}

	db, err := r.conns.Source(ctx, tc.TenantID)
	if err != nil {
		return false, err
	}
	q := getQuerier(ctx, db)

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1 AND %s = $2",
		r.mapping.Table, r.mapping.IDCol(), tenantColumn,
	)
	res, err := q.ExecContext(ctx, query, id, tc.TenantID)
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("row", "delete", "error").Inc()
		return false, fmt.Errorf("failed to delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("row", "delete", "ok").Inc()
	return affected > 0, nil
}

// observe 上报操作耗时
func (r *RowRepository[T]) observe(op string, start time.Time) {
	metrics.RepositoryQueryDuration.WithLabelValues("row", op).Observe(time.Since(start).Seconds())
}

// columnList 拼接业务列清单
func columnList[T any](m repository.Mapping[T]) string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// placeholders 生成 $1..$n 占位符
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

// withWriteTx 在事务中执行写操作
// 上下文已携带事务时复用之，提交/回滚由外层事务管理器负责
func withWriteTx(ctx context.Context, db *sql.DB, fn func(q Querier) error) error {
	if tx := getTxFromContext(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
