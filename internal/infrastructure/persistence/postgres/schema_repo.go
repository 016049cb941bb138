// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tenantstore/internal/domain/entity"
	"tenantstore/internal/domain/repository"
	"tenantstore/internal/tenant"
	"tenantstore/pkg/metrics"
)

// SchemaRepository schema 隔离仓储实现
//
// 每个操作独占一条会话连接：先把会话命名空间切到租户 schema，
// 再执行不带租户条件的业务 SQL，隔离由数据库命名空间边界保证。
// 会话归还连接池前会重置 search_path，避免残留命名空间影响
// 共享同一连接源的其他查询。
type SchemaRepository[T any] struct {
	conns   *ConnManager
	mapping repository.Mapping[T]
	cipher  repository.FieldCipher
}

// NewSchemaRepository 创建 schema 隔离仓储
func NewSchemaRepository[T any](conns *ConnManager, mapping repository.Mapping[T], cipher repository.FieldCipher) *SchemaRepository[T] {
	return &SchemaRepository[T]{conns: conns, mapping: mapping, cipher: cipher}
}

// session 获取切换到租户 schema 的会话，release 负责重置并归还
func (r *SchemaRepository[T]) session(ctx context.Context) (*sql.Conn, *entity.TenantContext, func(), error) {
	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := tenant.AssertAccess(ctx, tc.TenantID); err != nil {
		return nil, nil, nil, err
	}

	conn, err := r.conns.Session(ctx, tc.TenantID)
	if err != nil {
		return nil, nil, nil, err
	}

	if _, err := conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(tc.SchemaName)); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to switch schema: %w", err)
	}

	release := func() {
		// 即便调用方的 ctx 已取消也要完成重置
		resetCtx := context.WithoutCancel(ctx)
		_, _ = conn.ExecContext(resetCtx, `SET search_path TO "$user", public`)
		conn.Close()
	}
	return conn, tc, release, nil
}

// GetByID 按 ID 获取实体，未找到返回 (nil, nil)
func (r *SchemaRepository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	ctx, span := tracer.Start(ctx, "postgres.SchemaRepository.GetByID")
	defer span.End()
	defer r.observe("get_by_id", time.Now())

	conn, tc, release, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s = $1",
		r.mapping.IDCol(), columnList(r.mapping), r.mapping.Table, r.mapping.IDCol(),
	)

	e := new(T)
	dests, swaps, err := prepareDests(r.mapping, r.mapping.Dest(e))
	if err != nil {
		return nil, err
	}

	var entityID string
	scanDests := append([]any{&entityID}, dests...)
	if err := conn.QueryRowContext(ctx, query, id).Scan(scanDests...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("schema", "get_by_id", "error").Inc()
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	r.mapping.SetID(e, entityID)

	if err := applySwaps(ctx, r.cipher, tc.TenantID, swaps); err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.RepositoryQueryTotal.WithLabelValues("schema", "get_by_id", "ok").Inc()
	return e, nil
}

// GetAll 获取租户 schema 内的全部实体
func (r *SchemaRepository[T]) GetAll(ctx context.Context) ([]*T, error) {
	ctx, span := tracer.Start(ctx, "postgres.SchemaRepository.GetAll")
	defer span.End()
	defer r.observe("get_all", time.Now())

	conn, tc, release, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s ORDER BY %s",
		r.mapping.IDCol(), columnList(r.mapping), r.mapping.Table, r.mapping.IDCol(),
	)

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("schema", "get_all", "error").Inc()
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
		metrics.RepositoryQueryTotal.WithLabelValues("schema", "get_all", "error").Inc()
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("schema", "get_all", "ok").Inc()
	return out, nil
}

// Create 在租户 schema 内创建实体
func (r *SchemaRepository[T]) Create(ctx context.Context, e *T) error {
	ctx, span := tracer.Start(ctx, "postgres.SchemaRepository.Create")
	defer span.End()
	defer r.observe("create", time.Now())

	conn, tc, release, err := r.session(ctx)
	if err != nil {
		return err
	}
	defer release()

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

	cols := make([]string, 0, len(r.mapping.Columns)+1)
	cols = append(cols, r.mapping.IDCol())
	for _, c := range r.mapping.Columns {
		cols = append(cols, c.Name)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		r.mapping.Table, strings.Join(cols, ", "), placeholders(len(cols)),
	)

	err = r.withSessionTx(ctx, conn, func(q Querier) error {
		_, err := q.ExecContext(ctx, query, append([]any{id}, values...)...)
		return err
	})
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("schema", "create", "error").Inc()
		return fmt.Errorf("failed to create entity: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("schema", "create", "ok").Inc()
	return nil
}

// Update 更新实体；ID 不在租户 schema 内时返回 (false, nil)
func (r *SchemaRepository[T]) Update(ctx context.Context, e *T) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.SchemaRepository.Update")
	defer span.End()
	defer r.observe("update", time.Now())

	conn, tc, release, err := r.session(ctx)
	if err != nil {
		return false, err
	}
	defer release()

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
		"UPDATE %s SET %s WHERE %s = $%d",
		r.mapping.Table, strings.Join(sets, ", "), r.mapping.IDCol(), len(sets)+1,
	)

	var affected int64
	err = r.withSessionTx(ctx, conn, func(q Querier) error {
		res, err := q.ExecContext(ctx, query, append(values, r.mapping.ID(e))...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("schema", "update", "error").Inc()
		return false, fmt.Errorf("failed to update entity: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("schema", "update", "ok").Inc()
	return affected > 0, nil
}

// Delete 删除实体；ID 不在租户 schema 内时返回 (false, nil)
func (r *SchemaRepository[T]) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.SchemaRepository.Delete")
	defer span.End()
	defer r.observe("delete", time.Now())

	conn, _, release, err := r.session(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.mapping.Table, r.mapping.IDCol())
	res, err := conn.ExecContext(ctx, query, id)
	if err != nil {
		span.RecordError(err)
		metrics.RepositoryQueryTotal.WithLabelValues("schema", "delete", "error").Inc()
		return false, fmt.Errorf("failed to delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	metrics.RepositoryQueryTotal.WithLabelValues("schema", "delete", "ok").Inc()
	return affected > 0, nil
}

// withSessionTx 在会话连接上执行事务写
// schema 会话独占连接并自管事务，不复用上下文中的共享事务
func (r *SchemaRepository[T]) withSessionTx(ctx context.Context, conn *sql.Conn, fn func(q Querier) error) error {
	tx, err := conn.BeginTx(ctx, nil)
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

// observe 上报操作耗时
func (r *SchemaRepository[T]) observe(op string, start time.Time) {
	metrics.RepositoryQueryDuration.WithLabelValues("schema", op).Observe(time.Since(start).Seconds())
}
