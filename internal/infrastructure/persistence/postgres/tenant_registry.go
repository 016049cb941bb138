// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tenantstore/internal/domain/entity"
)

// TenantRegistry 租户激活参数的控制面存储实现
//
// 注册表属于控制面，存放在共享库的 tenants 表里，供激活流程在
// 建立租户上下文之前查询，因此不经过跨租户守卫。
// 租户的 schema / 库表创建由外部迁移步骤完成，这里只管登记。
type TenantRegistry struct {
	client *Client
}

// NewTenantRegistry 创建租户注册表
func NewTenantRegistry(client *Client) *TenantRegistry {
	return &TenantRegistry{client: client}
}

// Create 登记租户
func (r *TenantRegistry) Create(ctx context.Context, tc *entity.TenantContext) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRegistry.Create")
	defer span.End()

	if err := tc.Validate(); err != nil {
		return fmt.Errorf("invalid tenant context: %w", err)
	}

	q := getQuerier(ctx, r.client.db)

	metadataJSON, _ := json.Marshal(tc.Metadata)
	var backupJSON []byte
	if tc.BackupConfig != nil {
		backupJSON, _ = json.Marshal(tc.BackupConfig)
	}

	query := `
		INSERT INTO tenants (id, isolation_strategy, schema_name, connection_target,
			status, metadata, backup_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		tc.TenantID, string(tc.IsolationStrategy), nullString(tc.SchemaName),
		nullString(tc.ConnectionTarget), string(tc.Status), metadataJSON, nullBytes(backupJSON),
	).Scan(&tc.CreatedAt, &tc.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetByID 根据 ID 获取租户，未找到返回 (nil, nil)
func (r *TenantRegistry) GetByID(ctx context.Context, id string) (*entity.TenantContext, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRegistry.GetByID")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, isolation_strategy, schema_name, connection_target,
			status, metadata, backup_config, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	tc, err := scanTenant(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tc, nil
}

// Update 更新租户激活参数
// 隔离策略在创建时固定，不允许变更
func (r *TenantRegistry) Update(ctx context.Context, tc *entity.TenantContext) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRegistry.Update")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	metadataJSON, _ := json.Marshal(tc.Metadata)
	var backupJSON []byte
	if tc.BackupConfig != nil {
		backupJSON, _ = json.Marshal(tc.BackupConfig)
	}

	query := `
		UPDATE tenants
		SET schema_name = $1, connection_target = $2, status = $3,
			metadata = $4, backup_config = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := q.QueryRowContext(ctx, query,
		nullString(tc.SchemaName), nullString(tc.ConnectionTarget), string(tc.Status),
		metadataJSON, nullBytes(backupJSON), tc.TenantID,
	).Scan(&tc.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	return nil
}

// Delete 注销租户
func (r *TenantRegistry) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRegistry.Delete")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `DELETE FROM tenants WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	return nil
}

// List 获取全部租户
func (r *TenantRegistry) List(ctx context.Context) ([]*entity.TenantContext, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRegistry.List")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, isolation_strategy, schema_name, connection_target,
			status, metadata, backup_config, created_at, updated_at
		FROM tenants
		ORDER BY created_at
	`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*entity.TenantContext
	for rows.Next() {
		tc, err := scanTenant(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return out, nil
}

// UpdateStatus 更新租户状态
func (r *TenantRegistry) UpdateStatus(ctx context.Context, id string, status entity.TenantStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRegistry.UpdateStatus")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `UPDATE tenants SET status = $1, updated_at = NOW() WHERE id = $2`
	if _, err := q.ExecContext(ctx, query, string(status), id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update tenant status: %w", err)
	}

	return nil
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTenant 扫描一行租户记录
func scanTenant(row rowScanner) (*entity.TenantContext, error) {
	var tc entity.TenantContext
	var strategy, status string
	var schemaName, connTarget sql.NullString
	var metadataJSON, backupJSON []byte

	err := row.Scan(
		&tc.TenantID, &strategy, &schemaName, &connTarget,
		&status, &metadataJSON, &backupJSON,
		&tc.CreatedAt, &tc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tc.IsolationStrategy = entity.IsolationStrategy(strategy)
	tc.Status = entity.TenantStatus(status)
	if schemaName.Valid {
		tc.SchemaName = schemaName.String
	}
	if connTarget.Valid {
		tc.ConnectionTarget = connTarget.String
	}
	if len(metadataJSON) > 0 {
		json.Unmarshal(metadataJSON, &tc.Metadata)
	}
	if len(backupJSON) > 0 {
		tc.BackupConfig = &entity.TenantBackupConfig{}
		json.Unmarshal(backupJSON, tc.BackupConfig)
	}

	return &tc, nil
}

// nullString 空串转 NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullBytes 空切片转 NULL
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
