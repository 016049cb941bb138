// Package backup 实现按租户的时间点导出与恢复
package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tenantstore/internal/config"
	"tenantstore/internal/domain/entity"
	"tenantstore/internal/tenant"
	"tenantstore/pkg/errors"
	"tenantstore/pkg/logger"
	"tenantstore/pkg/metrics"
)

var tracer = otel.Tracer("backup")

// artifactExt 备份产物扩展名
const artifactExt = ".dump"

// CommandRunner 执行外部备份工具
type CommandRunner interface {
	// Run 执行命令，失败时错误需携带工具的 stderr 输出
	Run(ctx context.Context, name string, args ...string) error
}

// execRunner 基于 os/exec 的默认实现
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return errors.ErrBackupTool.WithDetail(detail).WithError(err)
	}
	return nil
}

// Manager 租户备份管理器
//
// 每个租户的产物存放在独立子目录，命名携带创建时间戳。
// 备份与恢复都委托给外部工具（默认 pg_dump / pg_restore），
// 工具失败原样上抛并携带 stderr，绝不静默吞掉。
type Manager struct {
	cfg *config.BackupConfig
	db  *config.PostgresConfig

	runner CommandRunner
}

// NewManager 创建备份管理器
func NewManager(cfg *config.BackupConfig, db *config.PostgresConfig) *Manager {
	return &Manager{cfg: cfg, db: db, runner: execRunner{}}
}

// Create 为活动租户创建一份备份，完成后按保留策略清理旧产物
func (m *Manager) Create(ctx context.Context) (*entity.BackupRecord, error) {
	ctx, span := tracer.Start(ctx, "backup.Manager.Create")
	defer span.End()
	start := time.Now()

	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("backup.strategy", string(tc.IsolationStrategy)))

	dir, err := m.tenantDir(tc)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	id := fmt.Sprintf("backup_%s%s", time.Now().UTC().Format("20060102_150405"), artifactExt)
	path := filepath.Join(dir, id)

	args := []string{"--format=custom", "--file", path}
	if tc.IsolationStrategy == entity.IsolationSchema {
		args = append(args, "--schema", tc.SchemaName)
	}
	args = append(args, "--dbname", m.dsn(tc))

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.runner.Run(runCtx, m.cfg.DumpCommand, args...); err != nil {
		span.RecordError(err)
		metrics.BackupTotal.WithLabelValues("create", "error").Inc()
		// 半成品不保留
		_ = os.Remove(path)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		metrics.BackupTotal.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("failed to stat backup artifact: %w", err)
	}

	record := &entity.BackupRecord{
		ID:        id,
		TenantID:  tc.TenantID,
		FilePath:  path,
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}

	metrics.BackupTotal.WithLabelValues("create", "ok").Inc()
	metrics.BackupDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	metrics.BackupSizeBytes.Observe(float64(record.Size))
	logger.Info(ctx, "backup created", "backup_id", id, "size_bytes", record.Size)

	if _, err := m.Cleanup(ctx); err != nil {
		// 清理失败不影响已完成的备份
		logger.Warn(ctx, "backup retention cleanup failed", "error", err)
	}

	return record, nil
}

// Restore 从指定产物恢复活动租户的数据
// 产物不存在时返回 ErrBackupNotFound，恢复失败原样上抛
func (m *Manager) Restore(ctx context.Context, backupID string) error {
	ctx, span := tracer.Start(ctx, "backup.Manager.Restore",
		trace.WithAttributes(attribute.String("backup.id", backupID)))
	defer span.End()
	start := time.Now()

	tc, err := tenant.Active(ctx)
	if err != nil {
		return err
	}

	dir, err := m.tenantDir(tc)
	if err != nil {
		return err
	}
	if backupID != filepath.Base(backupID) {
		return errors.ErrBackupNotFound.WithDetail(backupID)
	}
	path := filepath.Join(dir, backupID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			metrics.BackupTotal.WithLabelValues("restore", "error").Inc()
			return errors.ErrBackupNotFound.WithDetail(backupID)
		}
		return fmt.Errorf("failed to stat backup artifact: %w", err)
	}

	args := []string{"--format=custom", "--clean", "--if-exists"}
	if tc.IsolationStrategy == entity.IsolationSchema {
		args = append(args, "--schema", tc.SchemaName)
	}
	args = append(args, "--dbname", m.dsn(tc), path)

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.runner.Run(runCtx, m.cfg.RestoreCommand, args...); err != nil {
		span.RecordError(err)
		metrics.BackupTotal.WithLabelValues("restore", "error").Inc()
		return err
	}

	metrics.BackupTotal.WithLabelValues("restore", "ok").Inc()
	metrics.BackupDuration.WithLabelValues("restore").Observe(time.Since(start).Seconds())
	logger.Info(ctx, "backup restored", "backup_id", backupID)
	return nil
}

// List 列出活动租户的全部备份，最新的在前
func (m *Manager) List(ctx context.Context) ([]*entity.BackupRecord, error) {
	ctx, span := tracer.Start(ctx, "backup.Manager.List")
	defer span.End()

	tc, err := tenant.Active(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := m.tenantDir(tc)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []*entity.BackupRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), artifactExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, &entity.BackupRecord{
			ID:        e.Name(),
			TenantID:  tc.TenantID,
			FilePath:  filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	// 文件名内嵌时间戳，倒序即最新在前
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Cleanup 按保留策略删除活动租户的旧备份，返回删除数量
// 租户在注册表中配置的份数优先于全局默认值
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "backup.Manager.Cleanup")
	defer span.End()

	tc, err := tenant.Active(ctx)
	if err != nil {
		return 0, err
	}

	max := m.cfg.MaxBackups
	if tc.BackupConfig != nil && tc.BackupConfig.MaxBackups > 0 {
		max = tc.BackupConfig.MaxBackups
	}
	if max <= 0 {
		return 0, nil
	}

	records, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) <= max {
		return 0, nil
	}

	removed := 0
	for _, r := range records[max:] {
		if err := os.Remove(r.FilePath); err != nil {
			metrics.BackupTotal.WithLabelValues("cleanup", "error").Inc()
			return removed, fmt.Errorf("failed to remove expired backup %s: %w", r.ID, err)
		}
		removed++
	}

	metrics.BackupTotal.WithLabelValues("cleanup", "ok").Inc()
	logger.Info(ctx, "expired backups removed", "count", removed)
	return removed, nil
}

// tenantDir 返回租户的备份目录，注册表中的 Location 覆盖全局根目录
func (m *Manager) tenantDir(tc *entity.TenantContext) (string, error) {
	root := m.cfg.Root
	if tc.BackupConfig != nil && tc.BackupConfig.Location != "" {
		root = tc.BackupConfig.Location
	}
	// 租户 ID 作为目录名，不允许包含路径成分
	if tc.TenantID != filepath.Base(tc.TenantID) {
		return "", errors.ErrInvalidParam.WithDetail("tenant id is not a valid directory name")
	}
	return filepath.Join(root, tc.TenantID), nil
}

// dsn 返回备份工具连接目标
func (m *Manager) dsn(tc *entity.TenantContext) string {
	if tc.ConnectionTarget != "" {
		return tc.ConnectionTarget
	}
	return m.db.DSN()
}
