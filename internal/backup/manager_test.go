package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantstore/internal/config"
	"tenantstore/internal/domain/entity"
	"tenantstore/internal/tenant"
	"tenantstore/pkg/errors"
)

// fakeRunner 记录调用并在 dump 时落一个假产物
type fakeRunner struct {
	calls [][]string
	fail  error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail != nil {
		return f.fail
	}
	if name == "pg_dump" {
		for i, a := range args {
			if a == "--file" && i+1 < len(args) {
				return os.WriteFile(args[i+1], []byte("dump"), 0o640)
			}
		}
	}
	return nil
}

func (f *fakeRunner) argsOf(name string) []string {
	for _, c := range f.calls {
		if c[0] == name {
			return c[1:]
		}
	}
	return nil
}

func newTestManager(t *testing.T) (*fakeRunner, *Manager) {
	t.Helper()
	runner := &fakeRunner{}
	m := NewManager(&config.BackupConfig{
		Root:           t.TempDir(),
		DumpCommand:    "pg_dump",
		RestoreCommand: "pg_restore",
		MaxBackups:     3,
		Timeout:        time.Minute,
	}, &config.PostgresConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p",
		Database: "shared", SSLMode: "disable",
	})
	m.runner = runner
	return runner, m
}

func activeCtx(t *testing.T, tc *entity.TenantContext) context.Context {
	t.Helper()
	ctx, err := tenant.Activate(context.Background(), tc)
	require.NoError(t, err)
	return ctx
}

func schemaTenant(id, schema string) *entity.TenantContext {
	tc := entity.NewTenantContext(id, entity.IsolationSchema)
	tc.SchemaName = schema
	return tc
}

func TestManagerCreateSchemaTenant(t *testing.T) {
	runner, m := newTestManager(t)
	ctx := activeCtx(t, schemaTenant("acme", "tenant_acme"))

	record, err := m.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, "acme", record.TenantID)
	assert.Contains(t, record.ID, "backup_")
	assert.FileExists(t, record.FilePath)
	assert.Equal(t, int64(4), record.Size)
	assert.Equal(t, filepath.Join(m.cfg.Root, "acme"), filepath.Dir(record.FilePath))

	args := runner.argsOf("pg_dump")
	assert.Contains(t, args, "--schema")
	assert.Contains(t, args, "tenant_acme")
}

func TestManagerCreateRowTenantSkipsSchemaFlag(t *testing.T) {
	runner, m := newTestManager(t)
	ctx := activeCtx(t, entity.NewTenantContext("globex", entity.IsolationRow))

	_, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotContains(t, runner.argsOf("pg_dump"), "--schema")
}

func TestManagerCreateSurfacesToolFailure(t *testing.T) {
	runner, m := newTestManager(t)
	runner.fail = errors.ErrBackupTool.WithDetail("pg_dump: connection refused")
	ctx := activeCtx(t, entity.NewTenantContext("acme", entity.IsolationRow))

	_, err := m.Create(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackupTool)

	records, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "failed run leaves no artifact behind")
}

func TestManagerRequiresActiveTenant(t *testing.T) {
	_, m := newTestManager(t)

	_, err := m.Create(context.Background())
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)

	err = m.Restore(context.Background(), "backup_x.dump")
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)
}

func TestManagerRestore(t *testing.T) {
	runner, m := newTestManager(t)
	ctx := activeCtx(t, schemaTenant("acme", "tenant_acme"))

	record, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Restore(ctx, record.ID))

	args := runner.argsOf("pg_restore")
	require.NotNil(t, args)
	assert.Contains(t, args, "--clean")
	assert.Contains(t, args, record.FilePath)
}

func TestManagerRestoreMissingArtifact(t *testing.T) {
	_, m := newTestManager(t)
	ctx := activeCtx(t, entity.NewTenantContext("acme", entity.IsolationRow))

	err := m.Restore(ctx, "backup_19990101_000000.dump")
	assert.ErrorIs(t, err, errors.ErrBackupNotFound)
}

func TestManagerRestoreRejectsPathTraversal(t *testing.T) {
	_, m := newTestManager(t)
	ctx := activeCtx(t, entity.NewTenantContext("acme", entity.IsolationRow))

	err := m.Restore(ctx, "../globex/backup_20260101_000000.dump")
	assert.ErrorIs(t, err, errors.ErrBackupNotFound)
}

func TestManagerListNewestFirst(t *testing.T) {
	_, m := newTestManager(t)
	ctx := activeCtx(t, entity.NewTenantContext("acme", entity.IsolationRow))

	dir := filepath.Join(m.cfg.Root, "acme")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for _, name := range []string{"backup_20260101_000000.dump", "backup_20260301_000000.dump", "backup_20260201_000000.dump"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o640))
	}

	records, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "backup_20260301_000000.dump", records[0].ID)
	assert.Equal(t, "backup_20260101_000000.dump", records[2].ID)
}

func TestManagerListIsolatedPerTenant(t *testing.T) {
	_, m := newTestManager(t)

	acme := activeCtx(t, entity.NewTenantContext("acme", entity.IsolationRow))
	_, err := m.Create(acme)
	require.NoError(t, err)

	records, err := m.List(activeCtx(t, entity.NewTenantContext("globex", entity.IsolationRow)))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManagerCleanupHonorsRetention(t *testing.T) {
	_, m := newTestManager(t)
	ctx := activeCtx(t, entity.NewTenantContext("acme", entity.IsolationRow))

	dir := filepath.Join(m.cfg.Root, "acme")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for _, name := range []string{
		"backup_20260101_000000.dump", "backup_20260102_000000.dump",
		"backup_20260103_000000.dump", "backup_20260104_000000.dump",
		"backup_20260105_000000.dump",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o640))
	}

	removed, err := m.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	records, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// 删除的是最旧的两份
	assert.Equal(t, "backup_20260103_000000.dump", records[2].ID)
}

func TestManagerCleanupUsesTenantOverride(t *testing.T) {
	_, m := newTestManager(t)
	tc := entity.NewTenantContext("acme", entity.IsolationRow)
	tc.BackupConfig = &entity.TenantBackupConfig{MaxBackups: 1}
	ctx := activeCtx(t, tc)

	dir := filepath.Join(m.cfg.Root, "acme")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for _, name := range []string{"backup_20260101_000000.dump", "backup_20260102_000000.dump"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o640))
	}

	removed, err := m.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
