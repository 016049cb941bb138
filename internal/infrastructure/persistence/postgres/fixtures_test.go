package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tenantstore/internal/config"
	"tenantstore/internal/domain/entity"
	"tenantstore/internal/domain/repository"
	"tenantstore/internal/tenant"
)

// document 测试用领域实体，secret 为敏感列
type document struct {
	ID     string
	Title  string
	Secret string
}

func documentMapping() repository.Mapping[document] {
	return repository.Mapping[document]{
		Table: "documents",
		Columns: []repository.Column{
			{Name: "title"},
			{Name: "secret", Sensitive: true},
		},
		ID:    func(e *document) string { return e.ID },
		SetID: func(e *document, id string) { e.ID = id },
		Values: func(e *document) []any {
			return []any{e.Title, e.Secret}
		},
		Dest: func(e *document) []any {
			return []any{&e.Title, &e.Secret}
		},
	}
}

// markerCipher 用可辨识前缀代替真实加密，便于断言密文确实落库
type markerCipher struct{}

func (markerCipher) Encrypt(_ context.Context, tenantID, plaintext string) (string, error) {
	return "enc[" + tenantID + "]:" + plaintext, nil
}

func (markerCipher) Decrypt(_ context.Context, tenantID, ciphertext string) (string, error) {
	prefix := "enc[" + tenantID + "]:"
	if !strings.HasPrefix(ciphertext, prefix) {
		return "", fmt.Errorf("ciphertext does not belong to tenant")
	}
	return strings.TrimPrefix(ciphertext, prefix), nil
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:               "localhost",
		Port:               5432,
		User:               "tenantstore",
		Password:           "tenantstore",
		Database:           "tenantstore",
		SSLMode:            "disable",
		ConnMaxLifetime:    time.Hour,
		ConnMaxIdleTime:    10 * time.Minute,
		TenantMaxOpenConns: 5,
		TenantMaxIdleConns: 2,
	}
}

// newTestConns 返回以假驱动为底座的连接管理器
func newTestConns(t *testing.T) (*stubDB, *ConnManager) {
	t.Helper()
	stub, db := newStubDB()
	require.NoError(t, db.Close())

	m := NewConnManager(testPostgresConfig())
	m.openFn = func(string) (*sql.DB, error) {
		return stub.open()
	}
	t.Cleanup(func() { _ = m.CloseAll() })
	return stub, m
}

// rowCtx 激活一个行隔离租户
func rowCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenant.Activate(context.Background(), entity.NewTenantContext(tenantID, entity.IsolationRow))
	require.NoError(t, err)
	return ctx
}

// schemaCtx 激活一个 schema 隔离租户
func schemaCtx(t *testing.T, tenantID, schemaName string) context.Context {
	t.Helper()
	tc := entity.NewTenantContext(tenantID, entity.IsolationSchema)
	tc.SchemaName = schemaName
	ctx, err := tenant.Activate(context.Background(), tc)
	require.NoError(t, err)
	return ctx
}
