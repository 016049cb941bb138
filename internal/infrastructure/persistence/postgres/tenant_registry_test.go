package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantstore/internal/domain/entity"
)

func newRegistry(t *testing.T) (*stubDB, *TenantRegistry) {
	t.Helper()
	stub, db := newStubDB()
	t.Cleanup(func() { _ = db.Close() })
	return stub, NewTenantRegistry(&Client{db: db, config: testPostgresConfig()})
}

func TestTenantRegistryCreate(t *testing.T) {
	stub, reg := newRegistry(t)
	now := time.Now().Truncate(time.Second)
	stub.script("INSERT INTO tenants", []string{"created_at", "updated_at"},
		[]driver.Value{now, now})

	tc := entity.NewTenantContext("acme", entity.IsolationSchema)
	tc.SchemaName = "tenant_acme"
	require.NoError(t, reg.Create(context.Background(), tc))

	assert.Equal(t, now, tc.CreatedAt)
	args := stub.argsOf("INSERT INTO tenants")
	require.Len(t, args, 7)
	assert.Equal(t, "acme", args[0])
	assert.Equal(t, "schema", args[1])
	assert.Equal(t, "tenant_acme", args[2])
}

func TestTenantRegistryCreateRejectsInvalidContext(t *testing.T) {
	_, reg := newRegistry(t)

	// schema 隔离缺少 schema 名
	tc := entity.NewTenantContext("acme", entity.IsolationSchema)
	assert.Error(t, reg.Create(context.Background(), tc))
}

func TestTenantRegistryGetByIDNotFound(t *testing.T) {
	_, reg := newRegistry(t)

	tc, err := reg.GetByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, tc)
}

func TestTenantRegistryGetByID(t *testing.T) {
	stub, reg := newRegistry(t)
	now := time.Now().Truncate(time.Second)
	stub.script("FROM tenants", tenantColumns(),
		tenantRow("acme", "row", nil, nil, "active", `{"plan":"pro"}`, now))

	tc, err := reg.GetByID(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, tc)

	assert.Equal(t, "acme", tc.TenantID)
	assert.Equal(t, entity.IsolationRow, tc.IsolationStrategy)
	assert.Equal(t, entity.TenantStatusActive, tc.Status)
	assert.Equal(t, "pro", tc.Metadata["plan"])
	assert.Empty(t, tc.SchemaName)
}

func TestTenantRegistryList(t *testing.T) {
	stub, reg := newRegistry(t)
	now := time.Now().Truncate(time.Second)
	stub.script("FROM tenants", tenantColumns(),
		tenantRow("acme", "schema", "tenant_acme", nil, "active", "", now),
		tenantRow("globex", "row", nil, "host=db2 dbname=globex", "suspended", "", now))

	tenants, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	assert.Equal(t, "tenant_acme", tenants[0].SchemaName)
	assert.Equal(t, "host=db2 dbname=globex", tenants[1].ConnectionTarget)
	assert.Equal(t, entity.TenantStatusSuspended, tenants[1].Status)
}

func TestTenantRegistryUpdateStatus(t *testing.T) {
	stub, reg := newRegistry(t)

	require.NoError(t, reg.UpdateStatus(context.Background(), "acme", entity.TenantStatusSuspended))

	args := stub.argsOf("UPDATE tenants SET status")
	require.Len(t, args, 2)
	assert.Equal(t, "suspended", args[0])
	assert.Equal(t, "acme", args[1])
}

func TestTenantRegistryDelete(t *testing.T) {
	stub, reg := newRegistry(t)

	require.NoError(t, reg.Delete(context.Background(), "acme"))
	assert.Equal(t, []driver.Value{"acme"}, stub.argsOf("DELETE FROM tenants"))
}

func tenantColumns() []string {
	return []string{
		"id", "isolation_strategy", "schema_name", "connection_target",
		"status", "metadata", "backup_config", "created_at", "updated_at",
	}
}

func tenantRow(id, strategy string, schemaName, connTarget any, status, metadata string, ts time.Time) []driver.Value {
	var meta driver.Value
	if metadata != "" {
		meta = []byte(metadata)
	}
	return []driver.Value{id, strategy, schemaName, connTarget, status, meta, nil, ts, ts}
}
