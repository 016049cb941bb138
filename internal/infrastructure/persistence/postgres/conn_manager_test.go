package postgres

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantstore/pkg/errors"
)

func TestConnManagerReusesSourcePerTenant(t *testing.T) {
	_, m := newTestConns(t)
	ctx := rowCtx(t, "acme")

	first, err := m.Source(ctx, "acme")
	require.NoError(t, err)
	second, err := m.Source(ctx, "acme")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestConnManagerIsolatesSourcesBetweenTenants(t *testing.T) {
	_, m := newTestConns(t)

	acmeDB, err := m.Source(rowCtx(t, "acme"), "acme")
	require.NoError(t, err)
	globexDB, err := m.Source(rowCtx(t, "globex"), "globex")
	require.NoError(t, err)

	assert.NotSame(t, acmeDB, globexDB)
}

func TestConnManagerRequiresActiveTenant(t *testing.T) {
	_, m := newTestConns(t)

	_, err := m.Source(context.Background(), "acme")
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)
}

func TestConnManagerRejectsCrossTenantSource(t *testing.T) {
	_, m := newTestConns(t)
	ctx := rowCtx(t, "acme")

	_, err := m.Source(ctx, "globex")
	assert.ErrorIs(t, err, errors.ErrCrossTenantAccess)
}

func TestConnManagerAppliesPoolLimits(t *testing.T) {
	_, m := newTestConns(t)

	db, err := m.Source(rowCtx(t, "acme"), "acme")
	require.NoError(t, err)

	assert.Equal(t, m.cfg.TenantMaxOpenConns, db.Stats().MaxOpenConnections)
}

func TestConnManagerConcurrentSourceSingleFlight(t *testing.T) {
	_, m := newTestConns(t)
	ctx := rowCtx(t, "acme")

	const n = 16
	dbs := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := m.Source(ctx, "acme")
			assert.NoError(t, err)
			dbs[i] = db
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, dbs[0], dbs[i])
	}
}

func TestConnManagerCloseAll(t *testing.T) {
	stub, db := newStubDB()
	require.NoError(t, db.Close())

	m := NewConnManager(testPostgresConfig())
	m.openFn = func(string) (*sql.DB, error) { return stub.open() }

	_, err := m.Source(rowCtx(t, "acme"), "acme")
	require.NoError(t, err)

	require.NoError(t, m.CloseAll())

	_, err = m.Source(rowCtx(t, "acme"), "acme")
	assert.Error(t, err)
}

func TestConnManagerSessionBindsToTenantSource(t *testing.T) {
	stub, m := newTestConns(t)
	ctx := rowCtx(t, "acme")

	conn, err := m.Session(ctx, "acme")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, stub.recorded(), "SELECT 1")
}
