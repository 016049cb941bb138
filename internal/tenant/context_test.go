package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantstore/internal/domain/entity"
	"tenantstore/pkg/errors"
)

func rowTenant(id string) *entity.TenantContext {
	return entity.NewTenantContext(id, entity.IsolationRow)
}

func TestActivateAndActive(t *testing.T) {
	ctx, err := Activate(context.Background(), rowTenant("acme"))
	require.NoError(t, err)

	tc, err := Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", tc.TenantID)
}

func TestActivateValidatesContext(t *testing.T) {
	_, err := Activate(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidParam)

	// schema 隔离缺少 schema 名
	bad := entity.NewTenantContext("acme", entity.IsolationSchema)
	_, err = Activate(context.Background(), bad)
	assert.ErrorIs(t, err, errors.ErrInvalidParam)
}

func TestActiveWithoutContext(t *testing.T) {
	_, err := Active(context.Background())
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)
}

func TestAssertAccess(t *testing.T) {
	ctx, err := Activate(context.Background(), rowTenant("acme"))
	require.NoError(t, err)

	assert.NoError(t, AssertAccess(ctx, "acme"))
	assert.ErrorIs(t, AssertAccess(ctx, "globex"), errors.ErrCrossTenantAccess)
	assert.ErrorIs(t, AssertAccess(context.Background(), "acme"), errors.ErrTenantNotConfigured)
}

func TestDeactivateClearsActiveTenant(t *testing.T) {
	ctx, err := Activate(context.Background(), rowTenant("acme"))
	require.NoError(t, err)

	ctx = Deactivate(ctx)
	_, err = Active(ctx)
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)
}

// 并发请求各自持有自己的活动租户，互不覆盖
func TestConcurrentActivationIsIsolated(t *testing.T) {
	tenants := []string{"acme", "globex", "initech", "umbrella"}

	var wg sync.WaitGroup
	for _, id := range tenants {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ctx, err := Activate(context.Background(), rowTenant(id))
				if err != nil {
					t.Error(err)
					return
				}
				tc, err := Active(ctx)
				if err != nil || tc.TenantID != id {
					t.Errorf("active tenant = %v, want %s", tc, id)
					return
				}
				if err := AssertAccess(ctx, id); err != nil {
					t.Error(err)
					return
				}
			}
		}(id)
	}
	wg.Wait()
}
