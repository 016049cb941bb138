package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxManagerSharesTransactionThroughContext(t *testing.T) {
	stub, db := newStubDB()
	t.Cleanup(func() { _ = db.Close() })
	tm := NewTxManager(db)

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		tx := getTxFromContext(ctx)
		require.NotNil(t, tx)

		// 嵌套调用复用外层事务而不是再开一个
		return tm.WithTransaction(ctx, func(inner context.Context) error {
			assert.Same(t, tx, getTxFromContext(inner))
			_, err := getQuerier(inner, db).ExecContext(inner, "UPDATE documents SET title = $1", "x")
			return err
		})
	})
	require.NoError(t, err)
	assert.Contains(t, stub.recorded(), "UPDATE documents SET title = $1")
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	_, db := newStubDB()
	t.Cleanup(func() { _ = db.Close() })
	tm := NewTxManager(db)

	boom := fmt.Errorf("write rejected")
	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
