package postgres

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantstore/pkg/errors"
)

func newRowRepo(t *testing.T) (*stubDB, *RowRepository[document]) {
	t.Helper()
	stub, m := newTestConns(t)
	return stub, NewRowRepository(m, documentMapping(), markerCipher{})
}

func TestRowRepositoryGetByIDFiltersByTenant(t *testing.T) {
	stub, repo := newRowRepo(t)
	ctx := rowCtx(t, "acme")

	stub.script("FROM documents", []string{"id", "title", "secret"},
		[]driver.Value{"doc-1", "quarterly report", "enc[acme]:classified"})

	doc, err := repo.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "quarterly report", doc.Title)
	assert.Equal(t, "classified", doc.Secret)

	args := stub.argsOf("FROM documents")
	require.Len(t, args, 2)
	assert.Equal(t, "doc-1", args[0])
	assert.Equal(t, "acme", args[1])

	recorded := stub.recorded()
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0], "tenant_id = $2")
}

func TestRowRepositoryGetByIDNotFound(t *testing.T) {
	_, repo := newRowRepo(t)

	doc, err := repo.GetByID(rowCtx(t, "acme"), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRowRepositoryGetAllScopedToActiveTenant(t *testing.T) {
	stub, repo := newRowRepo(t)
	ctx := rowCtx(t, "acme")

	stub.script("FROM documents", []string{"id", "title", "secret"},
		[]driver.Value{"doc-1", "first", "enc[acme]:a"},
		[]driver.Value{"doc-2", "second", "enc[acme]:b"})

	docs, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Secret)
	assert.Equal(t, "b", docs[1].Secret)

	args := stub.argsOf("FROM documents")
	require.Len(t, args, 1)
	assert.Equal(t, "acme", args[0])
}

func TestRowRepositoryCreateStampsTenantAndEncrypts(t *testing.T) {
	stub, repo := newRowRepo(t)
	ctx := rowCtx(t, "acme")

	doc := &document{Title: "roadmap", Secret: "classified"}
	require.NoError(t, repo.Create(ctx, doc))
	assert.NotEmpty(t, doc.ID, "repository assigns an id when absent")

	args := stub.argsOf("INSERT INTO documents")
	require.Len(t, args, 4)
	assert.Equal(t, doc.ID, args[0])
	assert.Equal(t, "acme", args[1])
	assert.Equal(t, "roadmap", args[2])
	assert.Equal(t, "enc[acme]:classified", args[3])

	recorded := stub.recorded()
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0], "(id, tenant_id, title, secret)")
}

func TestRowRepositoryCreateKeepsCallerID(t *testing.T) {
	_, repo := newRowRepo(t)

	doc := &document{ID: "doc-42", Title: "pinned"}
	require.NoError(t, repo.Create(rowCtx(t, "acme"), doc))
	assert.Equal(t, "doc-42", doc.ID)
}

func TestRowRepositoryUpdateFiltersByTenant(t *testing.T) {
	stub, repo := newRowRepo(t)
	ctx := rowCtx(t, "acme")

	updated, err := repo.Update(ctx, &document{ID: "doc-1", Title: "renamed", Secret: "s"})
	require.NoError(t, err)
	assert.True(t, updated)

	args := stub.argsOf("UPDATE documents")
	require.Len(t, args, 4)
	assert.Equal(t, "enc[acme]:s", args[1])
	assert.Equal(t, "doc-1", args[2])
	assert.Equal(t, "acme", args[3])
}

func TestRowRepositoryUpdateMissReportsFalse(t *testing.T) {
	stub, repo := newRowRepo(t)
	stub.affectedFor["UPDATE documents"] = 0

	// 属于其他租户的行在判别条件下命不中，表现与不存在一致
	updated, err := repo.Update(rowCtx(t, "acme"), &document{ID: "doc-of-globex"})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRowRepositoryDeleteMissReportsFalse(t *testing.T) {
	stub, repo := newRowRepo(t)
	stub.affectedFor["DELETE FROM documents"] = 0

	deleted, err := repo.Delete(rowCtx(t, "acme"), "doc-of-globex")
	require.NoError(t, err)
	assert.False(t, deleted)

	args := stub.argsOf("DELETE FROM documents")
	require.Len(t, args, 2)
	assert.Equal(t, "acme", args[1])
}

func TestRowRepositoryRequiresActiveTenant(t *testing.T) {
	_, repo := newRowRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "doc-1")
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)

	err = repo.Create(ctx, &document{Title: "x"})
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)

	_, err = repo.Delete(ctx, "doc-1")
	assert.ErrorIs(t, err, errors.ErrTenantNotConfigured)
}
