package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func Test_FindByName_Absent(t *testing.T) {
	cat := newTestCatalog(t)

	src, err := cat.FindByName(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, src)
}

func Test_Upsert_CreateThenUpdate(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	created, err := cat.Upsert(ctx, "a.txt", "digest-1", StatusReady)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "digest-1", created.Digest)

	updated, err := cat.Upsert(ctx, "a.txt", "digest-2", StatusReady)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "digest-2", updated.Digest)

	_, total, err := cat.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func Test_ExistsAny(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	ok, err := cat.ExistsAny(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = cat.Upsert(ctx, "a.txt", "digest", StatusReady)
	require.NoError(t, err)

	ok, err = cat.ExistsAny(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func Test_List_InsertionOrderAndPaging(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := cat.Upsert(ctx, name, "digest-"+name, StatusReady)
		require.NoError(t, err)
	}

	sources, total, err := cat.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sources, 2)
	assert.Equal(t, "a.txt", sources[0].Name)
	assert.Equal(t, "b.txt", sources[1].Name)

	sources, total, err = cat.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sources, 1)
	assert.Equal(t, "c.txt", sources[0].Name)
}

func Test_Delete(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, err := cat.Upsert(ctx, "a.txt", "digest", StatusReady)
	require.NoError(t, err)

	require.NoError(t, cat.Delete(ctx, "a.txt"))
	require.NoError(t, cat.Delete(ctx, "a.txt"))

	src, err := cat.FindByName(ctx, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, src)
}
