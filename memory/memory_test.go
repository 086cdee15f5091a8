package memory

import (
	"context"
	"testing"

	"github.com/gamma-omg/contextqa/catalog"
	"github.com/gamma-omg/contextqa/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	return map[string]Store{
		"in_process": NewInProcessStore(),
		"sqlite":     NewSQLiteStore(cat.DB()),
	}
}

func Test_HistoryOrderedPerSession(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, "s1",
				llm.Message{Role: llm.RoleUser, Content: "first"},
				llm.Message{Role: llm.RoleAssistant, Content: "second"}))
			require.NoError(t, store.Append(ctx, "s1",
				llm.Message{Role: llm.RoleUser, Content: "third"}))
			require.NoError(t, store.Append(ctx, "s2",
				llm.Message{Role: llm.RoleUser, Content: "other session"}))

			history, err := store.History(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, history, 3)
			assert.Equal(t, "first", history[0].Content)
			assert.Equal(t, "second", history[1].Content)
			assert.Equal(t, "third", history[2].Content)

			other, err := store.History(ctx, "s2")
			require.NoError(t, err)
			require.Len(t, other, 1)
			assert.Equal(t, "other session", other[0].Content)
		})
	}
}

func Test_History_UnknownSessionEmpty(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			history, err := store.History(context.Background(), "never-seen")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}
