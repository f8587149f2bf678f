package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"plate-mask/internal/domain/entity"
)

// Тесты с настоящей базой запускаются только при заданном TEST_DATABASE_URL
func openTestPg(t *testing.T) *PgHistoryIndex {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	idx, err := OpenPgHistoryIndex(ctx, dsn)
	require.NoError(t, err)
	_, err = idx.db.ExecContext(ctx, `TRUNCATE artifact_history RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestPgHistoryIndex_AppendListLookup(t *testing.T) {
	idx := openTestPg(t)
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		name := uuid.Must(uuid.NewV7()).String() + ".jpg"
		names = append(names, name)
		require.NoError(t, idx.Append(ctx, entity.Artifact{Filename: name, Path: "/tmp/" + name, CreatedAt: time.Now()}))
	}

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, a := range list {
		require.Equal(t, names[i], a.Filename)
	}

	n, err := idx.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	got, err := idx.Lookup(ctx, names[1])
	require.NoError(t, err)
	require.Equal(t, "/tmp/"+names[1], got.Path)

	_, err = idx.Lookup(ctx, "missing.jpg")
	require.ErrorIs(t, err, entity.ErrNotFound)

	require.Error(t, idx.Append(ctx, entity.Artifact{Filename: names[0], Path: "dup", CreatedAt: time.Now()}))

	require.NoError(t, idx.Remove(ctx, names[0]))
	require.ErrorIs(t, idx.Remove(ctx, names[0]), entity.ErrNotFound)
	list, err = idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, names[1], list[0].Filename)
}
