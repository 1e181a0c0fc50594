package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archiveContract runs the shared behaviour against any backend.
func archiveContract(t *testing.T, a Archive, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	setNow(now)

	ok, err := a.WasPublished(ctx, "url:https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Record(ctx, Record{Key: "url:https://example.com/a", Title: "A", Success: false}))
	ok, err = a.WasPublished(ctx, "url:https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok, "failed attempts do not count")

	require.NoError(t, a.Record(ctx, Record{Key: "url:https://example.com/a", Title: "A", Success: true, PostID: "1"}))
	ok, err = a.WasPublished(ctx, "url:https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Record(ctx, Record{Key: "url:https://example.com/a", Title: "A", Success: false}))
	ok, err = a.WasPublished(ctx, "url:https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok, "a later failure never hides a success")

	setNow(now.Add(72 * time.Hour))
	ok, err = a.WasPublished(ctx, "url:https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok, "expired")

	removed, err := a.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.Error(t, a.Record(ctx, Record{Title: "no key"}))
}

func TestFileArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "published.json")
	fa, err := OpenFile(path, 48*time.Hour)
	require.NoError(t, err)
	defer fa.Close()

	archiveContract(t, fa, func(now time.Time) { fa.now = func() time.Time { return now } })
}

func TestFileArchive_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "published.json")
	ctx := context.Background()

	fa, err := OpenFile(path, 48*time.Hour)
	require.NoError(t, err)
	require.NoError(t, fa.Record(ctx, Record{Key: "content:abc", Title: "Kept", Success: true}))
	require.NoError(t, fa.Record(ctx, Record{Key: "content:old", Title: "Old", Success: true, PublishedAt: time.Now().Add(-100 * time.Hour)}))

	reopened, err := OpenFile(path, 48*time.Hour)
	require.NoError(t, err)
	ok, err := reopened.WasPublished(ctx, "content:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, reopened.items, 1, "expired records are dropped on load")
}

func TestFileArchive_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "published.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := OpenFile(path, time.Hour)
	assert.Error(t, err)
}

func TestSQLiteArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := OpenSQL(context.Background(), DialectSQLite, path, 48*time.Hour)
	require.NoError(t, err)
	defer a.Close()

	archiveContract(t, a, func(now time.Time) { a.now = func() time.Time { return now } })
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	a, err := Open(ctx, "", "", "", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = Open(ctx, "sqlite", "", filepath.Join(t.TempDir(), "x.db"), time.Hour)
	require.NoError(t, err)
	assert.IsType(t, &SQLArchive{}, a)
	require.NoError(t, a.Close())

	a, err = Open(ctx, "file", "", filepath.Join(t.TempDir(), "x.json"), time.Hour)
	require.NoError(t, err)
	assert.IsType(t, &FileArchive{}, a)

	_, err = Open(ctx, "mongo", "", "", time.Hour)
	assert.Error(t, err)

	_, err = Open(ctx, "postgres", "", "", time.Hour)
	assert.Error(t, err)
}

func TestStatementBuilder_Placeholders(t *testing.T) {
	query, args, err := statementBuilder(DialectPostgres).
		Delete("published_stories").
		Where(sq.LtOrEq{"published_at": 10}).
		ToSql()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM published_stories WHERE published_at <= $1", query)
	assert.Equal(t, []any{10}, args)

	query, _, err = statementBuilder(DialectSQLite).
		Delete("published_stories").
		Where(sq.LtOrEq{"published_at": 10}).
		ToSql()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM published_stories WHERE published_at <= ?", query)
}
