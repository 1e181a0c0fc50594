package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQLArchive stores records in PostgreSQL or SQLite. Timestamps are unix
// seconds so both dialects compare them the same way.
type SQLArchive struct {
	db      *sql.DB
	dialect string
	builder sq.StatementBuilderType
	ttl     time.Duration
	now     func() time.Time
}

func OpenSQL(ctx context.Context, dialect, dsn string, ttl time.Duration) (*SQLArchive, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s archive needs a data source", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if dialect == DialectSQLite && dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	a := &SQLArchive{db: db, dialect: dialect, builder: statementBuilder(dialect), ttl: ttl, now: time.Now}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

func (a *SQLArchive) initSchema(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if a.dialect == DialectPostgres {
		id = "SERIAL PRIMARY KEY"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS published_stories (
			id ` + id + `,
			story_key TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			post_id TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL DEFAULT FALSE,
			published_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_published_stories_published_at ON published_stories(published_at)`,
	}
	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLArchive) Record(ctx context.Context, r Record) error {
	if r.Key == "" {
		return fmt.Errorf("record without key")
	}
	if r.PublishedAt.IsZero() {
		r.PublishedAt = a.now()
	}

	// A stored success is never replaced by a failure.
	query, args, err := a.builder.
		Insert("published_stories").
		Columns("story_key", "title", "url", "source", "region", "post_id", "success", "published_at").
		Values(r.Key, r.Title, r.URL, r.Source, r.Region, r.PostID, r.Success, r.PublishedAt.Unix()).
		Suffix(`ON CONFLICT (story_key) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			source = excluded.source,
			region = excluded.region,
			post_id = excluded.post_id,
			success = excluded.success,
			published_at = excluded.published_at
		WHERE excluded.success OR NOT published_stories.success`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record story: %w", err)
	}
	return nil
}

func (a *SQLArchive) WasPublished(ctx context.Context, key string) (bool, error) {
	query, args, err := a.builder.
		Select("COUNT(*)").
		From("published_stories").
		Where(sq.Eq{"story_key": key, "success": true}).
		Where(sq.Gt{"published_at": cutoff(a.now(), a.ttl).Unix()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build lookup: %w", err)
	}

	var count int
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check archive: %w", err)
	}
	return count > 0, nil
}

func (a *SQLArchive) Cleanup(ctx context.Context) (int, error) {
	query, args, err := a.builder.
		Delete("published_stories").
		Where(sq.LtOrEq{"published_at": cutoff(a.now(), a.ttl).Unix()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}
	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (a *SQLArchive) Close() error {
	return a.db.Close()
}

func statementBuilder(dialect string) sq.StatementBuilderType {
	if dialect == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}
