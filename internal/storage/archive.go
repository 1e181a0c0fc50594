// Package storage keeps an archive of published stories so later cycles
// can skip what already went out. Three backends share the Archive
// interface: a JSON file, PostgreSQL and SQLite.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Record is one publish attempt as stored in the archive.
type Record struct {
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Region      string    `json:"region"`
	PostID      string    `json:"post_id,omitempty"`
	Success     bool      `json:"success"`
	PublishedAt time.Time `json:"published_at"`
}

type Archive interface {
	// Record stores an attempt. A later success for the same key wins
	// over an earlier failure, never the other way round.
	Record(ctx context.Context, r Record) error
	// WasPublished reports a successful post for key within the TTL.
	WasPublished(ctx context.Context, key string) (bool, error)
	// Cleanup drops records older than the TTL.
	Cleanup(ctx context.Context) (int, error)
	Close() error
}

// Open builds the archive named by driver. An empty driver returns nil.
func Open(ctx context.Context, driver, dsn, path string, ttl time.Duration) (Archive, error) {
	switch driver {
	case "":
		return nil, nil
	case "file":
		fa, err := OpenFile(path, ttl)
		if err != nil {
			return nil, err
		}
		return fa, nil
	case DialectPostgres, DialectSQLite:
		if driver == DialectSQLite && dsn == "" {
			dsn = path
		}
		sa, err := OpenSQL(ctx, driver, dsn, ttl)
		if err != nil {
			return nil, err
		}
		return sa, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}

func cutoff(now time.Time, ttl time.Duration) time.Time {
	return now.Add(-ttl)
}
