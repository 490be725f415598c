package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeedURLFor returns the cached feed URL for a source, or ErrNotFound
// when discovery has never run for it.
func (q queries) FeedURLFor(k SourceKind, key string) (*FeedURL, error) {
	var f FeedURL
	var urlNS, atime sql.NullString
	err := q.q.QueryRow("SELECT url, atime FROM rss WHERE typ = ? AND name = ?",
		k.Table(), key).Scan(&urlNS, &atime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed url %s/%s: %w", k, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select rss: %v", ErrStorageUnavailable, err)
	}
	f.Kind = k
	f.Key = key
	f.URL = urlNS.String
	f.ATime = scanTime(atime)
	return &f, nil
}

// SaveFeedURL caches a discovered feed URL (empty url records "no feed").
func (q queries) SaveFeedURL(k SourceKind, key, url string, at time.Time) error {
	_, err := q.q.Exec(`INSERT INTO rss (typ, name, url, atime) VALUES (?, ?, ?, ?)
		ON CONFLICT(typ, name) DO UPDATE SET url = excluded.url, atime = excluded.atime`,
		k.Table(), key, url, nullTime(&at))
	if err != nil {
		return fmt.Errorf("%w: upsert rss: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// TouchFeedURL bumps the last-poll instant of a cached feed URL.
func (q queries) TouchFeedURL(k SourceKind, key string, at time.Time) error {
	if _, err := q.q.Exec("UPDATE rss SET atime = ? WHERE typ = ? AND name = ?",
		nullTime(&at), k.Table(), key); err != nil {
		return fmt.Errorf("%w: touch rss: %v", ErrStorageUnavailable, err)
	}
	return nil
}
