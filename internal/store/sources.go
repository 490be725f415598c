package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (k SourceKind) selectCols() string {
	cols := "rowid, " + k.KeyColumn() + ", title, uploader, ctime, atime"
	if k == KindChannelUnnamed {
		cols += ", alias"
	}
	if k == KindPlaylist {
		cols += ", skip"
	}
	return cols
}

func scanSource(k SourceKind, row interface{ Scan(...any) error }) (*Source, error) {
	s := Source{Kind: k}
	var title, uploader, alias sql.NullString
	var ctime, atime sql.NullString
	dest := []any{&s.RowID, &s.Key, &title, &uploader, &ctime, &atime}
	if k == KindChannelUnnamed {
		dest = append(dest, &alias)
	}
	if k == KindPlaylist {
		dest = append(dest, &s.Skip)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.Title = title.String
	s.Uploader = uploader.String
	s.Alias = alias.String
	s.CTime = scanTime(ctime)
	s.ATime = scanTime(atime)
	return &s, nil
}

// SourceByKey fetches one source. Unnamed channels also match on alias.
func (q queries) SourceByKey(k SourceKind, key string) (*Source, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", k.selectCols(), k.Table(), k.KeyColumn())
	args := []any{key}
	if k == KindChannelUnnamed {
		query += " OR alias = ?"
		args = append(args, key)
	}
	s, err := scanSource(k, q.q.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", k, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrStorageUnavailable, k.Table(), err)
	}
	return s, nil
}

// AddSource registers a new source with ctime=now and no atime.
func (q queries) AddSource(k SourceKind, key string, now time.Time) error {
	query := fmt.Sprintf("INSERT INTO %s (%s, ctime) VALUES (?, ?)", k.Table(), k.KeyColumn())
	if _, err := q.q.Exec(query, key, nullTime(&now)); err != nil {
		return fmt.Errorf("%w: insert %s: %v", ErrStorageUnavailable, k.Table(), err)
	}
	return nil
}

// SelectSources lists sources of one kind, optionally filtered by key
// (or alias for unnamed channels) and restricted to never-synced rows.
// Ordered by effective key.
func (q queries) SelectSources(k SourceKind, filt []string, ignoreOld bool) ([]*Source, error) {
	var where []string
	var args []any
	if len(filt) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(filt)), ",")
		cond := fmt.Sprintf("%s IN (%s)", k.KeyColumn(), ph)
		for _, f := range filt {
			args = append(args, f)
		}
		if k == KindChannelUnnamed {
			cond = fmt.Sprintf("(%s OR alias IN (%s))", cond, ph)
			for _, f := range filt {
				args = append(args, f)
			}
		}
		where = append(where, cond)
	}
	if ignoreOld {
		where = append(where, "atime IS NULL")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", k.selectCols(), k.Table())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := q.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrStorageUnavailable, k.Table(), err)
	}
	defer rows.Close()
	var out []*Source
	for rows.Next() {
		s, err := scanSource(k, rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrStorageUnavailable, k.Table(), err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrStorageUnavailable, k.Table(), err)
	}
	sortSources(out)
	return out, nil
}

func sortSources(ss []*Source) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1].EffectiveKey() > ss[j].EffectiveKey(); j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// MarkSourceSynced bumps atime and records the listing's title/uploader.
func (q queries) MarkSourceSynced(k SourceKind, rowid int64, title, uploader string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET atime = ?, title = ?, uploader = ? WHERE rowid = ?", k.Table())
	return q.exec1("mark synced", query, nullTime(&at), title, uploader, rowid)
}

// SetChannelAlias assigns the alias of an unnamed channel.
func (q queries) SetChannelAlias(name, alias string) error {
	return q.exec1("update ch.alias", "UPDATE ch SET alias = ? WHERE name = ?", alias, name)
}

// AliasInUse reports whether candidate collides with any source key or
// existing alias across the c, ch, and u tables.
func (q queries) AliasInUse(candidate string) (bool, error) {
	var n int
	err := q.q.QueryRow(`SELECT
		(SELECT COUNT(*) FROM ch WHERE name = ?1 OR alias = ?1)
		+ (SELECT COUNT(*) FROM c WHERE name = ?1)
		+ (SELECT COUNT(*) FROM u WHERE name = ?1)`, candidate).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: alias check: %v", ErrStorageUnavailable, err)
	}
	return n > 0, nil
}

// SetPlaylistSkip flips the playlist-level skip flag.
func (q queries) SetPlaylistSkip(iid string, skip bool) error {
	return q.exec1("update pl.skip", "UPDATE pl SET skip = ? WHERE ytid = ?", skip, iid)
}

// PlaylistSkipped reports whether iid names a skipped playlist.
func (q queries) PlaylistSkipped(iid string) (bool, error) {
	var skip bool
	err := q.q.QueryRow("SELECT skip FROM pl WHERE ytid = ?", iid).Scan(&skip)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: select pl.skip: %v", ErrStorageUnavailable, err)
	}
	return skip, nil
}
