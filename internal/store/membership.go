package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MembershipMap loads iid→rowid for every membership row of a source.
// Used by reconciliation as the working map of previously seen videos.
func (q queries) MembershipMap(sourceKey string) (map[string]int64, error) {
	rows, err := q.q.Query("SELECT rowid, ytid FROM vids WHERE name = ?", sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: select vids: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var rowid int64
		var iid string
		if err := rows.Scan(&rowid, &iid); err != nil {
			return nil, fmt.Errorf("%w: scan vids: %v", ErrStorageUnavailable, err)
		}
		out[iid] = rowid
	}
	return out, rows.Err()
}

// Memberships returns a source's rows ordered by idx, tombstones last.
func (q queries) Memberships(sourceKey string) ([]*Membership, error) {
	rows, err := q.q.Query(`SELECT rowid, name, ytid, idx, atime FROM vids
		WHERE name = ? ORDER BY (idx = -1) ASC, idx ASC, ytid ASC`, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: select vids: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []*Membership
	for rows.Next() {
		var m Membership
		var atime sql.NullString
		if err := rows.Scan(&m.RowID, &m.SourceKey, &m.IID, &m.Idx, &atime); err != nil {
			return nil, fmt.Errorf("%w: scan vids: %v", ErrStorageUnavailable, err)
		}
		m.ATime = scanTime(atime)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// HasMembership reports whether (sourceKey, iid) exists, live or tombstoned.
func (q queries) HasMembership(sourceKey, iid string) (bool, error) {
	var n int
	err := q.q.QueryRow("SELECT COUNT(*) FROM vids WHERE name = ? AND ytid = ?", sourceKey, iid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: count vids: %v", ErrStorageUnavailable, err)
	}
	return n > 0, nil
}

// UpsertMembership records a video's position in a source's listing.
func (q queries) UpsertMembership(sourceKey, iid string, idx int64, at time.Time) error {
	_, err := q.q.Exec(`INSERT INTO vids (name, ytid, idx, atime) VALUES (?, ?, ?, ?)
		ON CONFLICT(name, ytid) DO UPDATE SET idx = excluded.idx, atime = excluded.atime`,
		sourceKey, iid, idx, nullTime(&at))
	if err != nil {
		return fmt.Errorf("%w: upsert vids: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// TombstoneMembership marks a row as no longer enumerated (idx = -1).
// The row itself survives so provenance is never lost.
func (q queries) TombstoneMembership(rowid int64) error {
	return q.exec1("tombstone vids", "UPDATE vids SET idx = ? WHERE rowid = ?", TombstoneIdx, rowid)
}

// RenameMembershipSource moves every membership row from one source key
// to another (alias assignment).
func (q queries) RenameMembershipSource(old, new string) error {
	if _, err := q.q.Exec("UPDATE vids SET name = ? WHERE name = ?", new, old); err != nil {
		return fmt.Errorf("%w: rename vids: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// MemberIIDs returns the iids of a source's live rows in listing order.
func (q queries) MemberIIDs(sourceKey string) ([]string, error) {
	rows, err := q.q.Query("SELECT ytid FROM vids WHERE name = ? AND idx != -1 ORDER BY idx ASC", sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: select vids: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var iid string
		if err := rows.Scan(&iid); err != nil {
			return nil, fmt.Errorf("%w: scan vids: %v", ErrStorageUnavailable, err)
		}
		out = append(out, iid)
	}
	return out, rows.Err()
}
