package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SleepUntil returns the wake instant for iid, or nil when not sleeping.
func (q queries) SleepUntil(iid string) (*time.Time, error) {
	var ns sql.NullString
	err := q.q.QueryRow("SELECT t FROM v_sleep WHERE ytid = ?", iid).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select v_sleep: %v", ErrStorageUnavailable, err)
	}
	return scanTime(ns), nil
}

// SetSleep inserts or updates the wake instant for a video.
func (q queries) SetSleep(iid string, wake time.Time) error {
	_, err := q.q.Exec(`INSERT INTO v_sleep (ytid, t) VALUES (?, ?)
		ON CONFLICT(ytid) DO UPDATE SET t = excluded.t`, iid, nullTime(&wake))
	if err != nil {
		return fmt.Errorf("%w: upsert v_sleep: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteSleep removes a sleep entry if present.
func (q queries) DeleteSleep(iid string) error {
	if _, err := q.q.Exec("DELETE FROM v_sleep WHERE ytid = ?", iid); err != nil {
		return fmt.Errorf("%w: delete v_sleep: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// PruneSleeps deletes every entry whose wake instant has passed and
// returns how many were removed.
func (q queries) PruneSleeps(now time.Time) (int64, error) {
	res, err := q.q.Exec("DELETE FROM v_sleep WHERE t <= ?", nullTime(&now))
	if err != nil {
		return 0, fmt.Errorf("%w: prune v_sleep: %v", ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SleepEntries lists all entries ordered by wake instant ascending.
func (q queries) SleepEntries() ([]SleepEntry, error) {
	rows, err := q.q.Query("SELECT ytid, t FROM v_sleep ORDER BY t ASC, ytid ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: select v_sleep: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []SleepEntry
	for rows.Next() {
		var e SleepEntry
		var ns sql.NullString
		if err := rows.Scan(&e.IID, &ns); err != nil {
			return nil, fmt.Errorf("%w: scan v_sleep: %v", ErrStorageUnavailable, err)
		}
		if t := scanTime(ns); t != nil {
			e.Wake = *t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
