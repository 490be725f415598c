package store

import (
	"fmt"
	"strings"
)

// TimeField selects which instant the date-bucketed views group by.
type TimeField string

const (
	FieldPublish  TimeField = "ptime"
	FieldDownload TimeField = "utime"
)

// Instants are stored as RFC3339 text, so date parts are fixed substrings.
func (f TimeField) part(depth int) string {
	switch depth {
	case 1:
		return fmt.Sprintf("substr(%s, 1, 4)", string(f)) // YYYY
	case 2:
		return fmt.Sprintf("substr(%s, 6, 2)", string(f)) // MM
	default:
		return fmt.Sprintf("substr(%s, 9, 2)", string(f)) // DD
	}
}

// DownloadedYears lists distinct years of downloaded videos for field.
func (q queries) DownloadedYears(f TimeField) ([]string, error) {
	return q.orderedNames(fmt.Sprintf(
		"SELECT DISTINCT %s FROM v WHERE utime IS NOT NULL AND %s IS NOT NULL ORDER BY 1",
		f.part(1), string(f)))
}

// DownloadedMonths lists distinct months within year.
func (q queries) DownloadedMonths(f TimeField, year string) ([]string, error) {
	rows, err := q.q.Query(fmt.Sprintf(
		"SELECT DISTINCT %s FROM v WHERE utime IS NOT NULL AND %s IS NOT NULL AND %s = ? ORDER BY 1",
		f.part(2), string(f), f.part(1)), year)
	if err != nil {
		return nil, fmt.Errorf("%w: months: %v", ErrStorageUnavailable, err)
	}
	return collectStrings(rows)
}

// DownloadedDays lists distinct days within year-month.
func (q queries) DownloadedDays(f TimeField, year, month string) ([]string, error) {
	rows, err := q.q.Query(fmt.Sprintf(
		"SELECT DISTINCT %s FROM v WHERE utime IS NOT NULL AND %s IS NOT NULL AND %s = ? AND %s = ? ORDER BY 1",
		f.part(3), string(f), f.part(1), f.part(2)), year, month)
	if err != nil {
		return nil, fmt.Errorf("%w: days: %v", ErrStorageUnavailable, err)
	}
	return collectStrings(rows)
}

// DownloadedOn returns downloaded videos whose field falls on the given
// YYYY, MM, DD parts, ordered by iid.
func (q queries) DownloadedOn(f TimeField, year, month, day string) ([]*Video, error) {
	rows, err := q.q.Query(fmt.Sprintf(
		"SELECT %s FROM v WHERE utime IS NOT NULL AND %s IS NOT NULL AND substr(%s, 1, 10) = ? ORDER BY ytid",
		videoCols, string(f), string(f)), year+"-"+month+"-"+day)
	if err != nil {
		return nil, fmt.Errorf("%w: select by date: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan by date: %v", ErrStorageUnavailable, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DownloadedByDName returns the downloaded videos under one directory
// name, ordered by iid. Feeds the per-source VFS directories.
func (q queries) DownloadedByDName(dname string) ([]*Video, error) {
	rows, err := q.q.Query(
		"SELECT "+videoCols+" FROM v WHERE dname = ? AND utime IS NOT NULL ORDER BY ytid", dname)
	if err != nil {
		return nil, fmt.Errorf("%w: select by dname: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan by dname: %v", ErrStorageUnavailable, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DownloadedMembers returns the downloaded videos among a source's live
// membership rows, ordered by iid. Unlike DownloadedByDName this follows
// the membership table, so playlists see members owned by other sources.
func (q queries) DownloadedMembers(sourceKey string) ([]*Video, error) {
	cols := "v." + strings.ReplaceAll(videoCols, ", ", ", v.")
	rows, err := q.q.Query(
		"SELECT "+cols+` FROM v JOIN vids ON vids.ytid = v.ytid
		WHERE vids.name = ? AND vids.idx != -1 AND v.utime IS NOT NULL ORDER BY v.ytid`, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: select members: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan members: %v", ErrStorageUnavailable, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func collectStrings(rows interface {
	Next() bool
	Scan(...any) error
	Close() error
	Err() error
}) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStorageUnavailable, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
