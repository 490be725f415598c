package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const videoCols = "rowid, ytid, name, dname, duration, title, uploader, ptime, ctime, atime, utime, skip, thumbnails, chapters, videoformat, fixcomments"

func scanVideo(row interface{ Scan(...any) error }) (*Video, error) {
	var v Video
	var name, dname, title, uploader, format, fix sql.NullString
	var duration sql.NullInt64
	var ptime, ctime, atime, utime, thumbs, chaps sql.NullString
	err := row.Scan(&v.RowID, &v.IID, &name, &dname, &duration, &title, &uploader,
		&ptime, &ctime, &atime, &utime, &v.Skip, &thumbs, &chaps, &format, &fix)
	if err != nil {
		return nil, err
	}
	v.Name = name.String
	v.DName = dname.String
	v.Duration = duration.Int64
	v.Title = title.String
	v.Uploader = uploader.String
	v.Format = format.String
	v.FixComment = fix.String
	v.PTime = scanTime(ptime)
	v.CTime = scanTime(ctime)
	v.ATime = scanTime(atime)
	v.UTime = scanTime(utime)
	unmarshalJSON(thumbs, &v.Thumbnails)
	unmarshalJSON(chaps, &v.Chapters)
	return &v, nil
}

// VideoByIID fetches one video row. Returns ErrNotFound when absent.
func (q queries) VideoByIID(iid string) (*Video, error) {
	v, err := scanVideo(q.q.QueryRow("SELECT "+videoCols+" FROM v WHERE ytid = ?", iid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", iid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select v: %v", ErrStorageUnavailable, err)
	}
	return v, nil
}

// InsertVideo creates a video row with skip=false and otherwise null
// attributes. ctime may be nil: single-video registration leaves every
// timestamp null while list reconciliation stamps first observation.
func (q queries) InsertVideo(iid, dname string, ctime *time.Time) error {
	_, err := q.q.Exec("INSERT INTO v (ytid, dname, ctime, skip) VALUES (?, ?, ?, 0)",
		iid, dname, nullTime(ctime))
	if err != nil {
		return fmt.Errorf("%w: insert v: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// SelectVideos returns videos filtered by iid or owning dname. An empty
// filter selects everything. ignoreOld restricts to utime IS NULL;
// excludeSkipped drops skip=1 rows. Ordered by iid for reproducible runs.
func (q queries) SelectVideos(filt []string, ignoreOld, excludeSkipped bool) ([]*Video, error) {
	var where []string
	var args []any
	if len(filt) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(filt)), ",")
		where = append(where, fmt.Sprintf("(ytid IN (%s) OR dname IN (%s))", ph, ph))
		for i := 0; i < 2; i++ {
			for _, f := range filt {
				args = append(args, f)
			}
		}
	}
	if ignoreOld {
		where = append(where, "utime IS NULL")
	}
	if excludeSkipped {
		where = append(where, "skip != 1")
	}
	query := "SELECT " + videoCols + " FROM v"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ytid ASC"

	rows, err := q.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select v: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan v: %v", ErrStorageUnavailable, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SkippedIIDs returns the iids with the given skip state, sorted.
func (q queries) SkippedIIDs(skip bool) ([]string, error) {
	rows, err := q.q.Query("SELECT ytid FROM v WHERE skip = ? ORDER BY ytid ASC", skip)
	if err != nil {
		return nil, fmt.Errorf("%w: select skip: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var iid string
		if err := rows.Scan(&iid); err != nil {
			return nil, fmt.Errorf("%w: scan skip: %v", ErrStorageUnavailable, err)
		}
		out = append(out, iid)
	}
	return out, rows.Err()
}

// CountDownloaded returns the number of items with media on disk.
func (q queries) CountDownloaded() (int, error) {
	var n int
	err := q.q.QueryRow("SELECT COUNT(*) FROM v WHERE utime IS NOT NULL").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count downloaded: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}

func (q queries) exec1(what, query string, args ...any) error {
	res, err := q.q.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// SetVideoSkip flips the per-video skip flag. Marking skip also drops
// any sleep entry so the two suppression mechanisms never overlap.
func (q queries) SetVideoSkip(iid string, skip bool) error {
	if err := q.exec1("update v.skip", "UPDATE v SET skip = ? WHERE ytid = ?", skip, iid); err != nil {
		return err
	}
	if skip {
		if _, err := q.q.Exec("DELETE FROM v_sleep WHERE ytid = ?", iid); err != nil {
			return fmt.Errorf("%w: clear sleep: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

// TouchVideo bumps atime only.
func (q queries) TouchVideo(iid string, at time.Time) error {
	return q.exec1("touch v", "UPDATE v SET atime = ? WHERE ytid = ?", nullTime(&at), iid)
}

// ResetVideoATime clears atime, marking the video as needing a metadata
// sync. Title and name are refreshed from the enumeration when known.
func (q queries) ResetVideoATime(iid, title, name string) error {
	if title == "" {
		return q.exec1("reset v.atime", "UPDATE v SET atime = NULL WHERE ytid = ?", iid)
	}
	return q.exec1("reset v.atime",
		"UPDATE v SET atime = NULL, title = ?, name = ? WHERE ytid = ?", title, name, iid)
}

// VideoInfoUpdate is the per-video enrichment written by item sync.
type VideoInfoUpdate struct {
	Duration   int64
	Title      string
	Name       string
	Uploader   string
	Thumbnails []string
	PTime      *time.Time
	ATime      time.Time
}

// UpdateVideoInfo applies extractor metadata. ctime is stamped when it
// was previously null so first-enrichment ordering invariants hold.
func (q queries) UpdateVideoInfo(iid string, u VideoInfoUpdate) error {
	thumbs, err := marshalJSON(u.Thumbnails, len(u.Thumbnails) == 0)
	if err != nil {
		return fmt.Errorf("marshal thumbnails: %w", err)
	}
	at := nullTime(&u.ATime)
	return q.exec1("update v info", `
		UPDATE v SET duration = ?, title = ?, name = ?, uploader = ?,
			thumbnails = ?, ptime = ?, atime = ?,
			ctime = COALESCE(ctime, ?)
		WHERE ytid = ?`,
		u.Duration, u.Title, u.Name, u.Uploader, thumbs, nullTime(u.PTime), at, at, iid)
}

// SetVideoDName rewrites the owning directory of one video.
func (q queries) SetVideoDName(iid, dname string) error {
	return q.exec1("update v.dname", "UPDATE v SET dname = ? WHERE ytid = ?", dname, iid)
}

// RenameVideoDName moves every video under an old dname to a new one
// (used when an unnamed channel gains an alias).
func (q queries) RenameVideoDName(old, new string) error {
	if _, err := q.q.Exec("UPDATE v SET dname = ? WHERE dname = ?", new, old); err != nil {
		return fmt.Errorf("%w: rename dname: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// SetVideoDownloaded stamps utime and atime after a successful download.
func (q queries) SetVideoDownloaded(iid string, at time.Time) error {
	t := nullTime(&at)
	return q.exec1("update v.utime", "UPDATE v SET utime = ?, atime = ? WHERE ytid = ?", t, t, iid)
}

// SetVideoChapters stores the chapter list unless one is already saved.
func (q queries) SetVideoChapters(iid string, chapters []Chapter) error {
	dat, err := marshalJSON(chapters, len(chapters) == 0)
	if err != nil {
		return fmt.Errorf("marshal chapters: %w", err)
	}
	if _, err := q.q.Exec("UPDATE v SET chapters = ? WHERE ytid = ? AND chapters IS NULL", dat, iid); err != nil {
		return fmt.Errorf("%w: update chapters: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// PreferredName returns the manually assigned name for a video, or ""
// when none is set.
func (q queries) PreferredName(iid string) (string, error) {
	var name string
	err := q.q.QueryRow("SELECT name FROM vnames WHERE ytid = ?", iid).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: select vnames: %v", ErrStorageUnavailable, err)
	}
	return name, nil
}

// SetPreferredName inserts or replaces the preferred name for a video.
func (q queries) SetPreferredName(iid, name string) error {
	_, err := q.q.Exec(`INSERT INTO vnames (ytid, name) VALUES (?, ?)
		ON CONFLICT(ytid) DO UPDATE SET name = excluded.name`, iid, name)
	if err != nil {
		return fmt.Errorf("%w: upsert vnames: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// PreferredNames returns every iid→name mapping, ordered by iid.
func (q queries) PreferredNames() (map[string]string, error) {
	rows, err := q.q.Query("SELECT ytid, name FROM vnames ORDER BY ytid ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: select vnames: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var iid, name string
		if err := rows.Scan(&iid, &name); err != nil {
			return nil, fmt.Errorf("%w: scan vnames: %v", ErrStorageUnavailable, err)
		}
		out[iid] = name
	}
	return out, rows.Err()
}
