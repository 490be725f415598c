package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// TimeFormat is how instants are stored in the catalog. RFC3339 in UTC
// sorts lexicographically, so SQL string comparisons order correctly.
const TimeFormat = time.RFC3339

// Video is a row of the v table.
type Video struct {
	RowID      int64
	IID        string // 11-char opaque id assigned by the site
	Name       string // filesystem-safe derivative of Title
	DName      string // owning-source directory name
	Duration   int64  // seconds
	Title      string
	Uploader   string
	PTime      *time.Time // publish instant per the site
	CTime      *time.Time // first observed
	ATime      *time.Time // last touched
	UTime      *time.Time // last downloaded; non-nil means media expected on disk
	Skip       bool
	Thumbnails []string
	Chapters   []Chapter
	Format     string // optional per-video format override
	FixComment string // free text about how to fix a broken download
}

// Chapter is one (start, label) pair. Start is an HH:MM:SS-style string.
type Chapter struct {
	Start string `json:"start"`
	Label string `json:"label"`
}

// SourceKind distinguishes the four source variants.
type SourceKind string

const (
	KindUser           SourceKind = "u"
	KindChannelUnnamed SourceKind = "ch"
	KindChannelNamed   SourceKind = "c"
	KindPlaylist       SourceKind = "pl"
)

// SyncOrder is the mandatory variant order for sync passes. Playlists
// come last: they have no feed path and should not claim dname first.
var SyncOrder = []SourceKind{KindUser, KindChannelUnnamed, KindChannelNamed, KindPlaylist}

// Table returns the backing table name.
func (k SourceKind) Table() string { return string(k) }

// KeyColumn returns the key column of the variant's table.
func (k SourceKind) KeyColumn() string {
	if k == KindPlaylist {
		return "ytid"
	}
	return "name"
}

func (k SourceKind) String() string { return string(k) }

// KindFromString validates a kind string.
func KindFromString(s string) (SourceKind, error) {
	switch SourceKind(s) {
	case KindUser, KindChannelUnnamed, KindChannelNamed, KindPlaylist:
		return SourceKind(s), nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Source is a row of one of the u/ch/c/pl tables.
type Source struct {
	RowID    int64
	Kind     SourceKind
	Key      string // name, or playlist iid
	Alias    string // unnamed channels only
	Title    string
	Uploader string
	CTime    *time.Time
	ATime    *time.Time
	Skip     bool // playlists only
}

// EffectiveKey is the directory-naming token: alias when set, else key.
func (s Source) EffectiveKey() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Key
}

// Membership is a row of the vids table: a video's position in a
// source's listing. Idx of -1 is a tombstone for a video that is no
// longer enumerated but was once a member.
type Membership struct {
	RowID     int64
	SourceKey string // effective key of the owning source
	IID       string
	Idx       int64
	ATime     *time.Time
}

// TombstoneIdx marks a membership row whose video left the live listing.
const TombstoneIdx = -1

// FeedURL is a cached feed location for a source.
type FeedURL struct {
	Kind  SourceKind
	Key   string
	URL   string // empty means "known to have no feed"
	ATime *time.Time
}

// SleepEntry suppresses a video until the wake instant passes.
type SleepEntry struct {
	IID  string
	Wake time.Time
}

// nullTime converts between *time.Time and the stored TEXT column.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(TimeFormat)
}

func scanTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(TimeFormat, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// marshalJSON renders a JSON column value, storing NULL for empties.
func marshalJSON(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalJSON(ns sql.NullString, v any) {
	if !ns.Valid || ns.String == "" {
		return
	}
	// Tolerate malformed stored JSON rather than failing the read.
	_ = json.Unmarshal([]byte(ns.String), v)
}
