package archivefs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/config"
	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/store"
)

// Tree is the catalog-backed view the mount projects: read-only
// directories of symlinks pointing at the on-disk media files.
type Tree struct {
	db *store.Store

	// base is prepended to every link target. Absolute when the
	// operator asked for absolute links, otherwise the archive root
	// exactly as configured.
	base string

	// fallback stands in for file times when the backing media file
	// cannot be stat'ed. Taken from the catalog file at construction.
	fallback time.Time

	logger zerolog.Logger
}

// NewTree builds a Tree over the catalog. The link-target base is
// resolved once, up front.
func NewTree(db *store.Store, cfg *config.Config) (*Tree, error) {
	base := cfg.ArchiveRoot
	if cfg.AbsoluteLinks() {
		abs, err := filepath.Abs(base)
		if err != nil {
			return nil, err
		}
		base = abs
	}
	fallback := time.Now().UTC()
	if fi, err := os.Stat(cfg.CatalogPath); err == nil {
		fallback = fi.ModTime()
	}
	return &Tree{
		db:       db,
		base:     base,
		fallback: fallback,
		logger:   log.WithComponent("archivefs"),
	}, nil
}

// linkTarget renders the media path a symlink points at.
func (t *Tree) linkTarget(v *store.Video, preferred string) string {
	return naming.FormatVPath(t.base, v.DName, v.Name, preferred, v.IID, "mkv")
}

// linkTimes returns (mtime, ok-ish) for a link: the backing file's
// mtime when it can be stat'ed, else the catalog fallback.
func (t *Tree) linkTimes(target string) time.Time {
	if fi, err := os.Stat(target); err == nil {
		return fi.ModTime()
	}
	return t.fallback
}

func effectiveName(v *store.Video, preferred string) string {
	if preferred != "" {
		return preferred
	}
	return v.Name
}

// sourceLinkName is the per-source directory entry name for a video.
func sourceLinkName(v *store.Video, preferred string) string {
	return effectiveName(v, preferred) + "-" + v.IID + ".mkv"
}

// dateLinkName is the date-view entry name; it carries the owning
// directory so entries from different sources stay distinguishable.
func dateLinkName(v *store.Video, preferred string) string {
	return v.DName + "-" + effectiveName(v, preferred) + "-" + v.IID + ".mkv"
}

// preferredFor looks up the operator-assigned name, tolerating lookup
// failure (the view degrades to the derived name).
func (t *Tree) preferredFor(iid string) string {
	p, err := t.db.PreferredName(iid)
	if err != nil {
		t.logger.Warn().Err(err).Str("iid", iid).Msg("preferred name lookup failed")
		return ""
	}
	return p
}

// sourceDirs lists the per-source directory names of one variant in
// effective-key order.
func (t *Tree) sourceDirs(kind store.SourceKind) ([]string, error) {
	ss, err := t.db.SelectSources(kind, nil, false)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ss))
	for _, s := range ss {
		names = append(names, s.EffectiveKey())
	}
	return names, nil
}

// hasSourceDir reports whether an effective key names a source of kind.
func (t *Tree) hasSourceDir(kind store.SourceKind, key string) (bool, error) {
	names, err := t.sourceDirs(kind)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == key {
			return true, nil
		}
	}
	return false, nil
}
