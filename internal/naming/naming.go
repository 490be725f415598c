// Package naming turns video titles into filesystem-safe names and
// assembles the on-disk paths of archive files.
//
// The archive layout is <root>/<dname>/<shard>/<name>-<iid>.<suffix>
// where shard is the first character of the 11-character video id.
// YouTube ids draw from a 64-character alphabet, so the shard level
// bounds any single directory to roughly 1/64th of a source's videos.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Nothing is the name used when canonicalization leaves an empty string.
const Nothing = "NOTHING"

// Temp is the placeholder base name used before a video's title is known.
const Temp = "TEMP"

// Miscellaneous is the sentinel dname for videos registered from a bare
// watch URL. First enrichment rewrites it to the real channel id.
const Miscellaneous = "MISCELLANEOUS"

// ErrInvalidAlias is returned by AliasCoerce for non-alphanumeric input.
var ErrInvalidAlias = errors.New("alias must be ASCII alphanumeric")

// ErrInvalidName is returned when a supplied preferred name does not
// survive TitleToName unchanged.
var ErrInvalidName = errors.New("name contains disallowed characters")

// accentFold maps the accepted Latin-1 accented letters to their ASCII
// counterparts. Codepoints outside this table are dropped outright.
var accentFold = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U",
	"ä", "a", "ë", "e", "ï", "i", "ö", "o", "ü", "u",
	"Ä", "A", "Ë", "E", "Ï", "I", "Ö", "O", "Ü", "U",
)

// TitleToName canonicalizes a video title into a filesystem-safe name.
//
// The rules, in order: transliterate the fixed accent table, drop every
// remaining non-ASCII codepoint, rewrite ':' '/' '\' to '-', delete
// '!' '?' '|', collapse runs of spaces, then alternately trim
// surrounding whitespace and leading dots (hidden files break glob
// matching) until stable. An empty result becomes the literal
// "NOTHING". The function is idempotent.
func TitleToName(t string) string {
	t = accentFold.Replace(t)

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		if r > 127 {
			continue
		}
		switch r {
		case ':', '/', '\\':
			b.WriteByte('-')
		case '!', '?', '|':
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	t = b.String()

	for strings.Contains(t, "  ") {
		t = strings.ReplaceAll(t, "  ", " ")
	}

	// Trimming can expose another leading dot (". . x"), so alternate
	// until neither strip changes the string.
	for {
		trimmed := strings.TrimLeft(strings.TrimSpace(t), ".")
		if trimmed == t {
			break
		}
		t = trimmed
	}

	if t == "" {
		return Nothing
	}
	return t
}

// AliasCoerce validates a source alias: ASCII-only and alphanumeric.
func AliasCoerce(a string) (string, error) {
	if a == "" {
		return "", ErrInvalidAlias
	}
	for _, r := range a {
		if r >= '0' && r <= '9' {
			continue
		}
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidAlias, a)
	}
	return a, nil
}

// CheckName validates a preferred name: it must already be canonical.
func CheckName(name string) error {
	if name == "" || TitleToName(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Shard returns the single-character shard directory for a video id.
func Shard(iid string) string {
	if iid == "" {
		return "_"
	}
	return iid[:1]
}

// FormatVNames computes the (dir, file) pair for a video.
//
// dir is <root>/<dname>/<shard>. file is "<effective>-<iid>" with the
// optional suffix appended; effective is the preferred name when set,
// else the computed name, else the TEMP placeholder.
func FormatVNames(root, dname, name, preferred, iid, suffix string) (dir, file string) {
	eff := name
	if preferred != "" {
		eff = preferred
	}
	if eff == "" {
		eff = Temp
	}
	dir = filepath.Join(root, dname, Shard(iid))
	file = eff + "-" + iid
	if suffix != "" {
		file += "." + suffix
	}
	return dir, file
}

// FormatVPath is FormatVNames joined into one path.
func FormatVPath(root, dname, name, preferred, iid, suffix string) string {
	dir, file := FormatVNames(root, dname, name, preferred, iid, suffix)
	return filepath.Join(dir, file)
}

// SecStr renders integer seconds as H:MM:SS, M:SS, or 0:SS.
func SecStr(sec int64) string {
	min, s := sec/60, sec%60
	hr, m := min/60, min%60
	switch {
	case hr > 0:
		return fmt.Sprintf("%d:%02d:%02d", hr, m, s)
	case m > 0:
		return fmt.Sprintf("%d:%02d", m, s)
	default:
		return fmt.Sprintf("0:%02d", s)
	}
}

// TSec parses "SS", "MM:SS", or "HH:MM:SS" into seconds.
func TSec(t string) (int64, error) {
	parts := strings.Split(t, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("too many parts in time spec %q", t)
	}
	var total int64
	for _, p := range parts {
		var n int64
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil || n < 0 {
			return 0, fmt.Errorf("bad time spec %q", t)
		}
		total = total*60 + n
	}
	return total, nil
}
