package download

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cmlburnett/ydl/internal/naming"
)

// UpdateNames re-renders on-disk filenames for downloaded items whose
// catalog name or preferred name changed since the files were written.
// filt restricts by iid or dname; empty means every downloaded item.
// Returns the number of items with at least one renamed file.
func (c *Coordinator) UpdateNames(ctx context.Context, filt []string) (int, error) {
	videos, err := c.db.SelectVideos(filt, false, false)
	if err != nil {
		return 0, err
	}
	renamed := 0
	for _, v := range videos {
		if v.UTime == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return renamed, err
		}
		pref, err := c.db.PreferredName(v.IID)
		if err != nil {
			return renamed, err
		}
		eff := effectiveItemName(v.Name, pref)
		if eff == "" {
			continue
		}
		dir := filepath.Join(c.cfg.ArchiveRoot, v.DName, naming.Shard(v.IID))
		if _, statErr := os.Stat(dir); statErr != nil {
			continue
		}
		did, err := c.renamePass(dir, v.IID, eff)
		if err != nil {
			return renamed, err
		}
		if did {
			c.logger.Info().Str("iid", v.IID).Str("name", eff).Msg("renamed on disk")
			renamed++
		}
	}
	return renamed, nil
}

func effectiveItemName(name, preferred string) string {
	if preferred != "" {
		return preferred
	}
	return name
}
