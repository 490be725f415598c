package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/store"
)

// CopyTo copies the data files of downloaded items into dest and records
// dest in the copy-path history. filt restricts by iid or dname; empty
// means every downloaded item. Returns the number of files copied.
func (c *Coordinator) CopyTo(ctx context.Context, dest string, filt []string) (int, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	videos, err := c.db.SelectVideos(filt, false, false)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, v := range videos {
		if v.UTime == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		pref, err := c.db.PreferredName(v.IID)
		if err != nil {
			return copied, err
		}
		src := naming.FormatVPath(c.cfg.ArchiveRoot, v.DName, v.Name, pref, v.IID, "mkv")
		if _, statErr := os.Stat(src); statErr != nil {
			c.logger.Warn().Str("iid", v.IID).Str("path", src).Msg("data file missing, not copied")
			continue
		}
		if err := copyFile(src, filepath.Join(dest, filepath.Base(src))); err != nil {
			return copied, err
		}
		c.logger.Info().Str("iid", v.IID).Str("dest", dest).Msg("copied")
		copied++
	}
	err = c.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.RememberCopyPath(dest)
	})
	return copied, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
