package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/store"
)

// enrich runs after a TEMP-path download: it reads the metadata file the
// downloader left behind, stores the normalized facts, and — for items
// registered from a bare watch URL — moves the files out of the
// MISCELLANEOUS sentinel directory into the real channel's shard.
// Returns the computed canonical name.
func (c *Coordinator) enrich(ctx context.Context, v *store.Video, dir string) (string, error) {
	infoPath, err := findInfoJSON(dir, v.IID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return "", err
	}
	info, err := extractor.ParseInfo(data)
	if err != nil {
		return "", err
	}

	name := naming.TitleToName(info.Title)
	now := time.Now().UTC()
	err = c.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpdateVideoInfo(v.IID, store.VideoInfoUpdate{
			Duration:   int64(info.Duration),
			Title:      info.Title,
			Name:       name,
			Uploader:   info.Uploader,
			Thumbnails: info.ThumbnailURLs(),
			PTime:      info.PublishTime(),
			ATime:      now,
		})
	})
	if err != nil {
		return "", err
	}

	if v.DName == naming.Miscellaneous && info.ChannelID != "" {
		if err := c.adopt(ctx, v.IID, dir, info.ChannelID); err != nil {
			return "", err
		}
	}
	return name, nil
}

// findInfoJSON locates the downloader's metadata file for iid in dir.
func findInfoJSON(dir, iid string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*-"+iid+".info.json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no info.json for %s in %s", iid, dir)
	}
	return matches[0], nil
}

// adopt rewrites the item's dname from the MISCELLANEOUS sentinel to its
// real channel id and physically moves every file of the item into the new
// shard directory.
func (c *Coordinator) adopt(ctx context.Context, iid, oldDir, channelID string) error {
	newDir := filepath.Join(c.cfg.ArchiveRoot, channelID, naming.Shard(iid))
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", newDir, err)
	}

	entries, err := os.ReadDir(oldDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), iid) {
			continue
		}
		from := filepath.Join(oldDir, e.Name())
		to := filepath.Join(newDir, e.Name())
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("move %s: %w", e.Name(), err)
		}
	}

	c.logger.Info().Str("iid", iid).Str("dname", channelID).Msg("adopted into channel directory")
	return c.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetVideoDName(iid, channelID)
	})
}
