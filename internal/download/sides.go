package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/httpclient"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/store"
)

// sides fetches subtitle and caption tracks listed in the item's metadata
// file and persists any chapter list to the catalog. Existing files are
// kept unless force. Missing metadata is not an error; not every download
// produces one.
func (c *Coordinator) sides(ctx context.Context, iid, dir, base string, force bool) error {
	infoPath, err := findInfoJSON(dir, iid)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return err
	}
	info, err := extractor.ParseInfo(data)
	if err != nil {
		return err
	}

	stem := base + "-" + iid
	langs := c.cfg.CaptionLanguages()
	if err := c.fetchTracks(ctx, dir, stem, "subtitle", info.Subtitles, langs, force); err != nil {
		return err
	}
	if err := c.fetchTracks(ctx, dir, stem, "caption", info.AutomaticCaptions, langs, force); err != nil {
		return err
	}
	return c.storeChapters(ctx, iid, info)
}

// fetchTracks downloads one class of text track into
// "<stem>.<class>.<lang>.<ext>" files. An empty language filter means all.
func (c *Coordinator) fetchTracks(ctx context.Context, dir, stem, class string, tracks map[string][]extractor.Caption, langs []string, force bool) error {
	for lang, variants := range tracks {
		if !wantLang(langs, lang) {
			continue
		}
		for _, v := range variants {
			if v.URL == "" || v.Ext == "" {
				continue
			}
			path := filepath.Join(dir, stem+"."+class+"."+lang+"."+v.Ext)
			if _, err := os.Stat(path); err == nil && !force {
				continue
			}
			body, err := httpclient.Fetch(ctx, c.client, v.URL, nil)
			if err != nil {
				var se *httpclient.StatusError
				if errors.As(err, &se) {
					c.logger.Warn().Str("lang", lang).Int("code", se.Code).Msg("track fetch failed")
					continue
				}
				return err
			}
			// Atomic write: a failed fetch must not leave a
			// truncated track that a later run would keep.
			if err := renameio.WriteFile(path, body, 0o644); err != nil {
				return err
			}
			c.logger.Debug().Str("path", path).Msg("wrote track")
		}
	}
	return nil
}

func wantLang(langs []string, lang string) bool {
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		if l == lang {
			return true
		}
	}
	return false
}

// storeChapters persists the metadata's chapter list when the catalog has
// none. A listing that does not start at zero gets a leading "Start" entry
// so players can always seek to the beginning.
func (c *Coordinator) storeChapters(ctx context.Context, iid string, info *extractor.Info) error {
	if len(info.Chapters) == 0 {
		return nil
	}
	chapters := chaptersFromInfo(info.Chapters)
	return c.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetVideoChapters(iid, chapters)
	})
}

func chaptersFromInfo(in []extractor.InfoChapter) []store.Chapter {
	var out []store.Chapter
	if len(in) > 0 && int64(in[0].StartTime) != 0 {
		out = append(out, store.Chapter{Start: "0:00", Label: "Start"})
	}
	for _, ch := range in {
		out = append(out, store.Chapter{
			Start: naming.SecStr(int64(ch.StartTime)),
			Label: ch.Title,
		})
	}
	return out
}
