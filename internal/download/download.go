// Package download owns the per-item archive lifecycle: the sleep gate,
// path selection, downloader invocation, failure classification, the
// post-download rename pass, and side-channel fetches.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/config"
	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/hooks"
	"github.com/cmlburnett/ydl/internal/httpclient"
	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/metrics"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/sleeping"
	"github.com/cmlburnett/ydl/internal/store"
)

// AutoSleepBuffer pads the extractor's premiere/live estimate. The estimate
// is routinely optimistic; two hours of slack avoids re-polling an event
// that started late.
const AutoSleepBuffer = 2 * time.Hour

// satisfactoryShare is the if_small acceptance threshold: an existing file
// at least this share of the best advertised format's size stays.
const satisfactoryShare = 0.8

// downloader is the media-fetch surface of *extractor.Runner.
type downloader interface {
	Download(ctx context.Context, iid string, opts extractor.DownloadOpts) error
}

// Coordinator runs download batches against the catalog and archive root.
type Coordinator struct {
	db     *store.Store
	dl     downloader
	sleep  *sleeping.Registry
	cfg    *config.Config
	client *http.Client
	hooks  *hooks.Dispatcher
	logger zerolog.Logger
}

func New(db *store.Store, r *extractor.Runner, sl *sleeping.Registry, cfg *config.Config) *Coordinator {
	return &Coordinator{
		db:     db,
		dl:     r,
		sleep:  sl,
		cfg:    cfg,
		client: httpclient.Default(),
		logger: log.WithComponent("download"),
	}
}

// SetHooks attaches a plugin dispatcher; nil disables dispatch.
func (c *Coordinator) SetHooks(d *hooks.Dispatcher) { c.hooks = d }

// Summary reports one download batch.
type Summary struct {
	Done      int
	Satisfied int // already on disk and large enough
	Sleeping  int
	Skipped   int // classified unfetchable and marked skip
	Errors    []string
}

// Run downloads every eligible item, in lexicographic iid order for
// reproducible batches. Per-item failures never abort the batch; an
// operator interrupt does, leaving committed work in place.
func (c *Coordinator) Run(ctx context.Context, filt []string, ignoreOld, force bool) (*Summary, error) {
	videos, err := c.db.SelectVideos(filt, ignoreOld, true)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Int("count", len(videos)).Msg("download batch")

	sum := &Summary{}
	for i, v := range videos {
		c.logger.Info().Str("iid", v.IID).Msgf("%d of %d", i+1, len(videos))
		err := c.one(ctx, v, force, sum)
		if errors.Is(err, extractor.ErrInterrupted) || errors.Is(err, context.Canceled) {
			return sum, err
		}
		if err != nil {
			c.logger.Error().Str("iid", v.IID).Err(err).Msg("download failed")
			sum.Errors = append(sum.Errors, v.IID)
			metrics.Download("error")
		}
	}
	if n, err := c.db.CountDownloaded(); err == nil {
		metrics.SetArchivedItems(n)
	}
	c.logger.Info().Int("done", sum.Done).Int("satisfied", sum.Satisfied).
		Int("sleeping", sum.Sleeping).Int("skipped", sum.Skipped).
		Int("errors", len(sum.Errors)).Msg("download batch complete")
	return sum, nil
}

func (c *Coordinator) one(ctx context.Context, v *store.Video, force bool, sum *Summary) error {
	// Earlier items may have burned enough wall clock that this item's
	// sleep entry expired, or a new one appeared. Check at entry.
	wake, err := c.sleep.Asleep(ctx, v.IID)
	if err != nil {
		return err
	}
	if wake != nil {
		c.logger.Info().Str("iid", v.IID).Time("wake", *wake).Msg("sleeping until")
		sum.Sleeping++
		metrics.Download("sleeping")
		return nil
	}

	dir, base, temp, err := c.target(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	media := filepath.Join(dir, base+".mkv")
	if _, statErr := os.Stat(media); statErr == nil && !force {
		ok, err := c.satisfactory(dir, base, media)
		if err != nil {
			return err
		}
		if ok {
			c.logger.Debug().Str("iid", v.IID).Msg("already on disk")
			sum.Satisfied++
			metrics.Download("satisfied")
			return c.ensureDownloadedStamp(ctx, v)
		}
		if err := os.Remove(media); err != nil {
			return fmt.Errorf("remove undersized %s: %w", media, err)
		}
	}

	format := v.Format
	if format == "" {
		format = c.cfg.Format
	}
	err = c.dl.Download(ctx, v.IID, extractor.DownloadOpts{
		Dir:      dir,
		Basename: base,
		Rate:     c.cfg.Rate,
		Format:   format,
		External: c.cfg.External,
		Cookies:  c.cfg.Cookies,
	})
	if err != nil {
		return c.classify(ctx, v.IID, err, sum)
	}

	name := v.Name
	if temp {
		name, err = c.enrich(ctx, v, dir)
		if err != nil {
			return err
		}
		// dname may have moved off the sentinel; recompute the shard dir.
		moved, err := c.db.VideoByIID(v.IID)
		if err != nil {
			return err
		}
		dir = filepath.Join(c.cfg.ArchiveRoot, moved.DName, naming.Shard(v.IID))
	}

	pref, err := c.db.PreferredName(v.IID)
	if err != nil {
		return err
	}
	eff := name
	if pref != "" {
		eff = pref
	}
	if eff != "" {
		if _, err := c.renamePass(dir, v.IID, eff); err != nil {
			return err
		}
	}

	if err := c.sides(ctx, v.IID, dir, eff, force); err != nil {
		return err
	}

	now := time.Now().UTC()
	err = c.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetVideoDownloaded(v.IID, now)
	})
	if err != nil {
		return err
	}
	if c.hooks != nil {
		c.hooks.Fire(ctx, hooks.DownloadEvent{
			IID:  v.IID,
			Path: filepath.Join(dir, eff+"-"+v.IID+".mkv"),
			At:   now,
		})
	}
	sum.Done++
	metrics.Download("done")
	return nil
}

// target picks the output directory and basename. Items never enriched
// (atime null) go to the TEMP placeholder; the rename pass fixes them up
// after the download reveals the title.
func (c *Coordinator) target(v *store.Video) (dir, base string, temp bool, err error) {
	if v.ATime == nil {
		dir = filepath.Join(c.cfg.ArchiveRoot, v.DName, naming.Shard(v.IID))
		return dir, naming.Temp + "-" + v.IID, true, nil
	}
	pref, err := c.db.PreferredName(v.IID)
	if err != nil {
		return "", "", false, err
	}
	dir, base = naming.FormatVNames(c.cfg.ArchiveRoot, v.DName, v.Name, pref, v.IID, "")
	return dir, base, false, nil
}

// satisfactory implements the if_small gate: with the option off, any
// existing file counts; with it on, the file must reach 80% of the largest
// advertised format size in the peer metadata file.
func (c *Coordinator) satisfactory(dir, base, media string) (bool, error) {
	if !c.cfg.IfSmall {
		return true, nil
	}
	st, err := os.Stat(media)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(filepath.Join(dir, base+".info.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	info, err := extractor.ParseInfo(data)
	if err != nil {
		return false, err
	}
	var best int64
	for _, f := range info.Formats {
		if s := f.Size(); s > best {
			best = s
		}
	}
	if best == 0 {
		return true, nil
	}
	return float64(st.Size()) >= satisfactoryShare*float64(best), nil
}

// ensureDownloadedStamp backfills utime for a file that exists on disk but
// was never recorded as downloaded.
func (c *Coordinator) ensureDownloadedStamp(ctx context.Context, v *store.Video) error {
	if v.UTime != nil {
		return nil
	}
	now := time.Now().UTC()
	return c.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetVideoDownloaded(v.IID, now)
	})
}

// classify maps a downloader failure onto catalog state: permanently
// unfetchable items get skip=true, unreleased items get a sleep entry
// (when auto-sleep is on), and anything else lands in the error bucket.
func (c *Coordinator) classify(ctx context.Context, iid string, err error, sum *Summary) error {
	var skip *extractor.SkipError
	if errors.As(err, &skip) {
		c.logger.Warn().Str("iid", iid).Str("reason", skip.Reason).Msg("marking skip")
		sum.Skipped++
		metrics.Download("skipped")
		return c.db.WithTx(ctx, func(tx *store.Tx) error {
			return tx.SetVideoSkip(iid, true)
		})
	}
	var sleep *extractor.SleepError
	if errors.As(err, &sleep) && c.cfg.AutoSleep {
		wake := time.Now().UTC().Add(sleep.Delay + AutoSleepBuffer)
		c.logger.Info().Str("iid", iid).Time("wake", wake).Str("reason", sleep.Reason).Msg("auto-sleeping")
		sum.Sleeping++
		metrics.Download("sleeping")
		return c.sleep.SleepUntil(ctx, iid, wake)
	}
	if errors.Is(err, extractor.ErrPaymentRequired) {
		metrics.Download("payment")
	}
	return err
}
