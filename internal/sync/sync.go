// Package sync drives discovery: it walks the registered sources in a fixed
// variant order, asks the feed probe whether anything changed, and runs the
// full enumeration plus catalog reconciliation when it did.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/feed"
	"github.com/cmlburnett/ydl/internal/hooks"
	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/metrics"
	"github.com/cmlburnett/ydl/internal/sleeping"
	"github.com/cmlburnett/ydl/internal/store"
)

// lister enumerates a source URL; satisfied by *extractor.Runner.
type lister interface {
	FlatList(ctx context.Context, url string) (*extractor.Listing, error)
}

// prober answers the freshness question; satisfied by *feed.Prober.
type prober interface {
	Probe(ctx context.Context, k store.SourceKind, key string) (*feed.Result, error)
}

// Orchestrator composes the feed probe and the enumerator over the catalog.
type Orchestrator struct {
	db     *store.Store
	probe  prober
	list   lister
	info   infoFetcher
	sleep  *sleeping.Registry
	hooks  *hooks.Dispatcher
	logger zerolog.Logger
}

// SetHooks attaches a plugin dispatcher; nil disables dispatch.
func (o *Orchestrator) SetHooks(d *hooks.Dispatcher) { o.hooks = d }

func NewOrchestrator(db *store.Store, p *feed.Prober, r *extractor.Runner) *Orchestrator {
	return &Orchestrator{
		db:     db,
		probe:  p,
		list:   r,
		info:   r,
		sleep:  sleeping.NewRegistry(db),
		logger: log.WithComponent("sync"),
	}
}

// Options controls one list-sync pass.
type Options struct {
	Filter    []string      // restrict to these source keys; empty = all
	IgnoreOld bool          // only sources never synced (atime null)
	Force     bool          // enumerate even when the feed says fresh
	NoFeed    bool          // skip the feed probe entirely
	Delay     time.Duration // pause between sources
}

// Summary reports one pass.
type Summary struct {
	Done   int
	Fresh  int
	Errors int
	Failed []string // effective keys that errored
}

// listURL is the canonical enumeration URL per variant. Enumeration always
// uses the real key; aliases only affect directories.
func listURL(k store.SourceKind, key string) string {
	switch k {
	case store.KindUser:
		return "https://www.youtube.com/user/" + key + "/videos"
	case store.KindChannelUnnamed:
		return "https://www.youtube.com/channel/" + key + "/videos"
	case store.KindChannelNamed:
		return "https://www.youtube.com/c/" + key + "/videos"
	default:
		return "https://www.youtube.com/playlist?list=" + key
	}
}

// Lists runs one pass over every variant in the mandatory order: users,
// unnamed channels, named channels, playlists last (no feed path). The
// order matters when an item appears under multiple sources — the first
// writer wins its dname.
func (o *Orchestrator) Lists(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}

	var limiter *rate.Limiter
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	for _, kind := range store.SyncOrder {
		sources, err := o.db.SelectSources(kind, opts.Filter, opts.IgnoreOld)
		if err != nil {
			return sum, err
		}
		for _, src := range sources {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return sum, err
				}
			}
			outcome, err := o.syncSource(ctx, kind, src, opts)
			switch {
			case errors.Is(err, extractor.ErrInterrupted) || errors.Is(err, context.Canceled):
				return sum, err
			case err != nil:
				o.logger.Error().Str("key", src.EffectiveKey()).Err(err).Msg("source sync failed")
				sum.Errors++
				sum.Failed = append(sum.Failed, src.EffectiveKey())
				metrics.SourceSynced("error")
			case outcome == outcomeFresh:
				sum.Fresh++
				metrics.SourceSynced("fresh")
			default:
				sum.Done++
				metrics.SourceSynced("done")
			}
		}
	}
	metrics.ObserveSyncPass(time.Since(start))
	o.logger.Info().Int("done", sum.Done).Int("fresh", sum.Fresh).Int("errors", sum.Errors).Msg("list sync pass complete")
	return sum, nil
}

// Loop runs passes until ctx is canceled, sleeping interval between them.
func (o *Orchestrator) Loop(ctx context.Context, opts Options, interval time.Duration) error {
	for {
		if _, err := o.Lists(ctx, opts); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, extractor.ErrInterrupted) {
				return nil
			}
			return err
		}
		o.logger.Info().Dur("interval", interval).Msg("sleeping until next pass")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeFresh
)

func (o *Orchestrator) syncSource(ctx context.Context, kind store.SourceKind, src *store.Source, opts Options) (outcome, error) {
	key := src.EffectiveKey()
	o.logger.Info().Str("kind", string(kind)).Str("key", key).Msg("syncing source")

	if kind == store.KindPlaylist && src.Skip {
		o.logger.Debug().Str("key", key).Msg("playlist marked skip")
		return outcomeFresh, nil
	}

	// The probe only pays off for sources synced at least once before; a
	// brand-new source needs the full listing anyway.
	var feedIIDs []string
	if !opts.NoFeed && src.ATime != nil {
		res, err := o.probe.Probe(ctx, kind, key)
		if err != nil {
			return 0, err
		}
		metrics.FeedProbe(res.Verdict.String())
		if res.Verdict == feed.Fresh && !opts.Force {
			o.logger.Debug().Str("key", key).Msg("feed fresh, skipping enumeration")
			return outcomeFresh, nil
		}
		if res.Verdict != feed.NoFeed {
			feedIIDs = res.IIDs
		}
	}

	listing, err := o.list.FlatList(ctx, listURL(kind, src.Key))
	if err != nil {
		return 0, fmt.Errorf("enumerate %s/%s: %w", kind, key, err)
	}

	now := time.Now().UTC()
	err = o.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := reconcile(tx, key, listing, feedIIDs, opts.Force, now); err != nil {
			return err
		}
		title, uploader := listing.Title, listing.Uploader
		if title == "" {
			title = src.Title
		}
		if uploader == "" {
			uploader = src.Uploader
		}
		return tx.MarkSourceSynced(kind, src.RowID, title, uploader, now)
	})
	if err != nil {
		return 0, err
	}
	if o.hooks != nil {
		o.hooks.Fire(ctx, hooks.ListEvent{Kind: kind, Key: key, Total: len(listing.Entries)})
	}
	return outcomeSynced, nil
}
