package sync

import (
	"context"
	"errors"
	"time"

	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/hooks"
	"github.com/cmlburnett/ydl/internal/metrics"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/store"
)

// infoFetcher fetches per-item metadata; satisfied by *extractor.Runner.
type infoFetcher interface {
	VideoInfo(ctx context.Context, iid string) (*extractor.Info, error)
}

// VideoSummary reports one item-sync batch.
type VideoSummary struct {
	Done            int
	Skipped         int
	Sleeping        int
	Errors          []string // iids that failed generically
	PaymentRequired []string // iids behind a paywall
}

// Videos enriches catalog rows with per-item metadata. Items flagged skip
// get an atime bump and no external request; sleeping items get nothing
// at all until their wake instant passes. A payment wall isolates the
// item into its own bucket; an interrupt aborts the rest of the batch;
// other failures are recorded and the batch continues.
func (o *Orchestrator) Videos(ctx context.Context, filt []string, ignoreOld bool) (*VideoSummary, error) {
	videos, err := o.db.SelectVideos(filt, ignoreOld, false)
	if err != nil {
		return nil, err
	}
	if err := o.sleep.Prune(ctx); err != nil {
		return nil, err
	}
	entries, err := o.db.SleepEntries()
	if err != nil {
		return nil, err
	}
	asleep := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		asleep[e.IID] = e.Wake
	}
	o.logger.Info().Int("count", len(videos)).Msg("item sync batch")

	sum := &VideoSummary{}
	for _, v := range videos {
		now := time.Now().UTC()
		if wake, ok := asleep[v.IID]; ok && wake.After(now) {
			o.logger.Info().Str("iid", v.IID).Time("wake", wake).Msg("sleeping until")
			sum.Sleeping++
			continue
		}
		if v.Skip {
			sum.Skipped++
			err := o.db.WithTx(ctx, func(tx *store.Tx) error {
				return tx.TouchVideo(v.IID, now)
			})
			if err != nil {
				return sum, err
			}
			continue
		}

		info, err := o.info.VideoInfo(ctx, v.IID)
		switch {
		case errors.Is(err, extractor.ErrInterrupted):
			return sum, err
		case errors.Is(err, extractor.ErrPaymentRequired):
			o.logger.Warn().Str("iid", v.IID).Msg("payment required")
			sum.PaymentRequired = append(sum.PaymentRequired, v.IID)
			continue
		case err != nil:
			o.logger.Error().Str("iid", v.IID).Err(err).Msg("item sync failed")
			sum.Errors = append(sum.Errors, v.IID)
			continue
		}

		err = o.db.WithTx(ctx, func(tx *store.Tx) error {
			return tx.UpdateVideoInfo(v.IID, store.VideoInfoUpdate{
				Duration:   int64(info.Duration),
				Title:      info.Title,
				Name:       naming.TitleToName(info.Title),
				Uploader:   info.Uploader,
				Thumbnails: info.ThumbnailURLs(),
				PTime:      info.PublishTime(),
				ATime:      now,
			})
		})
		if err != nil {
			return sum, err
		}
		if o.hooks != nil {
			o.hooks.Fire(ctx, hooks.VideoEvent{IID: v.IID, Title: info.Title})
		}
		metrics.ItemEnriched()
		sum.Done++
	}
	o.logger.Info().Int("done", sum.Done).Int("skipped", sum.Skipped).
		Int("sleeping", sum.Sleeping).Int("errors", len(sum.Errors)).
		Int("payment", len(sum.PaymentRequired)).Msg("item sync complete")
	return sum, nil
}
