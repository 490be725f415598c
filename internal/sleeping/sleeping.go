// Package sleeping manages time-bounded suppression of items. A sleeping
// item is excluded from metadata fetches and downloads until its wake
// instant passes; stale entries are pruned opportunistically whenever the
// registry is consulted.
package sleeping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/store"
)

// ErrBadSpec rejects a wake-time argument that is neither an absolute
// instant nor a relative offset.
var ErrBadSpec = errors.New("bad sleep spec")

// absoluteFormat is the operator-facing wake-time form, read as UTC.
const absoluteFormat = "2006-01-02 15:04:05"

// Registry wraps the catalog's sleep table with parsing and pruning.
type Registry struct {
	db     *store.Store
	logger zerolog.Logger
}

func NewRegistry(db *store.Store) *Registry {
	return &Registry{db: db, logger: log.WithComponent("sleep")}
}

// ParseWake converts a wake-time argument into an instant. Accepted forms:
// absolute "YYYY-MM-DD HH:MM:SS" (UTC), or relative "<unit>+N" with unit
// one of d, h, m, s, computed against now.
func ParseWake(spec string, now time.Time) (time.Time, error) {
	spec = strings.TrimSpace(spec)
	if t, err := time.ParseInLocation(absoluteFormat, spec, time.UTC); err == nil {
		return t, nil
	}
	unit, count, ok := strings.Cut(spec, "+")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadSpec, spec)
	}
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadSpec, spec)
	}
	var d time.Duration
	switch unit {
	case "d":
		d = time.Duration(n) * 24 * time.Hour
	case "h":
		d = time.Duration(n) * time.Hour
	case "m":
		d = time.Duration(n) * time.Minute
	case "s":
		d = time.Duration(n) * time.Second
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadSpec, spec)
	}
	return now.Add(d).UTC(), nil
}

// Sleep parses spec and records the wake instant for iid.
func (r *Registry) Sleep(ctx context.Context, iid, spec string) (time.Time, error) {
	wake, err := ParseWake(spec, time.Now().UTC())
	if err != nil {
		return time.Time{}, err
	}
	err = r.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetSleep(iid, wake)
	})
	if err != nil {
		return time.Time{}, err
	}
	r.logger.Info().Str("iid", iid).Time("wake", wake).Msg("sleeping")
	return wake, nil
}

// SleepUntil records an already-computed wake instant, as the download
// coordinator does for premieres.
func (r *Registry) SleepUntil(ctx context.Context, iid string, wake time.Time) error {
	return r.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetSleep(iid, wake.UTC())
	})
}

// Wake removes iid's sleep entry if present.
func (r *Registry) Wake(ctx context.Context, iid string) error {
	return r.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteSleep(iid)
	})
}

// Prune deletes every entry whose wake instant has passed.
func (r *Registry) Prune(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.PruneSleeps(time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			r.logger.Debug().Int64("pruned", n).Msg("expired sleep entries removed")
		}
		return nil
	})
}

// Asleep prunes stale entries and then reports whether iid is still
// suppressed, returning the wake instant when it is.
func (r *Registry) Asleep(ctx context.Context, iid string) (*time.Time, error) {
	if err := r.Prune(ctx); err != nil {
		return nil, err
	}
	wake, err := r.db.SleepUntil(iid)
	if err != nil {
		return nil, err
	}
	if wake == nil || !wake.After(time.Now().UTC()) {
		return nil, nil
	}
	return wake, nil
}

// List returns all entries ordered by wake instant ascending.
func (r *Registry) List(ctx context.Context) ([]store.SleepEntry, error) {
	if err := r.Prune(ctx); err != nil {
		return nil, err
	}
	return r.db.SleepEntries()
}
