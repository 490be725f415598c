// Package hooks is the plugin-hook dispatcher: a persisted, ordered
// registry of module identifiers plus named hook points the engine
// fires as sources and items move through their lifecycle. Dispatch is
// best-effort; a failing hook is logged and never alters the outcome
// of the operation that fired it.
package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/store"
)

// Point names a place in the engine where hooks fire.
type Point string

const (
	SourceRegistered Point = "source-registered"
	ListSynced       Point = "list-synced"
	VideoSynced      Point = "video-synced"
	VideoDownloaded  Point = "video-downloaded"
)

// Event is the payload handed to a hook. Each Point has one concrete
// payload type.
type Event interface {
	Point() Point
}

// SourceEvent fires on SourceRegistered.
type SourceEvent struct {
	Kind store.SourceKind
	Key  string
}

func (SourceEvent) Point() Point { return SourceRegistered }

// ListEvent fires on ListSynced, once per enumerated source.
type ListEvent struct {
	Kind  store.SourceKind
	Key   string
	Total int // live membership rows after reconciliation
}

func (ListEvent) Point() Point { return ListSynced }

// VideoEvent fires on VideoSynced, after metadata enrichment.
type VideoEvent struct {
	IID   string
	Title string
}

func (VideoEvent) Point() Point { return VideoSynced }

// DownloadEvent fires on VideoDownloaded, after the media file and its
// side files are on disk and the catalog row is stamped.
type DownloadEvent struct {
	IID  string
	Path string
	At   time.Time
}

func (DownloadEvent) Point() Point { return VideoDownloaded }

// Handler reacts to one event. Returning an error only makes noise in
// the log; it never propagates.
type Handler func(ctx context.Context, e Event) error

// Dispatcher pairs the persisted registry with the handlers the host
// process actually loaded. Registered names without a bound handler
// are tolerated: the registry outlives any one build of the host.
type Dispatcher struct {
	db     *store.Store
	bound  map[string]Handler
	logger zerolog.Logger
}

func NewDispatcher(db *store.Store) *Dispatcher {
	return &Dispatcher{
		db:     db,
		bound:  make(map[string]Handler),
		logger: log.WithComponent("hooks"),
	}
}

// Register persists a module identifier at the end of the registry.
func (d *Dispatcher) Register(ctx context.Context, name string) error {
	return d.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.AddHook(name)
	})
}

// Unregister removes a module identifier from the registry.
func (d *Dispatcher) Unregister(ctx context.Context, name string) error {
	return d.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.RemoveHook(name)
	})
}

// Names lists the registered module identifiers in order.
func (d *Dispatcher) Names() ([]string, error) {
	return d.db.Hooks()
}

// Bind attaches an in-process handler to a registered module name.
func (d *Dispatcher) Bind(name string, h Handler) {
	d.bound[name] = h
}

// Fire invokes every registered, bound handler in registry order.
// Errors are logged and swallowed.
func (d *Dispatcher) Fire(ctx context.Context, e Event) {
	names, err := d.db.Hooks()
	if err != nil {
		d.logger.Warn().Err(err).Msg("hook registry unreadable")
		return
	}
	for _, name := range names {
		h, ok := d.bound[name]
		if !ok {
			continue
		}
		if err := h(ctx, e); err != nil {
			d.logger.Warn().Err(err).Str("hook", name).Str("point", string(e.Point())).Msg("hook failed")
		}
	}
}
