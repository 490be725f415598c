// Package feed implements the lightweight freshness probe. Each channel and
// user source has a public page advertising an RSS URL; the feed there lists
// only the most recent uploads, so it can answer "anything new?" without a
// full enumeration.
package feed

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/httpclient"
	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/store"
)

// Verdict is the probe outcome for one source.
type Verdict int

const (
	// NoFeed means the source has no usable feed; callers fall back to a
	// full enumeration. Playlists always get this.
	NoFeed Verdict = iota
	// Fresh means every item in the feed is already a member of the source.
	Fresh
	// IndicatesNew means at least one feed item is unknown to the catalog.
	IndicatesNew
)

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case IndicatesNew:
		return "new"
	default:
		return "nofeed"
	}
}

// Result carries the probe verdict plus whatever the feed revealed.
type Result struct {
	Verdict  Verdict
	Title    string
	Uploader string
	IIDs     []string // ordered as listed by the feed
}

// Prober discovers, caches, and polls per-source feeds.
type Prober struct {
	db     *store.Store
	client *http.Client
	logger zerolog.Logger
}

func NewProber(db *store.Store) *Prober {
	return &Prober{
		db:     db,
		client: httpclient.Default(),
		logger: log.WithComponent("feed"),
	}
}

// WithClient overrides the HTTP client, for tests.
func (p *Prober) WithClient(c *http.Client) *Prober {
	p.client = c
	return p
}

// pageURL is the public page fetched to discover a source's feed URL.
func pageURL(k store.SourceKind, key string) string {
	switch k {
	case store.KindChannelNamed:
		return "https://www.youtube.com/c/" + key
	case store.KindChannelUnnamed:
		return "https://www.youtube.com/channel/" + key
	case store.KindUser:
		return "https://www.youtube.com/user/" + key
	default:
		return ""
	}
}

// Probe checks the source's feed and compares its items against the
// catalog's membership rows. The feed URL is discovered on first use and
// cached, including negative results, so each source's page is fetched at
// most once.
func (p *Prober) Probe(ctx context.Context, k store.SourceKind, key string) (*Result, error) {
	if k == store.KindPlaylist {
		return &Result{Verdict: NoFeed}, nil
	}

	url, err := p.feedURL(ctx, k, key)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return &Result{Verdict: NoFeed}, nil
	}

	body, err := httpclient.Fetch(ctx, p.client, url, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// A dead feed, whatever the failure mode, must not block the
		// source: the caller falls back to the full enumeration.
		p.logger.Warn().Str("key", key).Err(err).Msg("feed fetch failed")
		return &Result{Verdict: NoFeed}, nil
	}

	res, err := parseFeed(body)
	if err != nil {
		p.logger.Warn().Str("key", key).Err(err).Msg("feed parse failed")
		return &Result{Verdict: NoFeed}, nil
	}

	if err := p.db.TouchFeedURL(k, key, time.Now().UTC()); err != nil {
		return nil, err
	}

	res.Verdict = Fresh
	for _, iid := range res.IIDs {
		known, err := p.db.HasMembership(key, iid)
		if err != nil {
			return nil, err
		}
		if !known {
			p.logger.Debug().Str("key", key).Str("iid", iid).Msg("feed shows unknown item")
			res.Verdict = IndicatesNew
			break
		}
	}
	return res, nil
}

// feedURL returns the cached feed URL, running page discovery on a cache
// miss. Empty string means the source is known to have no feed.
func (p *Prober) feedURL(ctx context.Context, k store.SourceKind, key string) (string, error) {
	cached, err := p.db.FeedURLFor(k, key)
	if err == nil {
		return cached.URL, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	page := pageURL(k, key)
	if page == "" {
		return "", nil
	}
	discovered := ""
	body, err := httpclient.Fetch(ctx, p.client, page, nil)
	switch {
	case err == nil:
		discovered = discoverFeedLink(body)
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		var se *httpclient.StatusError
		if !errors.As(err, &se) {
			// Transport fault: treat as no feed for this pass, but do
			// not cache the miss so the next pass retries discovery.
			p.logger.Warn().Str("key", key).Err(err).Msg("feed discovery failed")
			return "", nil
		}
		// Non-200 page: remember that no feed exists.
	}

	p.logger.Debug().Str("key", key).Str("url", discovered).Msg("feed discovery")
	return discovered, p.db.SaveFeedURL(k, key, discovered, time.Now().UTC())
}
