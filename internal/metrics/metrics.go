// Package metrics exposes operational counters for sync and download runs.
// Serving is optional; when no listen address is configured the collectors
// still update but nothing is exported.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmlburnett/ydl/internal/log"
)

var (
	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ydl_sync_duration_seconds",
		Help:    "Duration of one full list-sync pass in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2.0, 12), // 1s .. ~68m
	})

	sourcesSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ydl_sources_synced_total",
		Help: "Sources processed by list sync, by outcome",
	}, []string{"outcome"}) // done, fresh, error

	feedProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ydl_feed_probes_total",
		Help: "Feed probe results by verdict",
	}, []string{"verdict"})

	itemsEnriched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ydl_items_enriched_total",
		Help: "Items whose metadata was fetched and stored",
	})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ydl_downloads_total",
		Help: "Download attempts by outcome",
	}, []string{"outcome"}) // done, skipped, sleeping, error, payment

	archivedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ydl_archived_items",
		Help: "Items with media on disk after the last download pass",
	})
)

func ObserveSyncPass(d time.Duration) { syncDuration.Observe(d.Seconds()) }

func SourceSynced(outcome string) { sourcesSynced.WithLabelValues(outcome).Inc() }

func FeedProbe(verdict string) { feedProbes.WithLabelValues(verdict).Inc() }

func ItemEnriched() { itemsEnriched.Inc() }

func Download(outcome string) { downloadsTotal.WithLabelValues(outcome).Inc() }

func SetArchivedItems(n int) { archivedItems.Set(float64(n)) }

// Serve exposes /metrics on addr in the background. Errors are logged, not
// fatal; metrics export must never take down an archive run.
func Serve(addr string) {
	if addr == "" {
		return
	}
	logger := log.WithComponent("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()
}
