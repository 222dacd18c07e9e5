// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus instruments for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts scheduled-search runs by outcome.
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racecarr_searches_total",
		Help: "Scheduled search runs by outcome.",
	}, []string{"outcome"})

	// GrabsTotal counts auto-grab sends by result.
	GrabsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racecarr_grabs_total",
		Help: "Auto-grab downloader sends by result.",
	}, []string{"result"})

	// IndexerRequestsTotal counts indexer API calls by indexer and outcome.
	IndexerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racecarr_indexer_requests_total",
		Help: "Newznab API calls by indexer and outcome.",
	}, []string{"indexer", "outcome"})

	// NotificationsTotal counts notification deliveries by kind and outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racecarr_notifications_total",
		Help: "Notification deliveries by kind and outcome.",
	}, []string{"kind", "outcome"})

	// DownloaderSendsTotal counts downloader dispatches by kind and outcome.
	DownloaderSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racecarr_downloader_sends_total",
		Help: "Downloader dispatches by kind and outcome.",
	}, []string{"kind", "outcome"})

	// SchedulerDueEntries observes how many entries each tick found due.
	SchedulerDueEntries = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "racecarr_scheduler_due_entries",
		Help:    "Due scheduled-search entries per tick.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	// SearchDuration observes one full fan-out run.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "racecarr_search_duration_seconds",
		Help:    "Duration of one scheduled search fan-out.",
		Buckets: prometheus.DefBuckets,
	})
)
