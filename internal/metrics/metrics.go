// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesApplied counts normalized batches merged into the book, per venue.
	BatchesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggbook",
		Name:      "batches_applied_total",
		Help:      "Normalized venue batches applied to the consolidated book.",
	}, []string{"venue"})

	// UpdatesRejected counts dropped updates by rejection reason.
	UpdatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggbook",
		Name:      "updates_rejected_total",
		Help:      "Malformed updates rejected at the ingest boundary.",
	}, []string{"reason"})

	// BookLevels tracks the number of live price levels per side.
	BookLevels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aggbook",
		Name:      "book_levels",
		Help:      "Live price levels in the consolidated book.",
	}, []string{"side"})

	// Subscribers tracks currently registered fanout sessions.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aggbook",
		Name:      "ws_subscribers",
		Help:      "Registered streaming subscriber sessions.",
	})

	// BroadcastFrames counts frames enqueued across all sessions.
	BroadcastFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aggbook",
		Name:      "broadcast_frames_total",
		Help:      "Frames enqueued to subscriber sessions.",
	})

	// SlowConsumerDisconnects counts sessions finished on queue overflow.
	SlowConsumerDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aggbook",
		Name:      "slow_consumer_disconnects_total",
		Help:      "Sessions finished because their outbound queue overflowed.",
	})
)
