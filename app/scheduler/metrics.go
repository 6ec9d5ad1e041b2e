package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ticks partitioned by outcome: success, failure or skipped
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_sync_ticks_total",
			Help: "Total number of scheduler ticks by result",
		},
		[]string{"result"},
	)

	// Failed ticks partitioned by the stage that aborted them
	tickFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_sync_tick_failures_total",
			Help: "Total number of failed ticks by stage",
		},
		[]string{"stage"},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tariff_sync_tick_duration_seconds",
			Help:    "Duration of completed scheduler ticks",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// Per-target publish outcomes; kind is google or xlsx to keep cardinality low
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_sync_publish_total",
			Help: "Total number of target publishes by kind and result",
		},
		[]string{"kind", "result"},
	)

	snapshotRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tariff_sync_snapshot_rows",
			Help: "Number of warehouse rows in the last published snapshot",
		},
	)

	lastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tariff_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last fully successful tick",
		},
	)

	tickRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tariff_sync_tick_running",
			Help: "1 while a tick is in progress",
		},
	)
)
