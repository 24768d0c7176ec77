package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan progress metrics
	FilesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logquery_files_processed_total",
			Help: "Files driven to a terminal state, labelled by outcome",
		},
		[]string{"outcome"},
	)
	RecordsScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logquery_records_scanned_total",
			Help: "Raw records produced by the record splitter",
		},
	)
	RecordsMatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logquery_records_matched_total",
			Help: "Records that satisfied the compiled query",
		},
	)
	RecordsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logquery_records_skipped_total",
			Help: "Records dropped before evaluation, labelled by reason",
		},
		[]string{"reason"},
	)
	BytesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logquery_bytes_read_total",
			Help: "Decompressed bytes consumed from all sources",
		},
	)

	// Worker pool metrics
	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logquery_workers_busy",
			Help: "Workers currently processing a file task",
		},
	)
	FilesEnumerated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logquery_files_enumerated",
			Help: "Size of the file snapshot taken at run start",
		},
	)
)
