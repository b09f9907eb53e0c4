package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts accepted image submissions.
	JobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vehicle_counter_jobs_submitted_total",
			Help: "Total number of accepted image submissions",
		},
	)

	// JobsFinished counts jobs reaching a terminal status.
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_counter_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	// DetectionDuration tracks how long the detector takes per image.
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vehicle_counter_detection_duration_seconds",
			Help:    "Duration of vehicle detection in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// VehiclesDetected observes the count reported per successful job.
	VehiclesDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vehicle_counter_vehicles_per_image",
			Help:    "Number of vehicles detected per image",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	// WorkersActive tracks the number of workers currently processing a task.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vehicle_counter_workers_active",
			Help: "Number of worker goroutines currently processing a task",
		},
	)

	// ObserversConnected tracks observers registered with the notification hub.
	ObserversConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vehicle_counter_observers_connected",
			Help: "Number of live observers registered for job events",
		},
	)

	// BroadcastDropped counts observers removed because an event could not be delivered.
	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vehicle_counter_broadcast_dropped_total",
			Help: "Total number of observers dropped on failed event delivery",
		},
	)

	// StaleJobsSwept counts processing jobs moved to error by the sweeper.
	StaleJobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vehicle_counter_stale_jobs_swept_total",
			Help: "Total number of stale processing jobs failed by the sweeper",
		},
	)
)
