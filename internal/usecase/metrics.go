package usecase

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/scenecheck/internal/apperrors"
)

var (
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheck_validations_total",
			Help: "Validation requests by outcome.",
		},
		[]string{"outcome"},
	)

	validationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenecheck_validation_duration_seconds",
			Help:    "End-to-end duration of the validation pipeline.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	historyCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheck_history_cache_lookups_total",
			Help: "History cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(validationsTotal, validationDuration, historyCacheLookups)
}

func observeValidation(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
	}
	validationsTotal.WithLabelValues(outcome).Inc()
	validationDuration.Observe(time.Since(start).Seconds())
}
