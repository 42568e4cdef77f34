package services

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes recorded in contact_submissions_total.
const (
	outcomeAccepted    = "accepted"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
)

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Contact submissions by pipeline outcome.",
		},
		[]string{"outcome"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_deliveries_total",
			Help: "Delivery attempts by backend and result.",
		},
		[]string{"backend", "result"},
	)

	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contact_delivery_duration_seconds",
			Help:    "Duration of delivery attempts in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"backend"},
	)

	limiterErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contact_rate_limiter_errors_total",
			Help: "Rate limiter failures; the submission was admitted without a check.",
		},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal, deliveriesTotal, deliveryDuration, limiterErrors)
}
