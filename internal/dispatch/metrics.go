package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_requests_total",
		Help: "Requests dispatched, labeled by channel and result code.",
	}, []string{"channel", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedd_request_duration_seconds",
		Help:    "End-to-end dispatch latency by channel.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"channel"})

	embedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedd_embed_duration_seconds",
		Help:    "Engine inference latency by model.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"model"})

	embedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedd_embed_errors_total",
		Help: "Engine inference failures by model.",
	}, []string{"model"})
)

func observeRequest(ch Channel, code string, d time.Duration) {
	requestsTotal.WithLabelValues(string(ch), code).Inc()
	requestDuration.WithLabelValues(string(ch)).Observe(d.Seconds())
}

func observeEmbed(model string, d time.Duration, err error) {
	embedDuration.WithLabelValues(model).Observe(d.Seconds())
	if err != nil {
		embedErrors.WithLabelValues(model).Inc()
	}
}
