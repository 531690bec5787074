// Package metrics defines the Prometheus collectors exported by commentbot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commentbot"

// Pipeline outcome label values.
const (
	OutcomeCreated     = "created"
	OutcomeDuplicate   = "duplicate"
	OutcomeRateLimited = "rate_limited"
	OutcomeStorage     = "storage_error"
	OutcomeInvalid     = "invalid"
	OutcomeCanceled    = "canceled"
	OutcomeError       = "error"
)

// Dispatch result label values.
const (
	DispatchDelivered = "delivered"
	DispatchFailed    = "failed"
	DispatchSkipped   = "skipped"
)

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Pipeline holds the comment-processing collectors. A nil *Pipeline is valid
// and records nothing.
type Pipeline struct {
	Processed  *prometheus.CounterVec
	Sentiments *prometheus.CounterVec
	Dispatches *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// NewPipeline registers the pipeline collectors on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)

	return &Pipeline{
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_processed_total",
			Help:      "Comments passed through the processing pipeline, by outcome.",
		}, []string{"outcome"}),
		Sentiments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_sentiment_total",
			Help:      "Newly persisted comments, by sentiment label.",
		}, []string{"label"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_dispatches_total",
			Help:      "Reply delivery attempts, by result.",
		}, []string{"result"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent in a single Process call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveOutcome counts one Process call.
func (p *Pipeline) ObserveOutcome(outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.Processed.WithLabelValues(outcome).Inc()
	p.Duration.Observe(elapsed.Seconds())
}

// ObserveSentiment counts a newly persisted comment's label.
func (p *Pipeline) ObserveSentiment(label string) {
	if p == nil {
		return
	}
	p.Sentiments.WithLabelValues(label).Inc()
}

// ObserveDispatch counts one reply delivery attempt.
func (p *Pipeline) ObserveDispatch(result string) {
	if p == nil {
		return
	}
	p.Dispatches.WithLabelValues(result).Inc()
}
