// Package metrics exposes rule-execution and field-fetch metrics to
// Prometheus by subscribing to the eventbus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ankitjan/rules-engine/internal/eventbus"
	"github.com/ankitjan/rules-engine/internal/events"
)

// Collector registers the engine's metrics on a Prometheus registerer and
// feeds them from eventbus subscriptions.
type Collector struct {
	execTotal    *prometheus.CounterVec
	execDuration *prometheus.HistogramVec
	fetchTotal   *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec

	unsubscribe []func()
}

// Register creates the collector, registers its metrics, and subscribes it
// to the process-wide eventbus.
func Register(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		execTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rules", Name: "executions_total",
			Help: "Rule executions by rule and result.",
		}, []string{"rule", "result"}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rules", Name: "execution_duration_seconds",
			Help:    "Rule execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"rule"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rules", Name: "field_fetches_total",
			Help: "Data-service fetches by field and result.",
		}, []string{"field", "result"}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rules", Name: "field_fetch_duration_seconds",
			Help:    "Data-service fetch duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"field"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rules", Name: "field_cache_hits_total",
			Help: "Field values served from the execution cache.",
		}, []string{"field"}),
	}
	for _, m := range []prometheus.Collector{
		c.execTotal, c.execDuration, c.fetchTotal, c.fetchSeconds, c.cacheHits,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	c.subscribe()
	return c, nil
}

func (c *Collector) subscribe() {
	c.unsubscribe = append(c.unsubscribe,
		eventbus.Subscribe(func(_ context.Context, e events.ExecFinish) {
			result := "success"
			if e.ErrorKind != "" {
				result = "error"
			} else if !e.Outcome {
				result = "false"
			}
			c.execTotal.WithLabelValues(e.RuleID, result).Inc()
			c.execDuration.WithLabelValues(e.RuleID).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.FetchFinish) {
			result := "success"
			if e.Err != nil {
				result = "error"
			}
			c.fetchTotal.WithLabelValues(e.Field, result).Inc()
			c.fetchSeconds.WithLabelValues(e.Field).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.CacheHit) {
			c.cacheHits.WithLabelValues(e.Field).Inc()
		}),
	)
}

// Close detaches the collector from the eventbus.
func (c *Collector) Close() {
	for _, u := range c.unsubscribe {
		u()
	}
	c.unsubscribe = nil
}
