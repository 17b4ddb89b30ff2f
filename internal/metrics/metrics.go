// Package metrics provides ambient observability for the pipeline's
// cycles, queue, and LLM calls via prometheus/client_golang. Every
// recording method is a no-op when collection is disabled, so call
// sites never branch on configuration.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether metrics are collected and served. When Enabled
// is true and Addr is non-empty, New starts an HTTP server exposing
// /metrics on Addr; with Addr empty no server is started and a caller can
// mount Registry() itself.
type Config struct {
	Enabled bool
	Addr    string
}

// Collector records pipeline-wide Prometheus metrics.
type Collector struct {
	enabled bool
	reg     *prometheus.Registry
	server  *http.Server

	cycleDuration  *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	batchSize      *prometheus.HistogramVec
	llmLatency     *prometheus.HistogramVec
	llmErrors      *prometheus.CounterVec
	itemsProcessed *prometheus.CounterVec
}

// New creates a Collector. When cfg.Enabled is false, every recording
// method is a no-op so call sites never need to branch on it.
func New(cfg Config) (*Collector, error) {
	c := &Collector{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return c, nil
	}

	c.reg = prometheus.NewRegistry()
	c.cycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hnzh_cycle_duration_seconds",
		Help:    "Duration of a scheduler cycle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scheduler"})
	c.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hnzh_queue_depth",
		Help: "Current pending/in-flight job counts.",
	}, []string{"state"})
	c.batchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hnzh_translation_batch_size",
		Help:    "Size of translation batches submitted to the LLM client.",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	}, []string{"kind"})
	c.llmLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hnzh_llm_request_duration_seconds",
		Help:    "Duration of LLM chat-completion calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "outcome"})
	c.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hnzh_llm_errors_total",
		Help: "Count of LLM calls that failed after retries.",
	}, []string{"provider"})
	c.itemsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hnzh_items_processed_total",
		Help: "Count of items reaching a terminal state per cycle.",
	}, []string{"outcome"})

	c.reg.MustRegister(c.cycleDuration, c.queueDepth, c.batchSize, c.llmLatency, c.llmErrors, c.itemsProcessed)

	if cfg.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}))
		c.server = &http.Server{Addr: cfg.Addr, Handler: mux}
		go func() {
			_ = c.server.ListenAndServe()
		}()
	}

	return c, nil
}

// Registry exposes the underlying registry so a caller embedding this
// module in a larger service can mount /metrics itself.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

func (c *Collector) RecordCycle(scheduler string, d time.Duration) {
	if !c.enabled {
		return
	}
	c.cycleDuration.WithLabelValues(scheduler).Observe(d.Seconds())
}

func (c *Collector) SetQueueDepth(state string, n int) {
	if !c.enabled {
		return
	}
	c.queueDepth.WithLabelValues(state).Set(float64(n))
}

func (c *Collector) RecordBatchSize(kind string, n int) {
	if !c.enabled {
		return
	}
	c.batchSize.WithLabelValues(kind).Observe(float64(n))
}

func (c *Collector) RecordLLMRequest(provider, outcome string, d time.Duration) {
	if !c.enabled {
		return
	}
	c.llmLatency.WithLabelValues(provider, outcome).Observe(d.Seconds())
	if outcome != "success" {
		c.llmErrors.WithLabelValues(provider).Inc()
	}
}

func (c *Collector) RecordItemProcessed(outcome string) {
	if !c.enabled {
		return
	}
	c.itemsProcessed.WithLabelValues(outcome).Inc()
}

// Shutdown stops the metrics HTTP server, if one was started.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	if err := c.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
