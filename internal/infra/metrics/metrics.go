package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics 一次运行的指标, 注册在独立的 registry 上
type Metrics struct {
	Registry        *prometheus.Registry
	EntriesTotal    prometheus.Counter
	ScrapedTotal    prometheus.Counter
	FailuresTotal   *prometheus.CounterVec
	VisitDuration   prometheus.Histogram
	PublishDuration *prometheus.HistogramVec
	PublishErrors   *prometheus.CounterVec
	LastRunSuccess  prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	entries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_entries_total",
		Help: "Listing entries attempted.",
	})
	scraped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvest_entries_scraped_total",
		Help: "Listing entries that produced a record.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_entry_failures_total",
		Help: "Listing entries dropped, by reason.",
	}, []string{"reason"})
	visit := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_detail_visit_duration_seconds",
		Help:    "Time spent on one author detail page, pacing included.",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
	})
	publish := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_publish_duration_seconds",
		Help:    "Time spent publishing the result set, by sink.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
	publishErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_publish_errors_total",
		Help: "Failed publishes, by sink.",
	}, []string{"sink"})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_last_run_success",
		Help: "1 if the last run published, 0 if it aborted.",
	})

	registry.MustRegister(entries, scraped, failures, visit, publish, publishErrors, lastRun)

	return &Metrics{
		Registry:        registry,
		EntriesTotal:    entries,
		ScrapedTotal:    scraped,
		FailuresTotal:   failures,
		VisitDuration:   visit,
		PublishDuration: publish,
		PublishErrors:   publishErrors,
		LastRunSuccess:  lastRun,
	}
}

func (m *Metrics) IncEntry() {
	if m == nil {
		return
	}
	m.EntriesTotal.Inc()
}

func (m *Metrics) IncScraped() {
	if m == nil {
		return
	}
	m.ScrapedTotal.Inc()
}

func (m *Metrics) IncFailure(reason string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveVisit(d time.Duration) {
	if m == nil {
		return
	}
	m.VisitDuration.Observe(d.Seconds())
}

// ObservePublish 记录一次发布的耗时, err 非空时同时计入失败
func (m *Metrics) ObservePublish(sink string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PublishDuration.WithLabelValues(sink).Observe(d.Seconds())
	if err != nil {
		m.PublishErrors.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) SetRunResult(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// Push 把 registry 推送到 Pushgateway, url 为空时什么也不做
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("推送指标失败: %w", err)
	}
	return nil
}
