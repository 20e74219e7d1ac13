package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HistogramBuckets are millisecond buckets shared by request and job latency histograms.
var HistogramBuckets = []float64{
	// --- Fast (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Batch jobs and gateway timeouts ---
	30000, 60000, 120000, 300000, 600000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	}
	m.MetricCollector = metric
	return metric
}

const Subsystem = "billing"

var jobRuns = &Metric{
	ID:          "jobRuns",
	Name:        "job_runs_total",
	Description: "Scheduler job executions, partitioned by job and result.",
	Type:        "counter_vec",
	Args:        []string{"job", "result"},
}

var jobItems = &Metric{
	ID:          "jobItems",
	Name:        "job_items_total",
	Description: "Items visited by scheduler jobs, partitioned by job and outcome (processed, skipped, failed).",
	Type:        "counter_vec",
	Args:        []string{"job", "outcome"},
}

var jobDur = &Metric{
	ID:          "jobDur",
	Name:        "job_dur_ms",
	Description: "Scheduler job latency in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"job"},
}

var notifications = &Metric{
	ID:          "notifications",
	Name:        "notifications_total",
	Description: "Outbound messages, partitioned by kind and delivery result.",
	Type:        "counter_vec",
	Args:        []string{"kind", "result"},
}

var callbacks = &Metric{
	ID:          "callbacks",
	Name:        "payment_callbacks_total",
	Description: "Payment provider callbacks, partitioned by provider and outcome.",
	Type:        "counter_vec",
	Args:        []string{"provider", "outcome"},
}

var disconnects = &Metric{
	ID:          "disconnects",
	Name:        "coa_disconnects_total",
	Description: "RADIUS Disconnect-Request attempts, partitioned by result.",
	Type:        "counter_vec",
	Args:        []string{"result"},
}

// BillingMetrics lists the domain collectors. They are built eagerly so callers can
// record before Register runs (and in tests, where nothing is registered).
var BillingMetrics = []*Metric{jobRuns, jobItems, jobDur, notifications, callbacks, disconnects}

var (
	JobRuns       = NewMetric(jobRuns, Subsystem).(*prometheus.CounterVec)
	JobItems      = NewMetric(jobItems, Subsystem).(*prometheus.CounterVec)
	JobDuration   = NewMetric(jobDur, Subsystem).(*prometheus.HistogramVec)
	Notifications = NewMetric(notifications, Subsystem).(*prometheus.CounterVec)
	Callbacks     = NewMetric(callbacks, Subsystem).(*prometheus.CounterVec)
	Disconnects   = NewMetric(disconnects, Subsystem).(*prometheus.CounterVec)
)

// Register adds the billing collectors to the default registry. Already-registered
// collectors are tolerated so both binaries and tests may call it more than once.
func Register(log *zap.SugaredLogger) {
	for _, m := range BillingMetrics {
		if err := prometheus.Register(m.MetricCollector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			log.Errorw("metric_register_failed", "name", m.Name, "err", err)
		}
	}
}

func ResultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

const (
	RefererKey = "X-Referer"
)
