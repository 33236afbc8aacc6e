package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

// Metrics are the engine's prometheus collectors.
type Metrics struct {
	Ticks                prometheus.Counter
	TickDuration         prometheus.Histogram
	AlertsEvaluated      prometheus.Counter
	AlertsTriggered      *prometheus.CounterVec
	FeedFailures         prometheus.Counter
	FeedMisses           prometheus.Counter
	StoreErrors          prometheus.Counter
	NotificationFailures prometheus.Counter
	AlertsExpired        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coinpaprika",
			Subsystem: "price_alerts",
			Name:      name,
			Help:      help,
		})
	}

	metrics := &Metrics{
		Ticks:           counter("ticks_total", "The total number of completed alert checks"),
		AlertsEvaluated: counter("alerts_evaluated_total", "The total number of alert evaluations"),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coinpaprika",
			Subsystem: "price_alerts",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a full alert check",
			Buckets:   prometheus.DefBuckets,
		}),
		AlertsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coinpaprika",
				Subsystem: "price_alerts",
				Name:      "alerts_triggered_total",
				Help:      "The total number of triggered alerts",
			},
			[]string{"alert_type"},
		),
		FeedFailures:         counter("feed_failures_total", "Checks skipped because the price feed was unavailable"),
		FeedMisses:           counter("feed_misses_total", "Alerts skipped because their symbol had no price"),
		StoreErrors:          counter("store_errors_total", "Failed alert store reads and writes"),
		NotificationFailures: counter("notification_failures_total", "Failed notification deliveries"),
		AlertsExpired:        counter("alerts_expired_total", "Alerts removed by the expiry sweep"),
	}

	reg.MustRegister(
		metrics.Ticks,
		metrics.TickDuration,
		metrics.AlertsEvaluated,
		metrics.AlertsTriggered,
		metrics.FeedFailures,
		metrics.FeedMisses,
		metrics.StoreErrors,
		metrics.NotificationFailures,
		metrics.AlertsExpired,
	)
	return metrics
}

// CounterStore persists counter values across restarts.
type CounterStore interface {
	GetMetric(metricName string) (float64, error)
	SaveMetric(metricName string, value float64) error
	GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error)
	SaveMetricWithLabels(metricName, labelKey, labelValue string, value float64) error
}

func (m *Metrics) plainCounters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"ticks_total":                 m.Ticks,
		"alerts_evaluated_total":      m.AlertsEvaluated,
		"feed_failures_total":         m.FeedFailures,
		"feed_misses_total":           m.FeedMisses,
		"store_errors_total":          m.StoreErrors,
		"notification_failures_total": m.NotificationFailures,
		"alerts_expired_total":        m.AlertsExpired,
	}
}

// Restore adds persisted counter values to the live counters.
func (m *Metrics) Restore(s CounterStore) {
	for name, c := range m.plainCounters() {
		value, err := s.GetMetric(name)
		if err != nil {
			log.Warnf("Failed to load metric %s: %v", name, err)
			continue
		}
		c.Add(value)
	}

	labelled, err := s.GetMetricsWithLabels("alerts_triggered_total")
	if err != nil {
		log.Warnf("Failed to load metric alerts_triggered_total: %v", err)
		return
	}
	for alertType, value := range labelled["alert_type"] {
		m.AlertsTriggered.WithLabelValues(alertType).Add(value)
	}
	log.Debug("Metrics loaded from database.")
}

// Persist writes the current counter values.
func (m *Metrics) Persist(s CounterStore) error {
	for name, c := range m.plainCounters() {
		if err := s.SaveMetric(name, GetMetricValue(c)); err != nil {
			return err
		}
	}

	metricChan := make(chan prometheus.Metric, 16)
	go func() {
		m.AlertsTriggered.Collect(metricChan)
		close(metricChan)
	}()

	var firstErr error
	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Warnf("Failed to read alerts_triggered_total: %v", err)
			continue
		}
		var alertType string
		for _, label := range metricProto.Label {
			if label.GetName() == "alert_type" {
				alertType = label.GetValue()
			}
		}
		err := s.SaveMetricWithLabels("alerts_triggered_total", "alert_type", alertType, metricProto.Counter.GetValue())
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		log.Debug("Metrics saved to database.")
	}
	return firstErr
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Warnf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
