package report

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
)

var (
	reportsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_reports_published_total",
		Help: "The number of visibility reports published.",
	})

	reportPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_report_publish_errors",
		Help: "The errors that occured while publishing visibility reports.",
	}, []string{errTypeLabel})

	reportPublishLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "visibility_report_publish_latency",
		Help: "The time to publish a batch of visibility reports.",
	})

	reportValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_report_validation_errors",
		Help: "Invalid visibility report counter.",
	}, []string{errTypeLabel})

	reportsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_reports_dropped_total",
		Help: "The number of visibility reports dropped because the report queue was full.",
	})
)

func instrumentPublish(count int, publish func() error) error {
	start := time.Now()
	err := publish()
	reportPublishLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		reportPublishErrors.
			With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
			Inc()
		return err
	}

	reportsPublished.Add(float64(count))
	return nil
}

func instrumentValidationError(err error) {
	reportValidationErrors.
		With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
		Inc()
}

// InstrumentDropped counts a report that could not be queued.
func InstrumentDropped() {
	reportsDropped.Inc()
}
