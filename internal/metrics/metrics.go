package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of a pipeline run
const (
	OutcomeProcessed       = "processed"
	OutcomeNoAttachment    = "no_attachment"
	OutcomeExtractionError = "extraction_error"
	OutcomeParseError      = "parse_error"
	OutcomeSchemaError     = "schema_error"
	OutcomeCancelled       = "cancelled"
)

// Metrics collects pipeline counters. A nil *Metrics discards everything.
type Metrics struct {
	registry *prometheus.Registry

	messages         *prometheus.CounterVec
	rowsWritten      prometheus.Counter
	rowWriteFailures prometheus.Counter
	recordsSkipped   prometheus.Counter
	unknownTokens    prometheus.Counter
	archiveFailures  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmarc_messages_total",
				Help: "Total number of processed messages by outcome",
			},
			[]string{"outcome"},
		),
		rowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "dmarc_rows_written_total",
			Help: "Total number of rows written to the analytics sink",
		}),
		rowWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dmarc_row_write_failures_total",
			Help: "Total number of rows the analytics sink rejected",
		}),
		recordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dmarc_records_skipped_total",
			Help: "Total number of report records skipped because of missing nodes",
		}),
		unknownTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "dmarc_unknown_tokens_total",
			Help: "Total number of enum tokens replaced by their default",
		}),
		archiveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dmarc_archive_failures_total",
			Help: "Total number of attachments that could not be archived",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RowsWritten(n int) {
	if m == nil {
		return
	}
	m.rowsWritten.Add(float64(n))
}

func (m *Metrics) RowWriteFailures(n int) {
	if m == nil {
		return
	}
	m.rowWriteFailures.Add(float64(n))
}

func (m *Metrics) RecordsSkipped(n int) {
	if m == nil {
		return
	}
	m.recordsSkipped.Add(float64(n))
}

func (m *Metrics) UnknownTokens(n int) {
	if m == nil {
		return
	}
	m.unknownTokens.Add(float64(n))
}

func (m *Metrics) ArchiveFailure() {
	if m == nil {
		return
	}
	m.archiveFailures.Inc()
}
