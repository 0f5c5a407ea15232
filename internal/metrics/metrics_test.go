package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Message(OutcomeProcessed)
	m.Message(OutcomeProcessed)
	m.Message(OutcomeParseError)
	m.RowsWritten(3)
	m.RowWriteFailures(1)
	m.RecordsSkipped(2)
	m.UnknownTokens(4)
	m.ArchiveFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues(OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues(OutcomeParseError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rowWriteFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsSkipped))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.unknownTokens))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.archiveFailures))
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Message(OutcomeProcessed)
		m.RowsWritten(1)
		m.RowWriteFailures(1)
		m.RecordsSkipped(1)
		m.UnknownTokens(1)
		m.ArchiveFailure()
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.RowsWritten(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dmarc_rows_written_total 1")
}
