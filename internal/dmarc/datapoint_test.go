package dmarc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataPoint(t *testing.T) {
	t.Parallel()

	row := RecordRow{
		ReportMetadataReportID:              "abc_123",
		ReportMetadataOrgName:               "google.com",
		ReportMetadataDateRangeBegin:        10,
		ReportMetadataDateRangeEnd:          20,
		ReportMetadataError:                 `["x"]`,
		PolicyPublishedDomain:               "example.com",
		PolicyPublishedADKIM:                AlignmentStrict,
		PolicyPublishedASPF:                 AlignmentRelaxed,
		PolicyPublishedP:                    DispositionReject,
		PolicyPublishedSP:                   DispositionQuarantine,
		PolicyPublishedPct:                  50,
		RecordRowSourceIP:                   "192.0.2.1",
		RecordRowCount:                      5,
		RecordRowPolicyEvaluatedDKIM:        ResultPass,
		RecordRowPolicyEvaluatedSPF:         ResultFail,
		RecordRowPolicyEvaluatedDisposition: DispositionNone,
		RecordRowPolicyEvaluatedReasonType:  OverrideLocalPolicy,
		RecordIdentifiersEnvelopeTo:         "example.net",
		RecordIdentifiersHeaderFrom:         "example.com",
	}

	dp := row.DataPoint()
	assert.Equal(t, []string{"google.com"}, dp.Indexes)
	assert.Equal(t, []string{"abc_123", "google.com", `["x"]`, "example.com", "192.0.2.1", "example.net", "example.com"}, dp.Blobs)
	assert.Equal(t, []float64{10, 20, 1, 0, 2, 1, 50, 5, 1, 0, 0, 5}, dp.Doubles)
}

func TestDataPointIndexLength(t *testing.T) {
	t.Parallel()

	long := RecordRow{ReportMetadataOrgName: strings.Repeat("a", 40)}
	assert.Equal(t, strings.Repeat("a", MaxIndexLength), long.DataPoint().Indexes[0])

	// 31 ascii bytes followed by a two byte rune must not be split
	multi := RecordRow{ReportMetadataOrgName: strings.Repeat("a", 31) + "ü" + "b"}
	idx := multi.DataPoint().Indexes[0]
	assert.LessOrEqual(t, len(idx), MaxIndexLength)
	assert.Equal(t, strings.Repeat("a", 31), idx)
}
