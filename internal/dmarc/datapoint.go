package dmarc

// MaxIndexLength is the longest index value accepted by the analytics sink
const MaxIndexLength = 32

// DataPoint is the positional encoding of a RecordRow written to the
// analytics sink
type DataPoint struct {
	Indexes []string
	Blobs   []string
	Doubles []float64
}

// DataPoint encodes the row. The org name is used as index, the blobs and
// doubles follow the field order of RecordRow.
func (r RecordRow) DataPoint() DataPoint {
	return DataPoint{
		Indexes: []string{truncate(r.ReportMetadataOrgName, MaxIndexLength)},
		Blobs: []string{
			r.ReportMetadataReportID,
			r.ReportMetadataOrgName,
			r.ReportMetadataError,
			r.PolicyPublishedDomain,
			r.RecordRowSourceIP,
			r.RecordIdentifiersEnvelopeTo,
			r.RecordIdentifiersHeaderFrom,
		},
		Doubles: []float64{
			float64(r.ReportMetadataDateRangeBegin),
			float64(r.ReportMetadataDateRangeEnd),
			float64(r.PolicyPublishedADKIM),
			float64(r.PolicyPublishedASPF),
			float64(r.PolicyPublishedP),
			float64(r.PolicyPublishedSP),
			float64(r.PolicyPublishedPct),
			float64(r.RecordRowCount),
			float64(r.RecordRowPolicyEvaluatedDKIM),
			float64(r.RecordRowPolicyEvaluatedSPF),
			float64(r.RecordRowPolicyEvaluatedDisposition),
			float64(r.RecordRowPolicyEvaluatedReasonType),
		},
	}
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
