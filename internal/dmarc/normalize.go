package dmarc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Report is the normalized form of one aggregate report
type Report struct {
	Rows []RecordRow
	// Skipped holds one *SchemaError per record that could not be converted,
	// nil if every record was converted
	Skipped error
	// UnknownTokens lists enum values that were replaced by their default as
	// path=token
	UnknownTokens []string
}

// Normalize maps a parsed DMARC aggregate report onto one RecordRow per record
// https://tools.ietf.org/html/rfc7489#appendix-C
func Normalize(doc Document) (*Report, error) {
	feedback, ok := asMap(doc["feedback"])
	if !ok {
		return nil, &SchemaError{Path: "feedback", Record: -1}
	}
	metadata, ok := asMap(feedback["report_metadata"])
	if !ok {
		return nil, &SchemaError{Path: "feedback.report_metadata", Record: -1}
	}
	policy, ok := asMap(feedback["policy_published"])
	if !ok {
		return nil, &SchemaError{Path: "feedback.policy_published", Record: -1}
	}

	n := &normalizer{}
	template := n.reportFields(metadata, policy)

	records := asList(feedback["record"])
	report := &Report{
		Rows: make([]RecordRow, 0, len(records)),
	}
	var skipped *multierror.Error
	for i, rec := range records {
		row, err := n.recordFields(template, i, rec)
		if err != nil {
			skipped = multierror.Append(skipped, err)
			continue
		}
		report.Rows = append(report.Rows, row)
	}
	report.Skipped = skipped.ErrorOrNil()
	report.UnknownTokens = n.unknown
	return report, nil
}

type normalizer struct {
	unknown []string
}

// reportFields fills the fields shared by all rows of the report
func (n *normalizer) reportFields(metadata, policy map[string]any) RecordRow {
	pct := intAt(policy, "pct")
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}

	return RecordRow{
		ReportMetadataReportID:       strings.Replace(stringAt(metadata, "report_id"), "-", "_", 1),
		ReportMetadataOrgName:        stringAt(metadata, "org_name"),
		ReportMetadataDateRangeBegin: intAt(metadata, "date_range", "begin"),
		ReportMetadataDateRangeEnd:   intAt(metadata, "date_range", "end"),
		ReportMetadataError:          serializeErrors(metadata["error"]),

		PolicyPublishedDomain: stringAt(policy, "domain"),
		PolicyPublishedADKIM:  enumAt(n, alignmentTokens, AlignmentRelaxed, policy, "policy_published", "adkim"),
		PolicyPublishedASPF:   enumAt(n, alignmentTokens, AlignmentRelaxed, policy, "policy_published", "aspf"),
		PolicyPublishedP:      enumAt(n, dispositionTokens, DispositionNone, policy, "policy_published", "p"),
		PolicyPublishedSP:     enumAt(n, dispositionTokens, DispositionNone, policy, "policy_published", "sp"),
		PolicyPublishedPct:    int(pct),
	}
}

// recordFields copies template and adds the fields of record number i
func (n *normalizer) recordFields(template RecordRow, i int, rec any) (RecordRow, error) {
	record, ok := asMap(rec)
	if !ok {
		return RecordRow{}, &SchemaError{Path: "record", Record: i}
	}
	row, ok := asMap(record["row"])
	if !ok {
		return RecordRow{}, &SchemaError{Path: "record.row", Record: i}
	}
	identifiers, ok := asMap(record["identifiers"])
	if !ok {
		return RecordRow{}, &SchemaError{Path: "record.identifiers", Record: i}
	}

	count := intAt(row, "count")
	if count < 0 {
		count = 0
	}

	// only the first override reason is kept
	reasonType := OverrideOther
	if reasons := asList(lookup(row, "policy_evaluated", "reason")); len(reasons) > 0 {
		if reason, ok := asMap(reasons[0]); ok {
			reasonType = enumAt(n, overrideTokens, OverrideOther, reason, "record.row.policy_evaluated.reason", "type")
		}
	}

	r := template
	r.RecordRowSourceIP = stringAt(row, "source_ip")
	r.RecordRowCount = count
	r.RecordRowPolicyEvaluatedDKIM = enumAt(n, resultTokens, ResultFail, row, "record.row", "policy_evaluated", "dkim")
	r.RecordRowPolicyEvaluatedSPF = enumAt(n, resultTokens, ResultFail, row, "record.row", "policy_evaluated", "spf")
	r.RecordRowPolicyEvaluatedDisposition = enumAt(n, dispositionTokens, DispositionNone, row, "record.row", "policy_evaluated", "disposition")
	r.RecordRowPolicyEvaluatedReasonType = reasonType
	r.RecordIdentifiersEnvelopeTo = stringAt(identifiers, "envelope_to")
	r.RecordIdentifiersHeaderFrom = stringAt(identifiers, "header_from")
	return r, nil
}

// enumAt maps the token at path below m. Absent tokens and tokens without a
// matching member resolve to def, unknown ones are remembered on n.
func enumAt[T any](n *normalizer, table map[string]T, def T, m map[string]any, prefix string, path ...string) T {
	token := stringAt(m, path...)
	if token == "" {
		return def
	}
	v, ok := enumToken(table, token)
	if !ok {
		n.unknown = append(n.unknown, fmt.Sprintf("%s.%s=%s", prefix, strings.Join(path, "."), token))
		return def
	}
	return v
}

// serializeErrors encodes the report_metadata error elements as a json array
func serializeErrors(v any) string {
	items := asList(v)
	if len(items) == 0 {
		return ""
	}
	errs := make([]string, 0, len(items))
	for _, item := range items {
		errs = append(errs, text(item))
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return ""
	}
	return string(b)
}
