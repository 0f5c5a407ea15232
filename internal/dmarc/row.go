package dmarc

import "strings"

// AlignmentType is the DKIM / SPF identifier alignment mode
type AlignmentType int

const (
	AlignmentRelaxed AlignmentType = iota
	AlignmentStrict
)

// DMARCResultType is the evaluated DKIM / SPF result of a record
type DMARCResultType int

const (
	ResultFail DMARCResultType = iota
	ResultPass
)

// DispositionType is the requested or applied policy action
type DispositionType int

const (
	DispositionNone DispositionType = iota
	DispositionQuarantine
	DispositionReject
)

// PolicyOverrideType is the reason a receiver deviated from the published policy
type PolicyOverrideType int

const (
	OverrideOther PolicyOverrideType = iota
	OverrideForwarded
	OverrideSampledOut
	OverrideTrustedForwarder
	OverrideMailingList
	OverrideLocalPolicy
)

// lookup tables from xml tokens, unknown tokens fall back to the zero value
var (
	alignmentTokens = map[string]AlignmentType{
		"r":       AlignmentRelaxed,
		"relaxed": AlignmentRelaxed,
		"s":       AlignmentStrict,
		"strict":  AlignmentStrict,
	}
	resultTokens = map[string]DMARCResultType{
		"fail": ResultFail,
		"pass": ResultPass,
	}
	dispositionTokens = map[string]DispositionType{
		"none":       DispositionNone,
		"quarantine": DispositionQuarantine,
		"reject":     DispositionReject,
	}
	overrideTokens = map[string]PolicyOverrideType{
		"other":             OverrideOther,
		"forwarded":         OverrideForwarded,
		"sampled_out":       OverrideSampledOut,
		"trusted_forwarder": OverrideTrustedForwarder,
		"mailing_list":      OverrideMailingList,
		"local_policy":      OverrideLocalPolicy,
	}
)

// enumToken returns the table entry for token and whether it was known
func enumToken[T any](table map[string]T, token string) (T, bool) {
	v, ok := table[strings.ToLower(strings.TrimSpace(token))]
	return v, ok
}

func (a AlignmentType) String() string {
	if a == AlignmentStrict {
		return "strict"
	}
	return "relaxed"
}

func (r DMARCResultType) String() string {
	if r == ResultPass {
		return "pass"
	}
	return "fail"
}

func (d DispositionType) String() string {
	switch d {
	case DispositionQuarantine:
		return "quarantine"
	case DispositionReject:
		return "reject"
	default:
		return "none"
	}
}

func (p PolicyOverrideType) String() string {
	switch p {
	case OverrideForwarded:
		return "forwarded"
	case OverrideSampledOut:
		return "sampled_out"
	case OverrideTrustedForwarder:
		return "trusted_forwarder"
	case OverrideMailingList:
		return "mailing_list"
	case OverrideLocalPolicy:
		return "local_policy"
	default:
		return "other"
	}
}

// RecordRow is the flattened form of one record element of a DMARC
// aggregate report. Report identity and published policy fields are the same
// for all rows of a report.
type RecordRow struct {
	ReportMetadataReportID       string
	ReportMetadataOrgName        string
	ReportMetadataDateRangeBegin int64
	ReportMetadataDateRangeEnd   int64
	ReportMetadataError          string

	PolicyPublishedDomain string
	PolicyPublishedADKIM  AlignmentType
	PolicyPublishedASPF   AlignmentType
	PolicyPublishedP      DispositionType
	PolicyPublishedSP     DispositionType
	PolicyPublishedPct    int

	RecordRowSourceIP                   string
	RecordRowCount                      int64
	RecordRowPolicyEvaluatedDKIM        DMARCResultType
	RecordRowPolicyEvaluatedSPF         DMARCResultType
	RecordRowPolicyEvaluatedDisposition DispositionType
	RecordRowPolicyEvaluatedReasonType  PolicyOverrideType
	RecordIdentifiersEnvelopeTo         string
	RecordIdentifiersHeaderFrom         string
}
