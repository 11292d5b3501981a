package models

// AuditVerdict is the outcome of the S3 verification pass.
type AuditVerdict string

// Audit verdicts. APPROVED and ACCEPTED are synonyms; consumers must treat
// them identically.
const (
	VerdictApproved   AuditVerdict = "APPROVED"
	VerdictAccepted   AuditVerdict = "ACCEPTED"
	VerdictBypass     AuditVerdict = "BYPASS"
	VerdictFixable    AuditVerdict = "FIXABLE"
	VerdictRejected   AuditVerdict = "REJECTED"
	VerdictAPIFailure AuditVerdict = "API_FAILURE"
)

// AuditResult carries the verdict, confidence, and optional corrected text
// from the audit pass.
type AuditResult struct {
	Verdict     AuditVerdict `json:"verdict"`
	Confidence  int          `json:"confidence"`
	FixedAnswer string       `json:"fixed_answer,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Mode        string       `json:"audit_mode,omitempty"`
}

// Badge is the user-visible verification label derived from the audit verdict.
type Badge string

// Badges, ordered from best to worst.
const (
	BadgeVerified    Badge = "verified"
	BadgeCorrected   Badge = "corrected"
	BadgeUnverified  Badge = "unverified"
	BadgeUnavailable Badge = "unavailable"
)

// badgeRank orders badges for worst-of merging in compound queries.
var badgeRank = map[Badge]int{
	BadgeVerified:    0,
	BadgeCorrected:   1,
	BadgeUnverified:  2,
	BadgeUnavailable: 3,
}

// WorstBadge returns the worse of two badges.
func WorstBadge(a, b Badge) Badge {
	if badgeRank[b] > badgeRank[a] {
		return b
	}
	return a
}

// BadgeForVerdict maps an audit verdict to its badge.
func BadgeForVerdict(v AuditVerdict) Badge {
	switch v {
	case VerdictApproved, VerdictAccepted, VerdictBypass:
		return BadgeVerified
	case VerdictFixable:
		return BadgeCorrected
	case VerdictAPIFailure:
		return BadgeUnavailable
	case VerdictRejected:
		return BadgeUnverified
	default:
		return BadgeUnverified
	}
}

// PipelineResult is the envelope returned by a pipeline run.
type PipelineResult struct {
	Success            bool               `json:"success"`
	Answer             string             `json:"answer"`
	Mode               Mode               `json:"mode"`
	Preflight          *PreflightResult   `json:"preflight,omitempty"`
	AuditResult        *AuditResult       `json:"audit_result,omitempty"`
	Badge              Badge              `json:"badge"`
	DidSearch          bool               `json:"did_search"`
	RetryCount         int                `json:"retry_count"`
	PassCount          int                `json:"pass_count"`
	DataPackageID      string             `json:"data_package_id,omitempty"`
	DataPackageSummary *CompressedSummary `json:"data_package_summary,omitempty"`

	TokensIn  int `json:"tokens_in,omitempty"`
	TokensOut int `json:"tokens_out,omitempty"`
}
