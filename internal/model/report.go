package model

import "time"

// Decision is the overall eligibility outcome. Precedence, highest wins:
// Ineligible > IndeterminateNeedsReview > Eligible.
type Decision string

const (
	DecisionEligible    Decision = "Eligible"
	DecisionIneligible  Decision = "Ineligible"
	DecisionNeedsReview Decision = "IndeterminateNeedsReview"
)

// Report flags for documented ambiguity. A criteria-less report is only
// valid when FlagNoSections is present; it is never presented as eligible.
const (
	FlagNoSections           = "no structured criteria sections detected"
	FlagTriggerPassDegraded  = "silent-trigger pass response unparseable; manual review required"
	FlagFullDocumentFallback = "no sections found; full-document inclusion fallback enabled"
)

// EligibilityReport is the complete, request-scoped evaluation result.
// It is built once per request and holds no state between calls.
type EligibilityReport struct {
	Protocol    string    `json:"protocol"`               // Display name of the protocol document
	GeneratedAt time.Time `json:"generated_at"`

	Oracle OracleMeta `json:"oracle"`

	Criteria []Criterion   `json:"criteria"`           // Protocol document order
	Facts    []PatientFact `json:"facts"`

	Verdicts []Verdict                `json:"verdicts"`           // Same order as Criteria; len(Verdicts) == len(Criteria)
	Triggers []SilentExclusionTrigger `json:"triggers,omitempty"`

	Decision Decision `json:"overall_decision"`
	Flags    []string `json:"flags,omitempty"`
}

// OracleMeta records which oracle produced the verdicts. Changing the
// template version invalidates cached and comparable results.
type OracleMeta struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	TemplateVersion string `json:"template_version"`
}

// VerdictFor returns the verdict for a criterion ID, or nil
func (r *EligibilityReport) VerdictFor(criterionID int) *Verdict {
	for i := range r.Verdicts {
		if r.Verdicts[i].CriterionID == criterionID {
			return &r.Verdicts[i]
		}
	}
	return nil
}
