package model

// VerdictStatus is the oracle's judgment for one criterion
type VerdictStatus string

const (
	StatusMet          VerdictStatus = "Met"
	StatusViolated     VerdictStatus = "Violated"
	StatusUndetermined VerdictStatus = "Undetermined"
)

// Valid reports whether the status is one of the three contract values
func (s VerdictStatus) Valid() bool {
	switch s {
	case StatusMet, StatusViolated, StatusUndetermined:
		return true
	}
	return false
}

// Confidence labels how certain the oracle was about a verdict
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// Valid reports whether the confidence is one of the three contract values
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Verdict is the adjudication result for a single criterion. Verdicts are
// immutable: a re-evaluation produces new Verdicts, never updates.
type Verdict struct {
	CriterionID int           `json:"criterion_id"`
	Status      VerdictStatus `json:"status"`
	Rationale   string        `json:"rationale"`
	Confidence  Confidence    `json:"confidence"`
}

// SilentExclusionTrigger is a patient fact that independently disqualifies
// the patient even though no single stated criterion names it. Derived by
// the aggregator's second pass, never by per-criterion adjudication.
type SilentExclusionTrigger struct {
	TriggerFact        PatientFact `json:"trigger_fact"`
	ImpliedCriterionID *int        `json:"implied_criterion_id,omitempty"`
	Rationale          string      `json:"rationale"`
}
