package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"eligo/internal/model"
)

// TriggerDetector runs the silent-trigger pass over the full criteria and
// fact lists. Implemented by oracle.Adjudicator; a nil detector disables
// the pass.
type TriggerDetector interface {
	DetectTriggers(ctx context.Context, criteria []model.Criterion, facts []model.PatientFact, verdicts []model.Verdict) (triggers []model.SilentExclusionTrigger, degraded bool, err error)
}

// Outcome is the aggregated result: the overall decision, the silent
// exclusion triggers found, and the flags accumulated along the way
type Outcome struct {
	Decision model.Decision
	Triggers []model.SilentExclusionTrigger
	Flags    []string
}

// Aggregator combines per-criterion verdicts into an overall decision
type Aggregator struct {
	detector TriggerDetector
	log      *zap.Logger
}

// New creates an aggregator. detector may be nil to skip trigger detection.
func New(detector TriggerDetector, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{detector: detector, log: log}
}

// Aggregate runs the silent-trigger pass and decides overall eligibility.
// It requires exactly one verdict per criterion; anything else means a
// verdict was dropped or duplicated upstream and the run is invalid.
func (a *Aggregator) Aggregate(ctx context.Context, criteria []model.Criterion, facts []model.PatientFact, verdicts []model.Verdict, flags []string) (*Outcome, error) {
	if len(verdicts) != len(criteria) {
		return nil, fmt.Errorf("verdict count %d does not match criterion count %d", len(verdicts), len(criteria))
	}

	outcome := &Outcome{Flags: append([]string(nil), flags...)}

	if a.detector != nil && len(criteria) > 0 {
		triggers, degraded, err := a.detector.DetectTriggers(ctx, criteria, facts, verdicts)
		if err != nil {
			return nil, fmt.Errorf("silent-trigger detection: %w", err)
		}
		if degraded {
			outcome.Flags = append(outcome.Flags, model.FlagTriggerPassDegraded)
		}
		outcome.Triggers = triggers

		if len(triggers) > 0 {
			a.log.Info("silent exclusion triggers found", zap.Int("count", len(triggers)))
		}
	}

	outcome.Decision = Decide(criteria, verdicts, outcome.Triggers, outcome.Flags)
	return outcome, nil
}

// Decide applies the decision rules to an already-complete verdict set.
// Precedence, highest first: Ineligible, IndeterminateNeedsReview,
// Eligible. Exclusion signals dominate ambiguity; ambiguity dominates a
// clean pass.
func Decide(criteria []model.Criterion, verdicts []model.Verdict, triggers []model.SilentExclusionTrigger, flags []string) model.Decision {
	categories := make(map[int]model.CriterionCategory, len(criteria))
	for _, c := range criteria {
		categories[c.ID] = c.Category
	}

	ineligible := len(triggers) > 0
	needsReview := false

	for _, v := range verdicts {
		category := categories[v.CriterionID]

		switch v.Status {
		case model.StatusViolated:
			if category == model.CategoryExclusion {
				// Exclusion dominance: the patient matches an excluded condition
				ineligible = true
			} else {
				// An unmet inclusion criterion is not an exclusion signal;
				// it rules out a clean pass and goes to human review
				needsReview = true
			}
			if v.Confidence == model.ConfidenceLow {
				needsReview = true
			}

		case model.StatusUndetermined:
			if category == model.CategoryExclusion || v.Confidence == model.ConfidenceLow {
				needsReview = true
			}
		}
	}

	for _, f := range flags {
		if f == model.FlagNoSections || f == model.FlagTriggerPassDegraded {
			needsReview = true
		}
	}

	switch {
	case ineligible:
		return model.DecisionIneligible
	case needsReview:
		return model.DecisionNeedsReview
	default:
		return model.DecisionEligible
	}
}
