package oracle

import (
	"fmt"
	"strings"

	"eligo/internal/model"
)

// Template versions. Responses are only comparable (and cacheable) under
// the same version: any wording change to a template must bump it.
const (
	AdjudicationTemplateVersion = "eligo/adjudicate/v1"
	TriggerTemplateVersion      = "eligo/triggers/v1"
)

// systemPrompt pins the oracle into adjudicator mode for every call
const systemPrompt = `You are a clinical trial eligibility adjudicator. You judge patient facts against protocol criteria exactly as asked and respond only in the requested output format, with no commentary, no markdown fences, and no text outside the format.`

// BuildAdjudicationPrompt constructs the bounded per-criterion prompt:
// the criterion, the full fact list, and the output contract.
func BuildAdjudicationPrompt(criterion model.Criterion, facts []model.PatientFact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Template: %s\n\n", AdjudicationTemplateVersion)
	b.WriteString("Decide whether the patient satisfies, violates, or leaves undetermined the single trial criterion below.\n\n")

	fmt.Fprintf(&b, "CRITERION (category: %s):\n%s\n\n", criterion.Category, criterion.Text)

	b.WriteString("PATIENT FACTS:\n")
	b.WriteString(factList(facts))
	b.WriteString("\n")

	b.WriteString(`Rules:
1. Judge only this one criterion; ignore whether other criteria would pass or fail.
2. "Met" means the patient satisfies the criterion as stated. "Violated" means the patient fails it; for an exclusion criterion that means the patient matches the excluded condition.
3. If the facts do not contain enough information to decide, answer "Undetermined". Never guess.
4. Compare numeric values stated in the facts yourself; units and thresholds are part of the criterion.

Respond with exactly three lines and nothing else:
STATUS: Met | Violated | Undetermined
CONFIDENCE: Low | Medium | High
RATIONALE: <one short paragraph on a single line>
`)

	return b.String()
}

// BuildTriggerPrompt constructs the aggregator's second-pass prompt: find
// patient facts that independently disqualify the patient under the
// protocol's general exclusion intent, even though no single stated
// criterion names them.
func BuildTriggerPrompt(criteria []model.Criterion, facts []model.PatientFact, violated []model.Criterion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Template: %s\n\n", TriggerTemplateVersion)
	b.WriteString("You are reviewing a patient for silent exclusion triggers: facts that disqualify the patient under the protocol's exclusion intent even though no single stated criterion names them directly (for example, a fact implying pregnancy when the protocol excludes pregnant patients without any criterion mentioning gestation).\n\n")

	b.WriteString("PROTOCOL CRITERIA:\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "%d. [%s] %s\n", c.ID, c.Category, c.Text)
	}
	b.WriteString("\n")

	b.WriteString("PATIENT FACTS (numbered):\n")
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, f.Key, f.Value)
	}
	b.WriteString("\n")

	if len(violated) > 0 {
		b.WriteString("ALREADY ADJUDICATED: the following criteria are already Violated; facts that are the direct, explicit basis of these violations are NOT silent triggers and must not be reported again:\n")
		for _, c := range violated {
			fmt.Fprintf(&b, "- criterion %d: %s\n", c.ID, c.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Rules:
1. Report a trigger only when a fact, on its own, would disqualify the patient under the protocol's exclusion intent.
2. Reference facts by their number and, when the trigger maps to a specific criterion's intent, reference that criterion's id; otherwise use "none".
3. Do not speculate beyond the stated facts.

Respond with one line per finding and nothing else:
TRIGGER: fact=<fact number> | criterion=<criterion id or none> | rationale=<one sentence>
If there are no silent exclusion triggers, respond with exactly:
TRIGGERS: NONE
`)

	return b.String()
}

// BuildCorrectivePrompt wraps the original prompt after a contract
// violation; one shot only before the verdict degrades to Undetermined.
func BuildCorrectivePrompt(original string) string {
	return "Your previous output was malformed and could not be parsed. Respond again in the EXACT output format requested, with no extra text before or after it.\n\n" + original
}

func factList(facts []model.PatientFact) string {
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}
	if len(facts) == 0 {
		b.WriteString("(none)\n")
	}
	return b.String()
}
