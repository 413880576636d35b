package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"eligo/internal/model"
)

// Renderer produces the output documents for an EligibilityReport. Pure
// rendering: every decision-looking string it emits already exists in the
// report structure, and identical input yields byte-identical output.
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.EligibilityReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the Markdown rendering to a file
func (r *Renderer) RenderMarkdown(report *model.EligibilityReport, path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown(report)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Markdown renders the report document. Section order is fixed: Inclusion
// Criteria, Exclusion Criteria, Silent Exclusion Triggers, Overall
// Decision.
func (r *Renderer) Markdown(report *model.EligibilityReport) string {
	var b strings.Builder

	title := report.Protocol
	if title == "" {
		title = "Untitled Protocol"
	}
	fmt.Fprintf(&b, "# Eligibility Report: %s\n\n", title)
	fmt.Fprintf(&b, "Generated: %s\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Oracle: %s %s (template %s)\n\n", report.Oracle.Provider, oracleModelLabel(report.Oracle.Model), report.Oracle.TemplateVersion)

	renderCategory(&b, "Inclusion Criteria", model.CategoryInclusion, report)
	renderCategory(&b, "Exclusion Criteria", model.CategoryExclusion, report)
	renderTriggers(&b, report)
	renderDecision(&b, report)

	if r.includeFooter {
		b.WriteString("---\n\n*Adjudicated by a reasoning oracle; not a medical decision. Verify against the full protocol before enrollment.*\n")
	}

	return b.String()
}

// RenderSummary prints a short human summary
func (r *Renderer) RenderSummary(report *model.EligibilityReport, w io.Writer) {
	fmt.Fprintf(w, "Protocol:  %s\n", report.Protocol)
	fmt.Fprintf(w, "Criteria:  %d (%d verdicts)\n", len(report.Criteria), len(report.Verdicts))

	var met, violated, undetermined int
	for _, v := range report.Verdicts {
		switch v.Status {
		case model.StatusMet:
			met++
		case model.StatusViolated:
			violated++
		case model.StatusUndetermined:
			undetermined++
		}
	}
	fmt.Fprintf(w, "Verdicts:  %d met, %d violated, %d undetermined\n", met, violated, undetermined)
	fmt.Fprintf(w, "Triggers:  %d\n", len(report.Triggers))
	for _, f := range report.Flags {
		fmt.Fprintf(w, "Flag:      %s\n", f)
	}
	fmt.Fprintf(w, "Decision:  %s\n", report.Decision)
}

func renderCategory(b *strings.Builder, heading string, category model.CriterionCategory, report *model.EligibilityReport) {
	fmt.Fprintf(b, "## %s\n\n", heading)

	count := 0
	for _, c := range report.Criteria {
		if c.Category != category {
			continue
		}
		count++

		fmt.Fprintf(b, "- **%d.** %s\n", c.ID, c.Text)
		if v := report.VerdictFor(c.ID); v != nil {
			fmt.Fprintf(b, "  - Status: %s (confidence: %s)\n", v.Status, v.Confidence)
			fmt.Fprintf(b, "  - Rationale: %s\n", v.Rationale)
		}
	}

	if count == 0 {
		b.WriteString("_No criteria in this category._\n")
	}
	b.WriteString("\n")
}

func renderTriggers(b *strings.Builder, report *model.EligibilityReport) {
	b.WriteString("## Silent Exclusion Triggers\n\n")

	if len(report.Triggers) == 0 {
		b.WriteString("_None detected._\n\n")
		return
	}

	for _, t := range report.Triggers {
		ref := "no single stated criterion"
		if t.ImpliedCriterionID != nil {
			ref = fmt.Sprintf("criterion %d", *t.ImpliedCriterionID)
		}
		fmt.Fprintf(b, "- `%s: %s` (%s)\n", t.TriggerFact.Key, t.TriggerFact.Value, ref)
		fmt.Fprintf(b, "  - Rationale: %s\n", t.Rationale)
	}
	b.WriteString("\n")
}

func renderDecision(b *strings.Builder, report *model.EligibilityReport) {
	b.WriteString("## Overall Decision\n\n")
	fmt.Fprintf(b, "**%s**\n\n", report.Decision)

	if len(report.Flags) > 0 {
		b.WriteString("Flags:\n\n")
		for _, f := range report.Flags {
			fmt.Fprintf(b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
}

func oracleModelLabel(name string) string {
	if name == "" {
		return "(provider default)"
	}
	return name
}
