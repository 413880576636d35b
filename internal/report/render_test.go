package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"eligo/internal/model"
)

func sampleReport() *model.EligibilityReport {
	implied := 2
	return &model.EligibilityReport{
		Protocol:    "NCT00000000 Phase II Protocol",
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Oracle: model.OracleMeta{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			TemplateVersion: "eligo/adjudicate/v1",
		},
		Criteria: []model.Criterion{
			{ID: 1, Category: model.CategoryInclusion, Text: "Age between 18 and 75 years"},
			{ID: 2, Category: model.CategoryExclusion, Text: "Pregnant or breastfeeding"},
		},
		Facts: []model.PatientFact{
			{Key: "Age", Value: "34"},
			{Key: "note", Value: "currently 20 weeks gestation"},
		},
		Verdicts: []model.Verdict{
			{CriterionID: 1, Status: model.StatusMet, Confidence: model.ConfidenceHigh, Rationale: "Age 34 is within the window."},
			{CriterionID: 2, Status: model.StatusUndetermined, Confidence: model.ConfidenceMedium, Rationale: "Pregnancy is not stated directly."},
		},
		Triggers: []model.SilentExclusionTrigger{
			{TriggerFact: model.PatientFact{Key: "note", Value: "currently 20 weeks gestation"}, ImpliedCriterionID: &implied, Rationale: "Gestational age implies pregnancy."},
		},
		Decision: model.DecisionIneligible,
	}
}

func TestMarkdown_SectionOrderFixed(t *testing.T) {
	md := NewRenderer(false).Markdown(sampleReport())

	sections := []string{
		"## Inclusion Criteria",
		"## Exclusion Criteria",
		"## Silent Exclusion Triggers",
		"## Overall Decision",
	}

	last := -1
	for _, s := range sections {
		idx := strings.Index(md, s)
		if idx == -1 {
			t.Fatalf("Missing section %q in:\n%s", s, md)
		}
		if idx < last {
			t.Errorf("Section %q out of order", s)
		}
		last = idx
	}
}

func TestMarkdown_Idempotent(t *testing.T) {
	renderer := NewRenderer(true)
	report := sampleReport()

	first := renderer.Markdown(report)
	second := renderer.Markdown(report)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Re-rendering an unchanged report differs (-first +second):\n%s", diff)
	}
}

func TestMarkdown_Content(t *testing.T) {
	md := NewRenderer(false).Markdown(sampleReport())

	for _, want := range []string{
		"# Eligibility Report: NCT00000000 Phase II Protocol",
		"Oracle: gemini gemini-2.5-flash (template eligo/adjudicate/v1)",
		"- **1.** Age between 18 and 75 years",
		"Status: Met (confidence: High)",
		"- **2.** Pregnant or breastfeeding",
		"`note: currently 20 weeks gestation` (criterion 2)",
		"Gestational age implies pregnancy.",
		"**Ineligible**",
		"Generated: 2026-03-14T09:30:00Z",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdown_NoDecisionDerivation(t *testing.T) {
	// Triggers present but the decision field says Eligible: the renderer
	// must echo the structure, never re-decide
	report := sampleReport()
	report.Decision = model.DecisionEligible

	md := NewRenderer(false).Markdown(report)
	if !strings.Contains(md, "**Eligible**") {
		t.Error("Renderer must render the decision as given")
	}
	if strings.Contains(md, "**Ineligible**") {
		t.Error("Renderer must not derive its own decision")
	}
}

func TestMarkdown_EmptyCategoriesAndFlags(t *testing.T) {
	report := &model.EligibilityReport{
		Protocol:    "Sectionless Protocol",
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Oracle:      model.OracleMeta{Provider: "gemini", TemplateVersion: "eligo/adjudicate/v1"},
		Decision:    model.DecisionNeedsReview,
		Flags:       []string{model.FlagNoSections},
	}

	md := NewRenderer(false).Markdown(report)

	if !strings.Contains(md, "_No criteria in this category._") {
		t.Error("Expected empty-category placeholder")
	}
	if !strings.Contains(md, "_None detected._") {
		t.Error("Expected empty-trigger placeholder")
	}
	if !strings.Contains(md, model.FlagNoSections) {
		t.Error("Expected ambiguity flag in decision section")
	}
	if !strings.Contains(md, "(provider default)") {
		t.Error("Expected provider-default model label")
	}
}

func TestMarkdown_Footer(t *testing.T) {
	with := NewRenderer(true).Markdown(sampleReport())
	without := NewRenderer(false).Markdown(sampleReport())

	if !strings.Contains(with, "not a medical decision") {
		t.Error("Expected footer when enabled")
	}
	if strings.Contains(without, "not a medical decision") {
		t.Error("Unexpected footer when disabled")
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	report := sampleReport()

	if err := NewRenderer(false).RenderJSON(report, path); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}

	var got model.EligibilityReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}
	if diff := cmp.Diff(*report, got); diff != "" {
		t.Errorf("Report round-trip differs (-want +got):\n%s", diff)
	}
}

func TestRenderMarkdown_WritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")

	renderer := NewRenderer(true)
	report := sampleReport()

	if err := renderer.RenderMarkdown(report, path); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read markdown: %v", err)
	}
	if !bytes.Equal(data, []byte(renderer.Markdown(report))) {
		t.Error("File content differs from in-memory rendering")
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(false).RenderSummary(sampleReport(), &buf)

	out := buf.String()
	for _, want := range []string{
		"Decision:  Ineligible",
		"Triggers:  1",
		"1 met, 0 violated, 1 undetermined",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}
}
