package profile

import (
	"errors"
	"testing"

	"eligo/internal/model"
)

func TestParse_KeyValueLines(t *testing.T) {
	text := "Age: 80\nDiagnosis: Stage II NSCLC\nECOG - 1\n"

	facts, err := Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("Expected 3 facts, got %d", len(facts))
	}

	want := []struct{ key, value string }{
		{"Age", "80"},
		{"Diagnosis", "Stage II NSCLC"},
		{"ECOG", "1"},
	}
	for i, w := range want {
		if facts[i].Key != w.key || facts[i].Value != w.value {
			t.Errorf("Fact %d: expected %s=%q, got %s=%q", i, w.key, w.value, facts[i].Key, facts[i].Value)
		}
	}
}

func TestParse_NoteLines(t *testing.T) {
	text := "Age: 34\nCurrently 20 weeks gestation\n"

	facts, err := Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Expected 2 facts, got %d", len(facts))
	}
	if facts[1].Key != model.FactKeyNote {
		t.Errorf("Expected note key, got %q", facts[1].Key)
	}
	if facts[1].Value != "Currently 20 weeks gestation" {
		t.Errorf("Expected free-text preserved, got %q", facts[1].Value)
	}
}

func TestParse_OpenKeySpace(t *testing.T) {
	// Unanticipated attribute names must survive; no fixed schema
	text := "Left ventricular ejection fraction: 38%\nHbA1c: 9.2%\n"

	facts, err := Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Expected 2 facts, got %d", len(facts))
	}
	if facts[0].Key != "Left ventricular ejection fraction" {
		t.Errorf("Unexpected key: %q", facts[0].Key)
	}
	// Raw value passes through, no numeric/unit parsing
	if facts[0].Value != "38%" {
		t.Errorf("Expected raw value, got %q", facts[0].Value)
	}
}

func TestParse_BulletsStripped(t *testing.T) {
	text := "- Age: 62\n* History of smoking, 20 pack-years\n"

	facts, err := Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Expected 2 facts, got %d", len(facts))
	}
	if facts[0].Key != "Age" || facts[0].Value != "62" {
		t.Errorf("Expected Age=62, got %s=%q", facts[0].Key, facts[0].Value)
	}
	if facts[1].Key != model.FactKeyNote {
		t.Errorf("Expected note fact for bulleted prose, got %q", facts[1].Key)
	}
}

func TestParse_SourceSpans(t *testing.T) {
	text := "Age: 80\nDiagnosis: NSCLC\n"

	facts, err := Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, f := range facts {
		if f.SourceSpan == nil {
			t.Fatalf("Expected source span for fact %q", f.Key)
		}
		line := text[f.SourceSpan.Start:f.SourceSpan.End]
		if line == "" || line[len(line)-1] == '\n' {
			t.Errorf("Span for %q covers %q, want the line without terminator", f.Key, line)
		}
	}

	if facts[1].SourceSpan.Start != 8 {
		t.Errorf("Expected second fact span to start at 8, got %d", facts[1].SourceSpan.Start)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t\n"} {
		_, err := Parse(text)
		if err == nil {
			t.Errorf("Expected error for %q, got nil", text)
			continue
		}
		var empty *EmptyProfileError
		if !errors.As(err, &empty) {
			t.Errorf("Expected EmptyProfileError, got %T", err)
		}
	}
}
