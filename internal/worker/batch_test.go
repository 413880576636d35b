package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eligo/internal/model"
)

type fakeEvaluator struct {
	failFor string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, patientText, protocolText string) (*model.EligibilityReport, error) {
	if f.failFor != "" && patientText == f.failFor {
		return nil, errors.New("oracle unavailable")
	}
	return &model.EligibilityReport{Decision: model.DecisionEligible}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBatchProcessor_ProcessProfiles(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "p1.txt", "Age: 40")
	p2 := writeFile(t, dir, "p2.txt", "Age: 80")

	b := NewBatchProcessor(&fakeEvaluator{}, 2)
	results := b.ProcessProfiles(context.Background(), "protocol text", []string{p1, p2})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Error != nil {
			t.Errorf("unexpected error for %s: %v", r.PatientPath, r.Error)
		}
		if r.Report == nil {
			t.Errorf("expected report for %s", r.PatientPath)
		}
	}
}

func TestBatchProcessor_FailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Age: 40")
	bad := writeFile(t, dir, "bad.txt", "Age: 80")

	b := NewBatchProcessor(&fakeEvaluator{failFor: "Age: 80"}, 2)
	results := b.ProcessProfiles(context.Background(), "protocol text", []string{good, bad})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected exactly 1 failed evaluation, got %d", failed)
	}
}

type blockingEvaluator struct{}

func (blockingEvaluator) Evaluate(ctx context.Context, patientText, protocolText string) (*model.EligibilityReport, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBatchProcessor_CancelledContextStopsBatch(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "p1.txt", "Age: 40")
	p2 := writeFile(t, dir, "p2.txt", "Age: 80")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := NewBatchProcessor(blockingEvaluator{}, 2)

	done := make(chan []*EvaluationResult, 1)
	go func() { done <- b.ProcessProfiles(ctx, "protocol text", []string{p1, p2}) }()

	select {
	case results := <-done:
		for _, r := range results {
			if !errors.Is(r.Error, context.DeadlineExceeded) {
				t.Errorf("expected deadline error for %s, got %v", r.PatientPath, r.Error)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not stop after context expiry")
	}
}

func TestBatchProcessor_MissingFile(t *testing.T) {
	b := NewBatchProcessor(&fakeEvaluator{}, 1)
	results := b.ProcessProfiles(context.Background(), "protocol", []string{"/nonexistent/profile.txt"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Error == nil {
		t.Error("expected error for missing profile file")
	}
}

func TestReadPathsFromFile(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "patients.txt", "a.txt\n\n# comment\nb.txt\na.txt\n")

	paths, err := ReadPathsFromFile(list)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"a.txt", "b.txt"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d paths, got %d: %v", len(want), len(paths), paths)
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("path %d: expected %s, got %s", i, p, paths[i])
		}
	}
}
