package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"eligo/internal/model"
)

// Evaluator runs one patient evaluation against a protocol
type Evaluator interface {
	Evaluate(ctx context.Context, patientText, protocolText string) (*model.EligibilityReport, error)
}

// EvaluationJob evaluates one patient profile file
type EvaluationJob struct {
	PatientPath  string
	ProtocolText string
	Evaluator    Evaluator
}

// Execute executes the evaluation job
func (j *EvaluationJob) Execute(ctx context.Context) Result {
	data, err := os.ReadFile(j.PatientPath)
	if err != nil {
		return &EvaluationResult{
			PatientPath: j.PatientPath,
			Error:       fmt.Errorf("read patient profile: %w", err),
		}
	}

	report, err := j.Evaluator.Evaluate(ctx, string(data), j.ProtocolText)
	return &EvaluationResult{
		PatientPath: j.PatientPath,
		Report:      report,
		Error:       err,
	}
}

// EvaluationResult represents the result of one patient evaluation
type EvaluationResult struct {
	PatientPath string
	Report      *model.EligibilityReport
	Error       error
}

// GetError returns the error from the evaluation result
func (r *EvaluationResult) GetError() error {
	return r.Error
}

// BatchProcessor evaluates multiple patient profiles against one protocol
// concurrently. A failed evaluation is reported per file and does not abort
// the rest of the batch.
type BatchProcessor struct {
	evaluator   Evaluator
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(evaluator Evaluator, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		evaluator:   evaluator,
		concurrency: concurrency,
	}
}

// ProcessProfiles evaluates each patient profile file concurrently
func (b *BatchProcessor) ProcessProfiles(ctx context.Context, protocolText string, paths []string) []*EvaluationResult {
	if len(paths) == 0 {
		return []*EvaluationResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&EvaluationJob{
			PatientPath:  path,
			ProtocolText: protocolText,
			Evaluator:    b.evaluator,
		})
	}

	results := pool.Wait()

	evalResults := make([]*EvaluationResult, len(results))
	for i, result := range results {
		evalResults[i] = result.(*EvaluationResult)
	}

	return evalResults
}

// ProcessFile reads patient profile paths from a list file and evaluates them
func (b *BatchProcessor) ProcessFile(ctx context.Context, protocolText, listPath string) ([]*EvaluationResult, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read profile list: %w", err)
	}

	return b.ProcessProfiles(ctx, protocolText, paths), nil
}

// ReadPathsFromFile reads file paths from a list file (one per line)
func ReadPathsFromFile(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
