package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"eligo/internal/cache"
	"eligo/internal/model"
)

// scriptedProvider returns canned responses in order, cycling on the last one
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	p.calls++
	p.prompts = append(p.prompts, req.Prompt)

	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if len(p.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return &CompletionResponse{Text: p.responses[idx], Model: "scripted-model"}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testAdjudicator(p Provider, store cache.Cache) *Adjudicator {
	return NewAdjudicator(p, model.OracleConfig{
		Provider:       "scripted",
		Model:          "scripted-model",
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, model.ConcurrencyConfig{
		AdjudicationWorkers: 2,
		RequestsPerSecond:   1000,
		Burst:               1000,
	}, store, nil)
}

func testCriteria() []model.Criterion {
	return []model.Criterion{
		{ID: 1, Category: model.CategoryInclusion, Text: "Age between 18 and 75 years", NormalizedText: "age between 18 and 75 years"},
		{ID: 2, Category: model.CategoryExclusion, Text: "Pregnant or breastfeeding", NormalizedText: "pregnant or breastfeeding"},
	}
}

func testFacts() []model.PatientFact {
	return []model.PatientFact{
		{Key: "Age", Value: "64"},
		{Key: "Sex", Value: "female"},
	}
}

func TestEvaluateAll_ProtocolOrder(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"STATUS: Met\nCONFIDENCE: High\nRATIONALE: Within range."},
	}
	adj := testAdjudicator(provider, nil)

	verdicts, err := adj.EvaluateAll(context.Background(), testCriteria(), testFacts())
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}

	if len(verdicts) != 2 {
		t.Fatalf("Expected 2 verdicts, got %d", len(verdicts))
	}
	for i, v := range verdicts {
		if v.CriterionID != i+1 {
			t.Errorf("Verdict %d: expected criterion id %d, got %d", i, i+1, v.CriterionID)
		}
		if v.Status != model.StatusMet {
			t.Errorf("Verdict %d: expected Met, got %s", i, v.Status)
		}
	}
}

func TestEvaluateAll_EmptyCriteria(t *testing.T) {
	provider := &scriptedProvider{}
	adj := testAdjudicator(provider, nil)

	verdicts, err := adj.EvaluateAll(context.Background(), nil, testFacts())
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	if len(verdicts) != 0 {
		t.Errorf("Expected no verdicts, got %d", len(verdicts))
	}
	if provider.callCount() != 0 {
		t.Errorf("Expected no oracle calls, got %d", provider.callCount())
	}
}

func TestEvaluateAll_CorrectiveRetryRecovers(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{
			"I think the patient probably qualifies here.",
			"STATUS: Met\nCONFIDENCE: Medium\nRATIONALE: Second attempt conforms.",
		},
	}
	adj := testAdjudicator(provider, nil)

	criteria := testCriteria()[:1]
	verdicts, err := adj.EvaluateAll(context.Background(), criteria, testFacts())
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}

	if verdicts[0].Status != model.StatusMet {
		t.Errorf("Expected Met after corrective retry, got %s", verdicts[0].Status)
	}
	if provider.callCount() != 2 {
		t.Errorf("Expected 2 calls (original + corrective), got %d", provider.callCount())
	}
	if !strings.Contains(provider.prompts[1], "malformed") {
		t.Error("Second prompt should carry the corrective preamble")
	}
}

func TestEvaluateAll_DoubleMalformedDegradesToUndetermined(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"Nonsense response."},
	}
	adj := testAdjudicator(provider, nil)

	criteria := testCriteria()[:1]
	verdicts, err := adj.EvaluateAll(context.Background(), criteria, testFacts())
	if err != nil {
		t.Fatalf("EvaluateAll should degrade, not fail: %v", err)
	}

	v := verdicts[0]
	if v.Status != model.StatusUndetermined {
		t.Errorf("Expected Undetermined, got %s", v.Status)
	}
	if v.Confidence != model.ConfidenceLow {
		t.Errorf("Expected Low confidence, got %s", v.Confidence)
	}
	if v.Rationale != rationaleUnparseable {
		t.Errorf("Unexpected rationale: %q", v.Rationale)
	}
	if provider.callCount() != 2 {
		t.Errorf("Expected exactly one corrective retry, got %d calls", provider.callCount())
	}
}

func TestEvaluateAll_TransportFailureFailsWhole(t *testing.T) {
	transportErr := errors.New("connection refused")
	provider := &scriptedProvider{
		errs: []error{transportErr, transportErr, transportErr, transportErr, transportErr, transportErr},
	}
	adj := testAdjudicator(provider, nil)

	var slept []time.Duration
	origSleep := retrySleep
	retrySleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	defer func() { retrySleep = origSleep }()

	verdicts, err := adj.EvaluateAll(context.Background(), testCriteria()[:1], testFacts())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if verdicts != nil {
		t.Error("No partial verdicts should be returned on transport failure")
	}

	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected *UnavailableError, got %T: %v", err, err)
	}
	if unavailable.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", unavailable.Attempts)
	}
	if !errors.Is(err, transportErr) {
		t.Error("UnavailableError should wrap the transport error")
	}

	// Exponential backoff between the three attempts
	if len(slept) != 2 {
		t.Fatalf("Expected 2 sleeps, got %d", len(slept))
	}
	if slept[1] != 2*slept[0] {
		t.Errorf("Expected doubling backoff, got %v then %v", slept[0], slept[1])
	}
}

func TestEvaluateAll_CancellationCutsBackoffShort(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{errors.New("connection refused")},
	}
	adj := NewAdjudicator(provider, model.OracleConfig{
		Provider:       "scripted",
		Model:          "scripted-model",
		MaxRetries:     3,
		RetryBaseDelay: time.Hour,
	}, model.ConcurrencyConfig{
		AdjudicationWorkers: 2,
		RequestsPerSecond:   1000,
		Burst:               1000,
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := adj.EvaluateAll(ctx, testCriteria()[:1], testFacts())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Backoff ignored cancellation; took %v", elapsed)
	}
}

func TestEvaluateAll_CacheHitSkipsOracle(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"STATUS: Violated\nCONFIDENCE: High\nRATIONALE: Fact matches the excluded condition."},
	}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	adj := testAdjudicator(provider, store)

	criteria := testCriteria()[:1]
	facts := testFacts()

	first, err := adj.EvaluateAll(context.Background(), criteria, facts)
	if err != nil {
		t.Fatalf("First evaluation failed: %v", err)
	}
	callsAfterFirst := provider.callCount()

	second, err := adj.EvaluateAll(context.Background(), criteria, facts)
	if err != nil {
		t.Fatalf("Second evaluation failed: %v", err)
	}

	if provider.callCount() != callsAfterFirst {
		t.Errorf("Second evaluation should be served from cache, got %d extra calls", provider.callCount()-callsAfterFirst)
	}
	if first[0] != second[0] {
		t.Errorf("Cached verdict differs: %+v vs %+v", first[0], second[0])
	}
}

func TestEvaluateAll_DegradedVerdictNotCached(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"Nonsense."},
	}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	adj := testAdjudicator(provider, store)

	criteria := testCriteria()[:1]
	if _, err := adj.EvaluateAll(context.Background(), criteria, testFacts()); err != nil {
		t.Fatalf("First evaluation failed: %v", err)
	}
	callsAfterFirst := provider.callCount()

	if _, err := adj.EvaluateAll(context.Background(), criteria, testFacts()); err != nil {
		t.Fatalf("Second evaluation failed: %v", err)
	}

	if provider.callCount() == callsAfterFirst {
		t.Error("Degraded verdicts must not be served from cache")
	}
}

func TestDetectTriggers_FindingMapped(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"TRIGGER: fact=2 | criterion=2 | rationale=Sex and gestation facts imply pregnancy."},
	}
	adj := testAdjudicator(provider, nil)

	triggers, degraded, err := adj.DetectTriggers(context.Background(), testCriteria(), testFacts(), nil)
	if err != nil {
		t.Fatalf("DetectTriggers failed: %v", err)
	}
	if degraded {
		t.Error("Expected degraded=false")
	}
	if len(triggers) != 1 {
		t.Fatalf("Expected 1 trigger, got %d", len(triggers))
	}
	if triggers[0].TriggerFact.Key != "Sex" {
		t.Errorf("Expected trigger fact Sex, got %s", triggers[0].TriggerFact.Key)
	}
	if triggers[0].ImpliedCriterionID == nil || *triggers[0].ImpliedCriterionID != 2 {
		t.Errorf("Expected implied criterion 2, got %v", triggers[0].ImpliedCriterionID)
	}
}

func TestDetectTriggers_NoFactsSkipsCall(t *testing.T) {
	provider := &scriptedProvider{}
	adj := testAdjudicator(provider, nil)

	triggers, degraded, err := adj.DetectTriggers(context.Background(), testCriteria(), nil, nil)
	if err != nil {
		t.Fatalf("DetectTriggers failed: %v", err)
	}
	if degraded || len(triggers) != 0 {
		t.Errorf("Expected clean empty result, got degraded=%v triggers=%d", degraded, len(triggers))
	}
	if provider.callCount() != 0 {
		t.Errorf("Expected no oracle calls, got %d", provider.callCount())
	}
}

func TestDetectTriggers_ViolatedCriteriaInPrompt(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"TRIGGERS: NONE"},
	}
	adj := testAdjudicator(provider, nil)

	verdicts := []model.Verdict{
		{CriterionID: 2, Status: model.StatusViolated, Confidence: model.ConfidenceHigh, Rationale: "matches"},
	}

	if _, _, err := adj.DetectTriggers(context.Background(), testCriteria(), testFacts(), verdicts); err != nil {
		t.Fatalf("DetectTriggers failed: %v", err)
	}

	if !strings.Contains(provider.prompts[0], "ALREADY ADJUDICATED") {
		t.Error("Prompt should carry the already-adjudicated section")
	}
	if !strings.Contains(provider.prompts[0], "criterion 2") {
		t.Error("Prompt should list the violated criterion")
	}
}

func TestDetectTriggers_DoubleMalformedDegrades(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"I could not find anything relevant."},
	}
	adj := testAdjudicator(provider, nil)

	triggers, degraded, err := adj.DetectTriggers(context.Background(), testCriteria(), testFacts(), nil)
	if err != nil {
		t.Fatalf("DetectTriggers should degrade, not fail: %v", err)
	}
	if !degraded {
		t.Error("Expected degraded=true")
	}
	if len(triggers) != 0 {
		t.Errorf("Expected no triggers on degraded pass, got %d", len(triggers))
	}
	if provider.callCount() != 2 {
		t.Errorf("Expected exactly one corrective retry, got %d calls", provider.callCount())
	}
}

func TestDetectTriggers_TransportFailure(t *testing.T) {
	transportErr := errors.New("dial timeout")
	provider := &scriptedProvider{
		errs: []error{transportErr, transportErr, transportErr},
	}
	adj := testAdjudicator(provider, nil)

	origSleep := retrySleep
	retrySleep = func(context.Context, time.Duration) error { return nil }
	defer func() { retrySleep = origSleep }()

	_, _, err := adj.DetectTriggers(context.Background(), testCriteria(), testFacts(), nil)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected *UnavailableError, got %T: %v", err, err)
	}
}
