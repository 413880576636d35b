package oracle

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"eligo/internal/cache"
	"eligo/internal/logger"
	"eligo/internal/model"
	"eligo/internal/worker"
)

// rationaleUnparseable is recorded when the oracle violates the output
// contract twice in a row for one criterion
const rationaleUnparseable = "oracle response unparseable"

const logPreviewLen = 200

// retrySleep waits out one backoff delay, returning early on context
// cancellation (injectable for tests)
var retrySleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Adjudicator is the oracle client: it builds bounded prompts, fans calls
// out concurrently, and parses responses against the output contract. It
// is the only component that crosses the external-LLM boundary.
type Adjudicator struct {
	provider Provider
	cfg      model.OracleConfig
	limiter  *worker.Limiter
	workers  int
	store    cache.Cache // nil disables verdict caching
	log      *zap.Logger
}

// NewAdjudicator creates an adjudicator over the given provider
func NewAdjudicator(provider Provider, cfg model.OracleConfig, conc model.ConcurrencyConfig, store cache.Cache, log *zap.Logger) *Adjudicator {
	workers := conc.AdjudicationWorkers
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Adjudicator{
		provider: provider,
		cfg:      cfg,
		limiter:  worker.NewLimiter(conc.RequestsPerSecond, conc.Burst),
		workers:  workers,
		store:    store,
		log:      log,
	}
}

// Meta describes the oracle configuration verdicts were produced under
func (a *Adjudicator) Meta() model.OracleMeta {
	return model.OracleMeta{
		Provider:        a.provider.Name(),
		Model:           a.cfg.Model,
		TemplateVersion: AdjudicationTemplateVersion,
	}
}

// EvaluateAll adjudicates every criterion against the fact list. Calls are
// independent and run concurrently up to the worker bound; results land in
// protocol order. A transport failure cancels the remaining in-flight calls
// and fails the whole evaluation, so no partial verdict set escapes.
func (a *Adjudicator) EvaluateAll(ctx context.Context, criteria []model.Criterion, facts []model.PatientFact) ([]model.Verdict, error) {
	if len(criteria) == 0 {
		return []model.Verdict{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	verdicts := make([]model.Verdict, len(criteria))
	errs := make([]error, len(criteria))
	digest := cache.FactsDigest(facts)

	semaphore := make(chan struct{}, a.workers)
	var wg sync.WaitGroup

	for i, c := range criteria {
		wg.Add(1)
		go func(idx int, criterion model.Criterion) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			verdict, err := a.adjudicate(ctx, criterion, facts, digest)
			if err != nil {
				errs[idx] = err
				cancel() // abort the remaining calls; no partial report
				return
			}
			verdicts[idx] = verdict
		}(i, c)
	}

	wg.Wait()

	// Report the transport failure, not the cancellations it caused
	var firstErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		if _, ok := err.(*UnavailableError); ok {
			return nil, err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return verdicts, nil
}

// adjudicate produces the verdict for one criterion
func (a *Adjudicator) adjudicate(ctx context.Context, criterion model.Criterion, facts []model.PatientFact, factsDigest string) (model.Verdict, error) {
	key := cache.VerdictKey(AdjudicationTemplateVersion, a.provider.Name(), a.cfg.Model, criterion.NormalizedText, factsDigest)

	if a.store != nil {
		if data, found := a.store.Get(key); found {
			var verdict model.Verdict
			if err := json.Unmarshal(data, &verdict); err == nil && verdict.Status.Valid() {
				verdict.CriterionID = criterion.ID
				a.log.Debug("verdict cache hit", zap.Int("criterion_id", criterion.ID))
				return verdict, nil
			}
		}
	}

	prompt := BuildAdjudicationPrompt(criterion, facts)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return model.Verdict{}, err
	}

	adj, perr := parseAdjudication(raw)
	if perr != nil {
		a.log.Warn("oracle response violated contract; sending corrective prompt",
			zap.Int("criterion_id", criterion.ID),
			zap.String("reason", perr.Error()),
			zap.String("response_preview", logger.TruncateForLog(raw, logPreviewLen)),
		)

		raw, err = a.complete(ctx, BuildCorrectivePrompt(prompt))
		if err != nil {
			return model.Verdict{}, err
		}
		adj, perr = parseAdjudication(raw)
	}

	if perr != nil {
		// Degraded, first-class Undetermined: never hidden, never cached
		a.log.Warn("oracle response unparseable after corrective retry",
			zap.Int("criterion_id", criterion.ID),
			zap.String("response_preview", logger.TruncateForLog(raw, logPreviewLen)),
		)
		return model.Verdict{
			CriterionID: criterion.ID,
			Status:      model.StatusUndetermined,
			Confidence:  model.ConfidenceLow,
			Rationale:   rationaleUnparseable,
		}, nil
	}

	verdict := model.Verdict{
		CriterionID: criterion.ID,
		Status:      adj.Status,
		Confidence:  adj.Confidence,
		Rationale:   adj.Rationale,
	}

	if a.store != nil {
		if data, err := json.Marshal(verdict); err == nil {
			if err := a.store.Set(key, data, 0); err != nil {
				a.log.Debug("verdict cache write failed", zap.Error(err))
			}
		}
	}

	return verdict, nil
}

// DetectTriggers runs the aggregator's second pass: one oracle call over
// the full criteria and fact lists asking for silent exclusion triggers.
// degraded is true when the response stayed unparseable after the
// corrective retry; the caller must then flag the report for review.
func (a *Adjudicator) DetectTriggers(ctx context.Context, criteria []model.Criterion, facts []model.PatientFact, verdicts []model.Verdict) (triggers []model.SilentExclusionTrigger, degraded bool, err error) {
	if len(facts) == 0 {
		return nil, false, nil
	}

	var violated []model.Criterion
	for _, v := range verdicts {
		if v.Status != model.StatusViolated {
			continue
		}
		for _, c := range criteria {
			if c.ID == v.CriterionID {
				violated = append(violated, c)
				break
			}
		}
	}

	prompt := BuildTriggerPrompt(criteria, facts, violated)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, false, err
	}

	findings, perr := parseTriggers(raw, len(facts), len(criteria))
	if perr != nil {
		a.log.Warn("trigger-pass response violated contract; sending corrective prompt",
			zap.String("reason", perr.Error()),
			zap.String("response_preview", logger.TruncateForLog(raw, logPreviewLen)),
		)

		raw, err = a.complete(ctx, BuildCorrectivePrompt(prompt))
		if err != nil {
			return nil, false, err
		}
		findings, perr = parseTriggers(raw, len(facts), len(criteria))
	}

	if perr != nil {
		a.log.Warn("trigger-pass response unparseable after corrective retry",
			zap.String("response_preview", logger.TruncateForLog(raw, logPreviewLen)),
		)
		return nil, true, nil
	}

	for _, f := range findings {
		trigger := model.SilentExclusionTrigger{
			TriggerFact: facts[f.FactIndex-1],
			Rationale:   f.Rationale,
		}
		if f.CriterionID != nil {
			id := *f.CriterionID
			trigger.ImpliedCriterionID = &id
		}
		triggers = append(triggers, trigger)
	}

	return triggers, false, nil
}

// complete sends one prompt through the rate limiter with bounded
// exponential-backoff retries on transport failure
func (a *Adjudicator) complete(ctx context.Context, prompt string) (string, error) {
	if err := a.limiter.Wait(ctx, a.provider.Name()); err != nil {
		return "", err
	}

	req := CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}

	maxRetries := a.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := a.cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	a.log.Debug("oracle request",
		zap.String("provider", a.provider.Name()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, logPreviewLen)),
	)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			if err := retrySleep(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
		}

		resp, err := a.provider.Complete(ctx, req)
		if err == nil {
			a.log.Debug("oracle response",
				zap.String("provider", a.provider.Name()),
				zap.Int("response_length", utf8.RuneCountInString(resp.Text)),
				zap.String("response_preview", logger.TruncateForLog(resp.Text, logPreviewLen)),
			)
			return resp.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.log.Warn("oracle transport failure",
			zap.String("provider", a.provider.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return "", &UnavailableError{Provider: a.provider.Name(), Attempts: maxRetries, Err: lastErr}
}
