package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"eligo/internal/aggregate"
	"eligo/internal/cache"
	"eligo/internal/model"
	"eligo/internal/normalize"
	"eligo/internal/oracle"
	"eligo/internal/profile"
	"eligo/internal/protocol"
	"eligo/internal/report"
	"eligo/internal/worker"
)

// Engine orchestrates one evaluation: normalize the protocol, structure
// criteria, parse facts, adjudicate, aggregate, assemble the report. It is
// request-scoped in behavior: no state survives between Evaluate calls.
type Engine struct {
	structurer   *protocol.Structurer
	adjudicator  *oracle.Adjudicator
	aggregator   *aggregate.Aggregator
	renderer     *report.Renderer
	config       *model.Config
	log          *zap.Logger
	protocolName string
}

var _ worker.Evaluator = (*Engine)(nil)

// New creates an engine over the given oracle provider
func New(cfg *model.Config, provider oracle.Provider, log *zap.Logger) *Engine {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	var store cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Dir != "" {
			store = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		} else {
			store = cache.NewMemoryCache(cfg.Cache.MemoryTTL, cfg.Cache.MemoryTTL)
		}
	}

	adjudicator := oracle.NewAdjudicator(provider, cfg.Oracle, cfg.Concurrency, store, log)

	return &Engine{
		structurer:  protocol.NewStructurer(cfg.Structurer),
		adjudicator: adjudicator,
		aggregator:  aggregate.New(adjudicator, log),
		renderer:    report.NewRenderer(cfg.Output.IncludeFooter),
		config:      cfg,
		log:         log,
	}
}

// SetProtocolName sets the display name used in assembled reports
func (e *Engine) SetProtocolName(name string) {
	e.protocolName = name
}

// Evaluate runs the full pipeline for one patient against one protocol
func (e *Engine) Evaluate(ctx context.Context, patientText, protocolText string) (*model.EligibilityReport, error) {
	// 1. Normalize the protocol document
	normalized, err := normalize.Document(protocolText)
	if err != nil {
		return nil, fmt.Errorf("normalize protocol: %w", err)
	}

	// 2. Structure criteria
	structured, err := e.structurer.Structure(normalized)
	if err != nil {
		return nil, fmt.Errorf("structure criteria: %w", err)
	}
	e.log.Debug("criteria structured",
		zap.Int("count", len(structured.Criteria)),
		zap.Strings("flags", structured.Flags),
	)

	// 3. Parse patient facts
	facts, err := profile.Parse(patientText)
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	e.log.Debug("profile parsed", zap.Int("facts", len(facts)))

	// 4. Adjudicate each criterion concurrently
	verdicts, err := e.adjudicator.EvaluateAll(ctx, structured.Criteria, facts)
	if err != nil {
		return nil, fmt.Errorf("adjudicate criteria: %w", err)
	}

	// 5. Aggregate: silent-trigger pass, then the overall decision
	outcome, err := e.aggregator.Aggregate(ctx, structured.Criteria, facts, verdicts, structured.Flags)
	if err != nil {
		return nil, fmt.Errorf("aggregate verdicts: %w", err)
	}

	// 6. Assemble the report; rendering happens separately
	result := &model.EligibilityReport{
		Protocol:    e.protocolName,
		GeneratedAt: time.Now().UTC(),
		Oracle:      e.adjudicator.Meta(),
		Criteria:    structured.Criteria,
		Facts:       facts,
		Verdicts:    verdicts,
		Triggers:    outcome.Triggers,
		Decision:    outcome.Decision,
		Flags:       outcome.Flags,
	}

	e.log.Info("evaluation complete",
		zap.Int("criteria", len(result.Criteria)),
		zap.Int("triggers", len(result.Triggers)),
		zap.String("decision", string(result.Decision)),
	)

	return result, nil
}

// RenderReport renders the report to the requested outputs. The Markdown
// rendering goes to the given file when mdPath is set, otherwise to out in
// full; a file write still gets a short summary on out.
func (e *Engine) RenderReport(result *model.EligibilityReport, jsonPath, mdPath string, out io.Writer) error {
	if jsonPath != "" {
		if err := e.renderer.RenderJSON(result, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if e.config.Output.Verbose {
			fmt.Fprintf(out, "Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath == "" {
		_, err := io.WriteString(out, e.renderer.Markdown(result))
		return err
	}

	if err := e.renderer.RenderMarkdown(result, mdPath); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	if e.config.Output.Verbose {
		fmt.Fprintf(out, "Wrote Markdown: %s\n", mdPath)
	}

	e.renderer.RenderSummary(result, out)
	return nil
}

// Markdown returns the Markdown rendering of a report
func (e *Engine) Markdown(result *model.EligibilityReport) string {
	return e.renderer.Markdown(result)
}
