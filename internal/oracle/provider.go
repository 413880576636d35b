package oracle

import (
	"context"
	"fmt"

	"eligo/internal/model"
)

// Provider is the transport to one reasoning oracle backend. It carries no
// adjudication logic: prompt construction and contract parsing live in the
// Adjudicator, so every backend is held to the same output contract.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the raw text response
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is one bounded prompt submission
type CompletionRequest struct {
	// System is the system/role instruction, when the backend supports one
	System string

	// Prompt is the full user prompt (criterion, facts, output contract)
	Prompt string

	// Model overrides the provider's configured model when non-empty
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature for generation; adjudication runs cold
	Temperature float32
}

// CompletionResponse is the raw oracle output before contract parsing
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// UnavailableError signals that the oracle transport failed after bounded
// retries. It fails the whole evaluation: a report with missing criteria
// verdicts is unsafe, so no partial report is ever produced from it.
type UnavailableError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle %s unavailable after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ResponseParseError signals that an oracle response does not conform to
// the declared output contract. Recoverable: the adjudicator retries once
// with a corrective prompt before degrading the verdict to Undetermined.
type ResponseParseError struct {
	Reason string
	Raw    string
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("oracle response violates output contract: %s", e.Reason)
}

// NewProvider creates an oracle provider from configuration
func NewProvider(ctx context.Context, cfg model.OracleConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg)

	case "openai":
		return NewOpenAIProvider(cfg)

	case "anthropic", "claude":
		return NewAnthropicProvider(cfg)

	case "ollama":
		return NewOllamaProvider(cfg)

	default:
		return nil, fmt.Errorf("unknown oracle provider: %s (supported: gemini, openai, anthropic, ollama)", cfg.Provider)
	}
}
