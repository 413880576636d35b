package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eligo/internal/engine"
	"eligo/internal/logger"
	"eligo/internal/model"
	"eligo/internal/oracle"
)

var (
	protocolPath  string
	patientPath   string
	outJSON       string
	outMD         string
	evalTimeout   time.Duration
	oracleName    string
	oracleModel   string
	oracleTimeout time.Duration
	noCache       bool
	noFooter      bool
	assumeIncl    bool
	workers       int
	debugLog      bool
	jsonLog       bool
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one patient profile against a trial protocol",
	Long: `Evaluate screens a single patient against a protocol document:
- Normalize the protocol text and structure its inclusion/exclusion criteria
- Parse the patient profile into attribute/value facts
- Adjudicate every criterion through the reasoning oracle
- Detect silent exclusion triggers and aggregate the overall decision
- Write a deterministic eligibility report

Example:
  eligo evaluate --protocol protocol.txt --patient patient.txt
  eligo evaluate --protocol protocol.txt --patient patient.txt --md report.md
  eligo evaluate --protocol protocol.txt --patient patient.txt --provider openai --model gpt-4o-mini`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	// Input flags
	evaluateCmd.Flags().StringVar(&protocolPath, "protocol", "", "protocol document path (plain text)")
	evaluateCmd.Flags().StringVar(&patientPath, "patient", "", "patient profile path (plain text)")
	_ = evaluateCmd.MarkFlagRequired("protocol")
	_ = evaluateCmd.MarkFlagRequired("patient")

	// Output flags
	evaluateCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path")
	evaluateCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (prints to stdout when empty)")
	evaluateCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Oracle flags
	evaluateCmd.Flags().StringVar(&oracleName, "provider", "gemini", "oracle provider (gemini, openai, anthropic, ollama)")
	evaluateCmd.Flags().StringVar(&oracleModel, "model", "", "oracle model name (provider default when empty)")
	evaluateCmd.Flags().DurationVar(&oracleTimeout, "oracle-timeout", time.Minute, "timeout for a single oracle call")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 5*time.Minute, "overall evaluation timeout")
	evaluateCmd.Flags().IntVar(&workers, "workers", 4, "concurrent oracle calls per evaluation")
	evaluateCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the verdict cache")

	// Structurer flags
	evaluateCmd.Flags().BoolVar(&assumeIncl, "assume-inclusion", false, "treat a sectionless document as inclusion criteria (full-document fallback)")

	// Logging flags
	evaluateCmd.Flags().BoolVar(&debugLog, "debug", false, "debug logging (includes prompt/response previews)")
	evaluateCmd.Flags().BoolVar(&jsonLog, "log-json", false, "JSON log encoding")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	protocolText, err := readProtocol(protocolPath)
	if err != nil {
		return err
	}

	patientData, err := os.ReadFile(patientPath)
	if err != nil {
		return fmt.Errorf("read patient profile: %w", err)
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	eng.SetProtocolName(protocolDisplayName(protocolPath))

	if verbose {
		fmt.Fprintf(os.Stderr, "Protocol: %s\n", protocolPath)
		fmt.Fprintf(os.Stderr, "Patient:  %s\n", patientPath)
		fmt.Fprintf(os.Stderr, "Oracle:   %s\n", cfg.Oracle.Provider)
		fmt.Fprintln(os.Stderr)
	}

	result, err := eng.Evaluate(ctx, string(patientData), protocolText)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if err := eng.RenderReport(result, outJSON, outMD, os.Stdout); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	return nil
}

// buildConfig assembles the engine configuration from flags and environment
func buildConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	cfg.Oracle.Provider = oracleName
	cfg.Oracle.Model = oracleModel
	cfg.Oracle.Timeout = int(oracleTimeout.Seconds())
	cfg.Structurer.AssumeInclusion = assumeIncl
	cfg.Concurrency.AdjudicationWorkers = workers
	cfg.Cache.Enabled = !noCache
	cfg.Output.Verbose = verbose
	cfg.Output.IncludeFooter = !noFooter
	cfg.Logging.Debug = debugLog
	cfg.Logging.JSON = jsonLog

	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Cache.Dir = filepath.Join(home, ".eligo", "cache")
		}
	}

	// API keys come from the environment, never from config files
	switch cfg.Oracle.Provider {
	case "gemini":
		cfg.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
		if cfg.Oracle.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case "openai":
		cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.Oracle.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.Oracle.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.Oracle.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.Oracle.BaseURL = baseURL
		}
	}

	return cfg, nil
}

// newEngine builds the logger, the oracle provider, and the engine
func newEngine(ctx context.Context, cfg *model.Config) (*engine.Engine, error) {
	log, err := logger.New(cfg.Logging.JSON, cfg.Logging.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	provider, err := oracle.NewProvider(ctx, cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("create oracle provider: %w", err)
	}

	return engine.New(cfg, provider, log), nil
}

// readProtocol loads a protocol document. PDF extraction is out of scope:
// the caller must convert to plain text first.
func readProtocol(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", fmt.Errorf("PDF input is not supported: extract the protocol to plain text first (e.g. pdftotext %s protocol.txt)", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read protocol: %w", err)
	}
	return string(data), nil
}

// protocolDisplayName derives the report title from the protocol filename
func protocolDisplayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
