package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eligo/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	// protocolPath and the oracle flags are defined in evaluate.go and shared here
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <patients-file>",
	Short: "Evaluate multiple patient profiles against one protocol in parallel",
	Long: `Batch screens many patients against a single protocol:
- Read patient profile paths from the input file (one per line, # comments)
- Evaluate profiles in parallel with a configurable worker count
- A failed evaluation is reported per file and does not abort the batch
- Write an individual JSON and Markdown report per patient

Example:
  eligo batch patients.txt --protocol protocol.txt
  eligo batch patients.txt --protocol protocol.txt --concurrency 8 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&protocolPath, "protocol", "", "protocol document path (plain text)")
	_ = batchCmd.MarkFlagRequired("protocol")

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of concurrent patient evaluations")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./eligo-reports", "output directory for reports")

	// Oracle flags shared with evaluate
	batchCmd.Flags().StringVar(&oracleName, "provider", "gemini", "oracle provider (gemini, openai, anthropic, ollama)")
	batchCmd.Flags().StringVar(&oracleModel, "model", "", "oracle model name (provider default when empty)")
	batchCmd.Flags().DurationVar(&oracleTimeout, "oracle-timeout", time.Minute, "timeout for a single oracle call")
	batchCmd.Flags().IntVar(&workers, "workers", 4, "concurrent oracle calls per evaluation")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the verdict cache")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().BoolVar(&assumeIncl, "assume-inclusion", false, "treat a sectionless document as inclusion criteria (full-document fallback)")
	batchCmd.Flags().BoolVar(&debugLog, "debug", false, "debug logging (includes prompt/response previews)")
	batchCmd.Flags().BoolVar(&jsonLog, "log-json", false, "JSON log encoding")
}

func runBatch(cmd *cobra.Command, args []string) error {
	listPath := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	protocolText, err := readProtocol(protocolPath)
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	eng.SetProtocolName(protocolDisplayName(protocolPath))

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Protocol:    %s\n", protocolPath)
	fmt.Fprintf(os.Stderr, "Input file:  %s\n", listPath)
	fmt.Fprintf(os.Stderr, "Workers:     %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "Output dir:  %s\n", outputDir)
	fmt.Fprintln(os.Stderr)

	processor := worker.NewBatchProcessor(eng, concurrency)
	results, err := processor.ProcessFile(ctx, protocolText, listPath)
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	successCount := 0
	failureCount := 0

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", result.PatientPath, result.Error)
			continue
		}

		successCount++

		slug := patientSlug(result.PatientPath)
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := eng.RenderReport(result.Report, jsonPath, mdPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", result.PatientPath, err)
			continue
		}

		fmt.Fprintf(os.Stderr, "OK   %s: %s\n", result.PatientPath, result.Report.Decision)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Total:    %d profiles\n", len(results))
	fmt.Fprintf(os.Stderr, "Success:  %d\n", successCount)
	fmt.Fprintf(os.Stderr, "Failures: %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "Output:   %s\n", outputDir)

	return nil
}

// patientSlug derives a filesystem-safe report name from a profile path
func patientSlug(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	slug := b.String()
	if len(slug) > 100 {
		slug = slug[:100]
	}
	if slug == "" {
		slug = "patient"
	}
	return slug
}
