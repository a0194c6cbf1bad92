package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/smart-redact/redactd/internal/document"
	"github.com/smart-redact/redactd/internal/pipeline"
)

var (
	redactOutDir string
	redactJSON   bool
)

var redactCmd = &cobra.Command{
	Use:   "redact [file|dir]...",
	Short: "Redact PII from documents and write redacted copies",
	Long: `Processes each file through detection, redaction and validation.
The redacted copy lands next to the source (or in --out) with a
_REDACTED_<timestamp> suffix; the original is never modified.
Directories are expanded one level deep to their supported files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVar(&redactOutDir, "out", "", "Directory for redacted copies (default: next to each source)")
	redactCmd.Flags().BoolVar(&redactJSON, "json", false, "Emit one JSON result per file")
	rootCmd.AddCommand(redactCmd)
}

// expandPaths resolves file and directory arguments to a sorted list of
// candidate files. Unsupported files inside an explicit directory are
// skipped silently; naming one directly is an error from the pipeline.
func expandPaths(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", arg, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(arg, entry.Name())
			if _, err := document.Open(path); err == nil {
				files = append(files, path)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	p, store, _, err := buildPipeline()
	if err != nil {
		return err
	}
	defer store.Close()

	if redactOutDir != "" {
		if err := os.MkdirAll(redactOutDir, 0o700); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	files, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported documents found")
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, file := range files {
		result, runErr := p.Process(ctx, file, redactOutDir)
		if redactJSON {
			_ = json.NewEncoder(out).Encode(result)
		} else {
			renderRedactResult(out, result, runErr)
		}
		if runErr != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failed, len(files))
	}
	return nil
}

// renderRedactResult writes one human-readable result line set (testable).
func renderRedactResult(w io.Writer, result *pipeline.Result, runErr error) {
	if runErr != nil {
		var violation *pipeline.ValidationViolation
		if errors.As(runErr, &violation) {
			fmt.Fprintf(w, "✗ %s: validation failed, output discarded (leaked: %v)\n",
				result.Source, violation.Leaked)
			return
		}
		fmt.Fprintf(w, "✗ %s: %v\n", result.Source, runErr)
		return
	}

	fmt.Fprintf(w, "✓ %s → %s\n", result.Source, result.Output)
	if len(result.TypeCounts) == 0 {
		fmt.Fprintf(w, "    no PII detected\n")
		return
	}
	types := make([]string, 0, len(result.TypeCounts))
	for entity := range result.TypeCounts {
		types = append(types, entity)
	}
	sort.Strings(types)
	for _, entity := range types {
		fmt.Fprintf(w, "    %-20s %d\n", entity, result.TypeCounts[entity])
	}
}
