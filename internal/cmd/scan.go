package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/pipeline"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Detect PII in a document without writing anything",
	Long: `Runs extraction and detection only. Nothing is redacted and no
audit record is written; use this to preview what redact would remove.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Emit findings as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "scan")
	defer span.End()

	cfg, err := loadConfigEnsured()
	if err != nil {
		return err
	}
	detector, err := buildDetector(cfg)
	if err != nil {
		return fmt.Errorf("building detector: %w", err)
	}

	p := pipeline.New(detector)
	scan, err := p.Scan(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		return json.NewEncoder(out).Encode(map[string]interface{}{
			"source":      scan.Source,
			"medium":      scan.Medium,
			"findings":    scan.Findings,
			"type_counts": scan.Findings.TypeCounts(),
			"stats":       scan.Extraction.Stats,
		})
	}
	renderScan(out, scan)
	return nil
}

// renderScan writes a human-readable finding table (testable).
func renderScan(w io.Writer, scan *pipeline.Scan) {
	fmt.Fprintf(w, "%s (%s): %d finding(s)\n", scan.Source, scan.Medium, len(scan.Findings))
	if len(scan.Findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n  %-20s %-8s %-6s %s\n", "TYPE", "METHOD", "SCORE", "POSITION")
	for i := range scan.Findings {
		f := &scan.Findings[i]
		fmt.Fprintf(w, "  %-20s %-8s %.2f   %s\n",
			f.EntityType, f.Method, f.Confidence, describePosition(f))
	}

	counts := scan.Findings.TypeCounts()
	types := make([]string, 0, len(counts))
	for entity := range counts {
		types = append(types, entity)
	}
	sort.Strings(types)
	fmt.Fprintf(w, "\nTotals:\n")
	for _, entity := range types {
		fmt.Fprintf(w, "  %-20s %d\n", entity, counts[entity])
	}
}

func describePosition(f *detect.Finding) string {
	if f.Position == nil {
		return fmt.Sprintf("offset %d-%d", f.Start, f.End)
	}
	switch f.Position.Kind {
	case detect.PositionCell:
		return fmt.Sprintf("%s!%s", f.Position.Sheet, f.Position.Cell)
	case detect.PositionUnit:
		return fmt.Sprintf("paragraph %d", f.Position.Unit+1)
	case detect.PositionPage:
		return fmt.Sprintf("page %d", f.Position.Page)
	default:
		return fmt.Sprintf("offset %d-%d", f.Start, f.End)
	}
}
