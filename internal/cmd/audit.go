package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smart-redact/redactd/internal/evidence"
)

var (
	auditMedium     string
	auditValidation string
	auditLimit      int
	auditFrom       string
	auditTo         string
	auditFormat     string
	auditOut        string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and export the run audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List run records",
	RunE:  auditList,
}

var auditShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  auditShow,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [run-id]",
	Short: "Verify the HMAC signature of a run record",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run records for compliance (csv or json)",
	RunE:  auditExport,
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate per-entity-type finding counts over a time range",
	RunE:  auditSummary,
}

func init() {
	auditListCmd.Flags().StringVar(&auditMedium, "medium", "", "Filter by medium (spreadsheet, word, pdf, image, text)")
	auditListCmd.Flags().StringVar(&auditValidation, "validation", "", "Filter by validation verdict (passed, failed, skipped)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")

	auditExportCmd.Flags().StringVar(&auditMedium, "medium", "", "Filter by medium")
	auditExportCmd.Flags().StringVar(&auditValidation, "validation", "", "Filter by validation verdict")
	auditExportCmd.Flags().IntVar(&auditLimit, "limit", 1000, "Maximum records to export")
	auditExportCmd.Flags().StringVar(&auditFormat, "format", "json", "Export format: csv or json")
	auditExportCmd.Flags().StringVar(&auditOut, "out", "", "Output file (default: stdout)")

	auditSummaryCmd.Flags().StringVar(&auditFrom, "from", "", "Range start (RFC3339)")
	auditSummaryCmd.Flags().StringVar(&auditTo, "to", "", "Range end, exclusive (RFC3339)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditSummaryCmd)
	rootCmd.AddCommand(auditCmd)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, _, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing run store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(ctx, auditMedium, auditValidation, time.Time{}, time.Time{}, auditLimit)
	if err != nil {
		return fmt.Errorf("querying runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No run records found.")
		return nil
	}
	renderAuditList(cmd.OutOrStdout(), runs)
	return nil
}

func auditShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, _, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing run store: %w", err)
	}
	defer store.Close()

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	runID := args[0]

	store, _, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing run store: %w", err)
	}
	defer store.Close()

	valid, err := store.Verify(ctx, runID)
	if err != nil {
		return fmt.Errorf("verifying run: %w", err)
	}
	renderVerifyResult(cmd.OutOrStdout(), runID, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", runID)
	}
	return nil
}

func auditExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if auditFormat != "csv" && auditFormat != "json" {
		return fmt.Errorf("format must be csv or json")
	}

	store, _, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing run store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(ctx, auditMedium, auditValidation, time.Time{}, time.Time{}, auditLimit)
	if err != nil {
		return fmt.Errorf("querying runs: %w", err)
	}
	records := make([]evidence.ExportRecord, len(runs))
	for i := range runs {
		records[i] = evidence.ToExportRecord(&runs[i])
	}

	out := cmd.OutOrStdout()
	if auditOut != "" {
		f, err := os.OpenFile(auditOut, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if auditFormat == "csv" {
		return writeExportCSV(out, records)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func auditSummary(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var from, to time.Time
	var err error
	if auditFrom != "" {
		if from, err = time.Parse(time.RFC3339, auditFrom); err != nil {
			return fmt.Errorf("parsing --from: %w", err)
		}
	}
	if auditTo != "" {
		if to, err = time.Parse(time.RFC3339, auditTo); err != nil {
			return fmt.Errorf("parsing --to: %w", err)
		}
	}

	store, _, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing run store: %w", err)
	}
	defer store.Close()

	totals, err := store.Summary(ctx, from, to)
	if err != nil {
		return fmt.Errorf("aggregating runs: %w", err)
	}
	renderSummary(cmd.OutOrStdout(), totals)
	return nil
}

// renderAuditList writes run record lines to w (testable).
func renderAuditList(w io.Writer, runs []evidence.Record) {
	fmt.Fprintf(w, "Run Records (showing %d):\n\n", len(runs))
	for i := range runs {
		rec := &runs[i]
		status := "✓"
		if rec.Validation == evidence.ValidationFailed || rec.Error != "" {
			status = "✗"
		}
		errorMark := ""
		if rec.Error != "" {
			errorMark = " [ERROR]"
		}
		fmt.Fprintf(w, "  %s %s | %s | %-11s | %-7s | %d finding(s) | %dms%s\n",
			status,
			rec.ID,
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.Medium,
			rec.Validation,
			rec.FindingsTotal,
			rec.DurationMS,
			errorMark,
		)
	}
}

// renderVerifyResult writes the verify outcome to w (testable).
func renderVerifyResult(w io.Writer, runID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "✓ Run %s: signature VALID (HMAC-SHA256 intact)\n", runID)
	} else {
		fmt.Fprintf(w, "✗ Run %s: signature INVALID (possible tampering)\n", runID)
	}
}

// renderSummary writes sorted entity totals to w (testable).
func renderSummary(w io.Writer, totals map[string]int) {
	if len(totals) == 0 {
		fmt.Fprintln(w, "No findings recorded in range.")
		return
	}
	types := make([]string, 0, len(totals))
	for entity := range totals {
		types = append(types, entity)
	}
	sort.Strings(types)
	for _, entity := range types {
		fmt.Fprintf(w, "  %-20s %d\n", entity, totals[entity])
	}
}

func writeExportCSV(w io.Writer, records []evidence.ExportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "timestamp", "source", "output", "medium", "state", "validation", "findings_total", "entity_counts", "input_hash", "output_hash", "duration_ms", "has_error"}); err != nil {
		return err
	}
	for i := range records {
		rec := &records[i]
		if err := cw.Write([]string{
			rec.ID, rec.Timestamp.Format(time.RFC3339), rec.Source, rec.Output, rec.Medium,
			rec.State, rec.Validation, strconv.Itoa(rec.FindingsTotal), rec.EntityCountsCSV(),
			rec.InputHash, rec.OutputHash, strconv.FormatInt(rec.DurationMS, 10),
			strconv.FormatBool(rec.HasError),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
