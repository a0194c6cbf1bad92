package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smart-redact/redactd/internal/doctor"
)

var (
	doctorJSON        bool
	doctorSkipNetwork bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (config, detection backends, storage)",
	Long: `Verifies the data directory is writable, the signing key and
patterns file are valid, which detection backends are available
(OCR, analyzer service), and that the evidence database is usable.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Emit the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipNetwork, "skip-network", false, "Skip analyzer connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "doctor")
	defer span.End()

	report := doctor.Run(ctx, doctor.Options{SkipNetwork: doctorSkipNetwork})

	out := cmd.OutOrStdout()
	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderDoctorReport(out, report)
	}

	if report.Status == "fail" {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}

// renderDoctorReport writes the report grouped by category (testable).
func renderDoctorReport(w io.Writer, report *doctor.Report) {
	category := ""
	for _, c := range report.Checks {
		if c.Category != category {
			category = c.Category
			fmt.Fprintf(w, "\n%s:\n", category)
		}
		mark := "✓"
		switch c.Status {
		case "warn":
			mark = "⚠"
		case "fail":
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s: %s\n", mark, c.Name, c.Message)
		if c.Fix != "" && c.Status != "pass" {
			fmt.Fprintf(w, "      fix: %s\n", c.Fix)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warning(s), %d failure(s)\n",
		report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
}
