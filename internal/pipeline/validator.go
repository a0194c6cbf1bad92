package pipeline

import (
	"context"
	"strings"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/document"
)

// ValidationReport is the outcome of the post-redaction check.
type ValidationReport struct {
	// Checked is false when the output medium could not be re-read
	// (an image with no OCR backend); the run is then marked advisory
	// rather than validated.
	Checked bool `json:"checked"`
	// Leaked lists the entity types whose matched text survived into
	// the output. Non-empty means the run must fail.
	Leaked []string `json:"leaked,omitempty"`
}

// Passed reports whether the output was checked and came back clean.
func (r *ValidationReport) Passed() bool {
	return r.Checked && len(r.Leaked) == 0
}

// validateOutput re-extracts the redacted output through the same
// adapter machinery that read the source and scans it for every
// finding's matched text, case-insensitively. Matching is substring
// based on purpose: a leak hidden by re-segmentation or markup changes
// still has to surface.
func validateOutput(ctx context.Context, outPath string, findings detect.FindingSet, opts ...document.Option) (*ValidationReport, error) {
	if len(findings) == 0 {
		return &ValidationReport{Checked: true}, nil
	}

	adapter, err := document.Open(outPath, opts...)
	if err != nil {
		return nil, err
	}

	ex, err := adapter.Extract(ctx)
	if err != nil {
		return nil, err
	}

	if adapter.Medium() == document.MediumImage && !ex.Stats.OCRUsed {
		return &ValidationReport{Checked: false}, nil
	}

	haystack := strings.ToLower(ex.Text)
	report := &ValidationReport{Checked: true}
	seen := map[string]bool{}
	for _, f := range findings {
		if f.Text == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(f.Text)) && !seen[f.EntityType] {
			seen[f.EntityType] = true
			report.Leaked = append(report.Leaked, f.EntityType)
		}
	}
	return report, nil
}
