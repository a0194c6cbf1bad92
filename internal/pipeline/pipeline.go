// Package pipeline drives a document through the full redaction run:
// extract, detect, redact, validate, and record. Detection methods may
// degrade without failing a run; the validation gate is the one stage
// that hard-fails, because output that still carries detected text must
// never be released.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/document"
	"github.com/smart-redact/redactd/internal/evidence"
	"github.com/smart-redact/redactd/internal/layout"
	redactotel "github.com/smart-redact/redactd/internal/otel"
)

var tracer = redactotel.Tracer("github.com/smart-redact/redactd/internal/pipeline")

// State is a run's lifecycle stage. Transitions only move forward:
// loaded, scanned, redacted, saved; failed is terminal from any stage.
type State string

const (
	StateLoaded   State = "loaded"
	StateScanned  State = "scanned"
	StateRedacted State = "redacted"
	StateSaved    State = "saved"
	StateFailed   State = "failed"
)

// Scan is the read-only half of a run: the linearized document and its
// resolved, position-stamped findings.
type Scan struct {
	Source     string
	Medium     document.Medium
	Extraction *document.Extraction
	Findings   detect.FindingSet

	adapter document.Adapter
}

// Result summarizes one completed (or failed) run.
type Result struct {
	RunID      string             `json:"run_id,omitempty"`
	Source     string             `json:"source"`
	Output     string             `json:"output,omitempty"`
	Medium     document.Medium    `json:"medium"`
	State      State              `json:"state"`
	Findings   detect.FindingSet  `json:"findings,omitempty"`
	TypeCounts map[string]int     `json:"type_counts,omitempty"`
	Stats      document.Stats     `json:"stats"`
	Methods    map[string]bool    `json:"methods"`
	Validation *ValidationReport  `json:"validation,omitempty"`
	Duration   time.Duration      `json:"-"`
	DurationMS int64              `json:"duration_ms"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvidence attaches an audit store; every run is then recorded.
func WithEvidence(store *evidence.Store) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithDocumentOptions passes options through to document.Open, e.g. an
// OCR engine override.
func WithDocumentOptions(opts ...document.Option) Option {
	return func(p *Pipeline) { p.docOpts = opts }
}

// WithClock overrides the timestamp source used for output naming.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs documents through scan, redact and validate.
type Pipeline struct {
	detector *detect.Detector
	store    *evidence.Store
	docOpts  []document.Option
	now      func() time.Time
}

// New builds a pipeline around a detector.
func New(detector *detect.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{detector: detector, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Methods reports the detector's active detection methods.
func (p *Pipeline) Methods() map[string]bool {
	return p.detector.Status()
}

// Scan extracts and detects without writing anything. This is the
// detect-only entry point for dry runs and the scan API.
func (p *Pipeline) Scan(ctx context.Context, path string) (*Scan, error) {
	ctx, span := tracer.Start(ctx, "pipeline.scan")
	defer span.End()

	adapter, err := document.Open(path, p.docOpts...)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	ex, err := adapter.Extract(ctx)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	findings := p.detector.Detect(ctx, ex.Text)
	findings = layout.Attach(findings, ex.Spans)

	span.SetAttributes(
		attribute.String("document.medium", string(adapter.Medium())),
		attribute.Int("pii.findings", len(findings)),
	)
	log.Debug().
		Str("source", path).
		Str("medium", string(adapter.Medium())).
		Int("findings", len(findings)).
		Msg("document scanned")

	return &Scan{
		Source:     path,
		Medium:     adapter.Medium(),
		Extraction: ex,
		Findings:   findings,
		adapter:    adapter,
	}, nil
}

// Process runs the full pipeline on one document and writes the
// redacted copy next to the source, or into outDir when non-empty. The
// copy is written even for clean documents, so callers always get an
// output they can release. A validation leak removes the output and
// fails the run.
func (p *Pipeline) Process(ctx context.Context, path, outDir string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()

	start := time.Now()
	result := &Result{
		Source:  path,
		State:   StateLoaded,
		Methods: p.detector.Status(),
	}

	scan, err := p.Scan(ctx, path)
	if err != nil {
		return p.fail(ctx, result, start, err)
	}
	result.Medium = scan.Medium
	result.Stats = scan.Extraction.Stats
	result.Findings = scan.Findings
	result.TypeCounts = scan.Findings.TypeCounts()
	result.State = StateScanned

	outPath := document.OutputName(path, p.now())
	if outDir != "" {
		outPath = filepath.Join(outDir, filepath.Base(outPath))
	}

	if err := scan.adapter.Redact(ctx, scan.Findings, outPath); err != nil {
		return p.fail(ctx, result, start, &RedactionError{Path: path, Err: err})
	}
	result.Output = outPath
	result.State = StateRedacted

	report, err := validateOutput(ctx, outPath, scan.Findings, p.docOpts...)
	if err != nil {
		os.Remove(outPath)
		return p.fail(ctx, result, start, &RedactionError{Path: outPath, Err: fmt.Errorf("re-reading output: %w", err)})
	}
	result.Validation = report

	if len(report.Leaked) > 0 {
		os.Remove(outPath)
		result.Output = ""
		return p.fail(ctx, result, start, &ValidationViolation{Output: outPath, Leaked: report.Leaked})
	}
	if !report.Checked {
		log.Warn().Str("output", outPath).Msg("output medium cannot be re-read, validation skipped")
	}

	result.State = StateSaved
	result.Duration = time.Since(start)
	result.DurationMS = result.Duration.Milliseconds()

	span.SetAttributes(
		attribute.String("run.state", string(result.State)),
		attribute.Int("pii.findings", len(result.Findings)),
	)
	log.Info().
		Str("source", path).
		Str("output", outPath).
		Int("findings", len(result.Findings)).
		Bool("validated", report.Checked).
		Dur("duration", result.Duration).
		Msg("document redacted")

	p.record(ctx, result, "")
	return result, nil
}

// fail finalizes a run as failed, records it, and returns err.
func (p *Pipeline) fail(ctx context.Context, result *Result, start time.Time, err error) (*Result, error) {
	result.State = StateFailed
	result.Duration = time.Since(start)
	result.DurationMS = result.Duration.Milliseconds()

	log.Warn().Err(err).Str("source", result.Source).Msg("redaction run failed")
	p.record(ctx, result, err.Error())
	return result, err
}

// record appends the run to the evidence store, when one is attached.
// Recording failures are logged and swallowed: losing an audit row must
// not turn a successful redaction into a failure.
func (p *Pipeline) record(ctx context.Context, result *Result, runErr string) {
	if p.store == nil {
		return
	}

	rec := &evidence.Record{
		Source:        result.Source,
		Output:        result.Output,
		Medium:        string(result.Medium),
		State:         string(result.State),
		EntityCounts:  result.TypeCounts,
		FindingsTotal: len(result.Findings),
		Methods:       result.Methods,
		Validation:    evidence.ValidationSkipped,
		DurationMS:    result.DurationMS,
		Error:         runErr,
	}
	if result.Validation != nil {
		switch {
		case result.Validation.Passed():
			rec.Validation = evidence.ValidationPassed
		case len(result.Validation.Leaked) > 0:
			rec.Validation = evidence.ValidationFailed
			rec.LeakCount = len(result.Validation.Leaked)
		}
	}

	if h, err := evidence.HashFile(result.Source); err == nil {
		rec.InputHash = h
	}
	if result.Output != "" {
		if h, err := evidence.HashFile(result.Output); err == nil {
			rec.OutputHash = h
		}
	}

	if err := p.store.Append(ctx, rec); err != nil {
		log.Warn().Err(err).Str("source", result.Source).Msg("failed to record run evidence")
		return
	}
	result.RunID = rec.ID
}
