package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	redactotel "github.com/smart-redact/redactd/internal/otel"
)

var tracer = redactotel.Tracer("github.com/smart-redact/redactd/internal/detect")

// Tagger is an optional named-entity recognition backend. Implementations
// map general-purpose NER output onto findings; absence only reduces
// recall, it never blocks detection.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]TaggedEntity, error)
}

// TaggedEntity is one NER hit with byte offsets into the tagged text.
type TaggedEntity struct {
	Label string
	Start int
	End   int
	Text  string
}

// taggerLabelMap maps common NER labels to entity types. Labels outside
// the map are dropped: only person/org/location/date-time entities are
// PII-relevant here.
var taggerLabelMap = map[string]string{
	"PERSON": TypePerson,
	"PER":    TypePerson,
	"ORG":    TypeOrganization,
	"GPE":    TypeLocation,
	"LOC":    TypeLocation,
	"DATE":   TypeDateTime,
	"TIME":   TypeDateTime,
}

// modelConfidence is the fixed confidence for NER-derived findings.
const modelConfidence = 0.8

// ErrDetectionDegraded marks an optional detection method failing at
// runtime. It is logged, never returned: degraded detection reduces
// recall but must not fail a run.
var ErrDetectionDegraded = errors.New("optional detection method unavailable")

// Detector runs all configured detection methods over text. It is
// side-effect-free and deterministic for identical input; the optional
// tagger and analyzer are probed once at construction, and their
// availability is exposed via Status rather than re-probed per call.
type Detector struct {
	patterns []piiPattern
	tagger   Tagger
	analyzer *AnalyzerClient
	status   map[string]bool
}

// Option configures a Detector via the functional options pattern.
type Option func(*detectorConfig)

type detectorConfig struct {
	patternFile      string
	extraRecognizers []RecognizerConfig
	enabledEntities  []string
	disabledEntities []string
	tagger           Tagger
	analyzer         *AnalyzerClient
}

// WithPatternFile loads additional recognizers from an operator
// patterns.yaml file. A missing file is silently skipped.
func WithPatternFile(path string) Option {
	return func(c *detectorConfig) { c.patternFile = path }
}

// WithRecognizers adds in-memory recognizer definitions on top of the
// embedded defaults and the operator file.
func WithRecognizers(recs []RecognizerConfig) Option {
	return func(c *detectorConfig) { c.extraRecognizers = recs }
}

// WithEnabledEntities sets a whitelist of entity types.
func WithEnabledEntities(entities []string) Option {
	return func(c *detectorConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types.
func WithDisabledEntities(entities []string) Option {
	return func(c *detectorConfig) { c.disabledEntities = entities }
}

// WithTagger attaches an optional NER backend.
func WithTagger(t Tagger) Option {
	return func(c *detectorConfig) { c.tagger = t }
}

// WithAnalyzer attaches an optional analyzer-service client. The client
// is only used if its construction-time probe succeeded.
func WithAnalyzer(a *AnalyzerClient) Option {
	return func(c *detectorConfig) { c.analyzer = a }
}

// NewDetector builds a detector. Without options it uses the embedded
// default recognizers only.
func NewDetector(opts ...Option) (*Detector, error) {
	var cfg detectorConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var fileRecs []RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading operator pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = rf.Recognizers
		}
	}

	merged := MergeRecognizers(defaults, fileRecs, cfg.extraRecognizers)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := compilePatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	d := &Detector{
		patterns: compiled,
		tagger:   cfg.tagger,
		analyzer: cfg.analyzer,
	}
	d.status = map[string]bool{
		string(MethodPattern): true,
		string(MethodModel):   d.tagger != nil,
		string(MethodService): d.analyzer != nil && d.analyzer.Available(),
	}
	return d, nil
}

// MustNewDetector is like NewDetector but panics on error. Useful for
// zero-config startup where the embedded defaults must compile.
func MustNewDetector(opts ...Option) *Detector {
	d, err := NewDetector(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect.NewDetector: %v", err))
	}
	return d
}

// Status reports which detection methods are active. Unavailability of
// any optional method never blocks the pipeline.
func (d *Detector) Status() map[string]bool {
	out := make(map[string]bool, len(d.status))
	for k, v := range d.status {
		out[k] = v
	}
	return out
}

// Detect runs every active detection method over text and returns the
// resolved (non-overlapping, start-ordered) finding set. Empty or
// whitespace-only input yields an empty set.
func (d *Detector) Detect(ctx context.Context, text string) FindingSet {
	ctx, span := tracer.Start(ctx, "detect.detect")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return FindingSet{}
	}

	all := d.detectPattern(text)
	all = append(all, d.detectModel(ctx, text)...)
	all = append(all, d.detectService(ctx, text)...)

	resolved := Resolve(all)

	span.SetAttributes(
		attribute.Int("pii.candidates", len(all)),
		attribute.Int("pii.findings", len(resolved)),
	)
	return resolved
}

// detectPattern runs the compiled recognizer registry. All matches use
// the recognizer's configured score and MethodPattern.
func (d *Detector) detectPattern(text string) FindingSet {
	var findings FindingSet
	for _, p := range d.patterns {
		for _, m := range p.pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				EntityType: p.entity,
				Start:      m[0],
				End:        m[1],
				Text:       text[m[0]:m[1]],
				Confidence: p.score,
				Method:     MethodPattern,
			})
		}
	}
	return findings
}

// detectModel maps NER output into findings at fixed confidence 0.8.
// Tagger failures degrade to pattern-only detection; they never raise.
func (d *Detector) detectModel(ctx context.Context, text string) FindingSet {
	if d.tagger == nil {
		return nil
	}
	entities, err := d.tagger.Tag(ctx, text)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", ErrDetectionDegraded, err)).
			Msg("NER tagger unavailable, continuing with remaining detectors")
		return nil
	}
	var findings FindingSet
	for _, e := range entities {
		entityType, ok := taggerLabelMap[e.Label]
		if !ok {
			continue
		}
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		findings = append(findings, Finding{
			EntityType: entityType,
			Start:      e.Start,
			End:        e.End,
			Text:       text[e.Start:e.End],
			Confidence: modelConfidence,
			Method:     MethodModel,
		})
	}
	return findings
}

// detectService queries the analyzer service. Confidence is the
// service-reported score; failures degrade, they never raise.
func (d *Detector) detectService(ctx context.Context, text string) FindingSet {
	if d.analyzer == nil || !d.analyzer.Available() {
		return nil
	}
	results, err := d.analyzer.Analyze(ctx, text)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", ErrDetectionDegraded, err)).
			Msg("analyzer service failed, continuing with remaining detectors")
		return nil
	}
	var findings FindingSet
	for _, r := range results {
		if r.Start < 0 || r.End > len(text) || r.Start >= r.End {
			continue
		}
		findings = append(findings, Finding{
			EntityType: r.EntityType,
			Start:      r.Start,
			End:        r.End,
			Text:       text[r.Start:r.End],
			Confidence: r.Score,
			Method:     MethodService,
		})
	}
	return findings
}
