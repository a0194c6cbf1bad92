package cmd

import (
	"fmt"

	"github.com/smart-redact/redactd/internal/config"
	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/evidence"
	"github.com/smart-redact/redactd/internal/pipeline"
)

// buildDetector assembles a detector from the loaded configuration:
// embedded recognizers, the operator patterns file, entity filters, and
// the analyzer service when configured.
func buildDetector(cfg *config.Config) (*detect.Detector, error) {
	opts := []detect.Option{
		detect.WithEnabledEntities(cfg.EnabledEntities),
		detect.WithDisabledEntities(cfg.DisabledEntities),
	}
	if cfg.PatternsFile != "" {
		opts = append(opts, detect.WithPatternFile(cfg.PatternsFile))
	}
	if cfg.AnalyzerURL != "" {
		opts = append(opts, detect.WithAnalyzer(detect.NewAnalyzerClient(cfg.AnalyzerURL)))
	}
	return detect.NewDetector(opts...)
}

// loadConfigEnsured loads config and makes sure the data directories
// exist.
func loadConfigEnsured() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}
	return cfg, nil
}

// openEvidenceStore loads config, ensures the data directories exist,
// and opens the run store.
func openEvidenceStore() (*evidence.Store, *config.Config, error) {
	cfg, err := loadConfigEnsured()
	if err != nil {
		return nil, nil, err
	}
	store, err := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// buildPipeline wires a full pipeline with audit recording. The caller
// closes the returned store.
func buildPipeline() (*pipeline.Pipeline, *evidence.Store, *config.Config, error) {
	store, cfg, err := openEvidenceStore()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.WarnIfDefaultKey()

	detector, err := buildDetector(cfg)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("building detector: %w", err)
	}
	return pipeline.New(detector, pipeline.WithEvidence(store)), store, cfg, nil
}
