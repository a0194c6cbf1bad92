// Package doctor provides health checks for redactd configuration and
// runtime dependencies. Used by `redactd doctor` to explain why a
// detection method or medium is degraded before anyone discovers it
// mid-redaction.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/smart-redact/redactd/internal/config"
	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/document"
	"github.com/smart-redact/redactd/internal/evidence"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	SkipNetwork bool // Skip analyzer connectivity checks (for CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	report.Checks = append(report.Checks, checkConfig()...)
	report.Checks = append(report.Checks, checkDetection(ctx, opts)...)
	report.Checks = append(report.Checks, checkSystem(ctx)...)

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkConfig() []CheckResult {
	var results []CheckResult

	cfg, err := config.Load()
	if err != nil {
		return []CheckResult{{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check REDACT_DATA_DIR and config file",
		}}
	}

	results = append(results, checkDataDirs(cfg))
	results = append(results, checkSigningKey(cfg))
	results = append(results, checkEvidenceDB(cfg))
	results = append(results, checkPatternsFile(cfg))
	return results
}

func checkDataDirs(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDirs(); err != nil {
		return CheckResult{
			Name: "data_dirs_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dirs_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dirs_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: "warn",
			Message: "Using generated default", Fix: "Set REDACT_SIGNING_KEY for production",
		}
	}
	return CheckResult{
		Name: "signing_key", Category: "config", Status: "pass", Message: "Configured",
	}
}

func checkEvidenceDB(cfg *config.Config) CheckResult {
	store, err := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "evidence_db", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%v", err),
		}
	}
	_ = store.Close()
	return CheckResult{
		Name: "evidence_db", Category: "config", Status: "pass",
		Message: cfg.EvidenceDBPath(),
	}
}

func checkPatternsFile(cfg *config.Config) CheckResult {
	if cfg.PatternsFile == "" {
		return CheckResult{
			Name: "patterns_file", Category: "config", Status: "pass",
			Message: "Built-in recognizers only",
		}
	}
	rf, err := detect.LoadRecognizerFile(cfg.PatternsFile)
	if err != nil {
		return CheckResult{
			Name: "patterns_file", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.PatternsFile, err),
			Fix:     "Check YAML syntax in " + cfg.PatternsFile,
		}
	}
	if rf == nil {
		return CheckResult{
			Name: "patterns_file", Category: "config", Status: "warn",
			Message: fmt.Sprintf("%s — file not found", cfg.PatternsFile),
			Fix:     "Create the file or unset REDACT_PATTERNS_FILE",
		}
	}
	return CheckResult{
		Name: "patterns_file", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (%d recognizer(s))", cfg.PatternsFile, len(rf.Recognizers)),
	}
}

// checkDetection reports the state of each optional detection backend.
// Pattern detection is always available; OCR and the analyzer service
// are the ones that quietly degrade.
func checkDetection(ctx context.Context, opts Options) []CheckResult {
	var results []CheckResult

	results = append(results, checkOCR())

	cfg, err := config.Load()
	if err != nil || cfg.AnalyzerURL == "" {
		results = append(results, CheckResult{
			Name: "analyzer_service", Category: "detection", Status: "pass",
			Message: "Not configured (pattern detection only)",
		})
		return results
	}
	if opts.SkipNetwork {
		return results
	}
	results = append(results, checkAnalyzer(ctx, cfg.AnalyzerURL))
	return results
}

func checkOCR() CheckResult {
	if document.DefaultOCREngine().Available() {
		return CheckResult{
			Name: "ocr_backend", Category: "detection", Status: "pass",
			Message: "Tesseract available",
		}
	}
	return CheckResult{
		Name: "ocr_backend", Category: "detection", Status: "warn",
		Message: "Tesseract unavailable — image documents will not be scanned",
		Fix:     "Install tesseract-ocr and at least one language pack",
	}
}

func checkAnalyzer(ctx context.Context, baseURL string) CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return CheckResult{
			Name: "analyzer_service", Category: "detection", Status: "fail",
			Message: fmt.Sprintf("Invalid URL: %v", err),
			Fix:     "Check REDACT_ANALYZER_URL",
		}
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name: "analyzer_service", Category: "detection", Status: "warn",
			Message: fmt.Sprintf("Connection failed: %v — service detection disabled", err),
			Fix:     "Check network connectivity and REDACT_ANALYZER_URL",
		}
	}
	resp.Body.Close()
	return CheckResult{
		Name: "analyzer_service", Category: "detection", Status: "pass",
		Message: fmt.Sprintf("%s — %dms", baseURL, latency.Milliseconds()),
	}
}

func checkSystem(ctx context.Context) []CheckResult {
	var results []CheckResult

	cfg, err := config.Load()
	if err != nil {
		return results
	}

	evDir := filepath.Dir(cfg.EvidenceDBPath())
	if info, statErr := os.Stat(evDir); statErr == nil && info.IsDir() {
		testPath := filepath.Join(evDir, ".doctor-space-test")
		data := make([]byte, 1024)
		if writeErr := os.WriteFile(testPath, data, 0o600); writeErr != nil {
			results = append(results, CheckResult{
				Name: "disk_space", Category: "system", Status: "warn",
				Message: "Cannot write test file to data directory",
			})
		} else {
			_ = os.Remove(testPath)
			results = append(results, CheckResult{
				Name: "disk_space", Category: "system", Status: "pass",
				Message: evDir,
			})
		}
	}

	store, storeErr := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if storeErr == nil {
		defer store.Close()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		count, countErr := store.Count(ctx)
		if countErr == nil {
			fi, _ := os.Stat(cfg.EvidenceDBPath())
			sizeStr := "unknown"
			if fi != nil {
				sizeMB := float64(fi.Size()) / (1024 * 1024)
				sizeStr = fmt.Sprintf("%.1f MB", sizeMB)
			}
			results = append(results, CheckResult{
				Name: "evidence_stats", Category: "system", Status: "pass",
				Message: fmt.Sprintf("%d run(s), %s", count, sizeStr),
			})
		}
	}

	return results
}
