// Package document adapts heterogeneous file formats to one
// extract/redact contract. Each adapter linearizes its medium into text
// plus layout spans for detection, then writes a redacted copy in the
// same format. Formats are dispatched by extension from a closed set;
// anything else is rejected up front rather than half-processed.
package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/layout"
)

// Medium classifies a document by redaction strategy, not by file
// extension. Several extensions can map to one medium.
type Medium string

const (
	MediumSpreadsheet Medium = "spreadsheet"
	MediumWord        Medium = "word"
	MediumPDF         Medium = "pdf"
	MediumImage       Medium = "image"
	MediumText        Medium = "text"
)

// ErrUnsupportedFormat is returned by Open for extensions outside the
// supported set.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Stats describes what an extraction walked over.
type Stats struct {
	Sheets  int  `json:"sheets,omitempty"`
	Cells   int  `json:"cells,omitempty"`
	Units   int  `json:"units,omitempty"`
	Pages   int  `json:"pages,omitempty"`
	OCRUsed bool `json:"ocr_used,omitempty"`
}

// Extraction is the linearized view of a document. Spans map byte
// ranges of Text back to medium positions; finding offsets are valid
// only against this exact Text value.
type Extraction struct {
	Text  string
	Spans []layout.Span
	Stats Stats
}

// Adapter is the per-medium contract. Extract is read-only; Redact
// writes a redacted copy to outPath and never touches the source file.
type Adapter interface {
	Medium() Medium
	Extract(ctx context.Context) (*Extraction, error)
	Redact(ctx context.Context, findings detect.FindingSet, outPath string) error
}

// Option configures adapter construction.
type Option func(*openConfig)

type openConfig struct {
	ocr         OCREngine
	pageWorkers int
}

// WithOCREngine sets the OCR backend for image documents. Without one,
// image adapters use the engine returned by DefaultOCREngine.
func WithOCREngine(e OCREngine) Option {
	return func(c *openConfig) { c.ocr = e }
}

// WithPageWorkers overrides the PDF page worker count.
func WithPageWorkers(n int) Option {
	return func(c *openConfig) {
		if n > 0 {
			c.pageWorkers = n
		}
	}
}

// Open builds the adapter for path based on its extension. The file is
// not read here; adapters open it lazily in Extract so that Open stays
// cheap for dispatch-only callers.
func Open(path string, opts ...Option) (Adapter, error) {
	cfg := openConfig{pageWorkers: defaultPageWorkers}
	for _, o := range opts {
		o(&cfg)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return &excelAdapter{path: path}, nil
	case ".docx":
		return &wordAdapter{path: path}, nil
	case ".pdf":
		return &pdfAdapter{path: path, workers: cfg.pageWorkers}, nil
	case ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp":
		ocr := cfg.ocr
		if ocr == nil {
			ocr = DefaultOCREngine()
		}
		return &imageAdapter{path: path, ocr: ocr}, nil
	case ".txt", ".md", ".csv", ".log", ".html", ".htm":
		return &textAdapter{path: path}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// OutputName derives the redacted copy's filename from the source name:
// report.xlsx becomes report_REDACTED_20260825_1430.xlsx. The timestamp
// keeps repeated runs from clobbering each other within the same
// minute's resolution.
func OutputName(path string, now time.Time) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_REDACTED_%s%s", stem, now.Format("20060102_1504"), ext))
}
