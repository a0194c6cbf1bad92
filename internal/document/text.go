package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/redact"
)

// htmlStripper reduces HTML to its visible text for detection. Strict
// policy: every tag goes, text nodes stay.
var htmlStripper = bluemonday.StrictPolicy()

// textAdapter handles plain-text formats (.txt, .md, .csv, .log) and
// HTML. For plain text the extracted string is the file content itself,
// so finding offsets splice directly. HTML is detected against its
// stripped text; offsets do not address the markup, so redaction falls
// back to substring replacement over the raw source.
type textAdapter struct {
	path string
}

func (a *textAdapter) Medium() Medium { return MediumText }

func (a *textAdapter) isHTML() bool {
	ext := strings.ToLower(filepath.Ext(a.path))
	return ext == ".html" || ext == ".htm"
}

func (a *textAdapter) Extract(ctx context.Context) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	text := string(data)
	if a.isHTML() {
		text = htmlStripper.Sanitize(text)
	}

	return &Extraction{
		Text:  text,
		Stats: Stats{Units: strings.Count(text, "\n") + 1},
	}, nil
}

func (a *textAdapter) Redact(ctx context.Context, findings detect.FindingSet, outPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("reading text file: %w", err)
	}
	content := string(data)

	var redacted string
	if !a.isHTML() && findings.Validate(content) == nil {
		redacted = redact.ByOffsets(content, findings, redact.Blocks)
	} else {
		redacted = redact.BySubstring(content, findings, redact.Blocks)
	}

	if err := os.WriteFile(outPath, []byte(redacted), 0o600); err != nil {
		return fmt.Errorf("writing redacted text file: %w", err)
	}
	return nil
}
