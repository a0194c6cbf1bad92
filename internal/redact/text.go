package redact

import (
	"sort"
	"strings"

	"github.com/smart-redact/redactd/internal/detect"
)

// Replacer maps a finding to its replacement token.
type Replacer func(f detect.Finding) string

// Blocks is the standard flow-text replacer.
func Blocks(f detect.Finding) string {
	return BlockToken(f.EntityType, f.Text)
}

// ByOffsets splices a replacement for every finding into text using the
// findings' byte offsets. Splicing runs back to front so earlier offsets
// stay valid while later ones are rewritten. Findings must be
// non-overlapping; offsets out of range for text are skipped rather than
// corrupting the output.
func ByOffsets(text string, findings detect.FindingSet, repl Replacer) string {
	if len(findings) == 0 {
		return text
	}

	ordered := append(detect.FindingSet(nil), findings...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	for _, f := range ordered {
		if f.Start < 0 || f.End > len(out) || f.Start >= f.End {
			continue
		}
		out = out[:f.Start] + repl(f) + out[f.End:]
	}
	return out
}

// BySubstring replaces every occurrence of each finding's matched text.
// It is the fallback when offsets no longer address the target string,
// e.g. after per-unit extraction re-segmented the document. Broader than
// offset splicing: all occurrences go, which errs on the side of
// removing PII.
func BySubstring(text string, findings detect.FindingSet, repl Replacer) string {
	out := text
	for _, f := range findings {
		if f.Text == "" {
			continue
		}
		out = strings.ReplaceAll(out, f.Text, repl(f))
	}
	return out
}
