package redact

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/smart-redact/redactd/internal/detect"
)

// Measurer reports rendered string width in the unit of the target
// medium (points for PDF output). Implementations wrap the renderer's
// font metrics.
type Measurer interface {
	Width(s string) float64
}

// WrapLines greedily wraps text to maxWidth using the measurer. Words
// wider than a whole line are split by byte so no line ever exceeds the
// limit. Empty input yields a single empty line, preserving blank
// paragraphs in the output.
func WrapLines(text string, maxWidth float64, m Measurer) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := ""
	flush := func() {
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
	}

	for _, word := range words {
		if m.Width(word) > maxWidth {
			flush()
			for len(word) > 0 {
				cut := len(word)
				for cut > 1 && m.Width(word[:cut]) > maxWidth {
					cut--
				}
				lines = append(lines, word[:cut])
				word = word[cut:]
			}
			continue
		}
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if m.Width(candidate) <= maxWidth {
			current = candidate
		} else {
			flush()
			current = word
		}
	}
	flush()
	return lines
}

// Cache memoizes per-page redaction and line wrapping. Documents repeat
// headers, footers and boilerplate across pages; caching those results
// avoids re-splicing and re-measuring identical text. Safe for use from
// the concurrent page workers.
type Cache struct {
	mu       sync.Mutex
	redacted map[string]string
	wrapped  map[string][]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		redacted: make(map[string]string),
		wrapped:  make(map[string][]string),
	}
}

// fingerprint hashes text together with the findings that apply to it.
// Two pages with identical text but different findings never share an
// entry.
func fingerprint(text string, findings detect.FindingSet) string {
	h := sha256.New()
	h.Write([]byte(text))
	var buf [8]byte
	for _, f := range findings {
		h.Write([]byte{0})
		h.Write([]byte(f.EntityType))
		binary.LittleEndian.PutUint64(buf[:], uint64(f.Start))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(f.End))
		h.Write(buf[:])
		h.Write([]byte(f.Text))
	}
	return string(h.Sum(nil))
}

// Redact returns ByOffsets(text, findings, repl), memoized. The caller
// must use the same replacer for the cache's lifetime.
func (c *Cache) Redact(text string, findings detect.FindingSet, repl Replacer) string {
	key := fingerprint(text, findings)

	c.mu.Lock()
	if got, ok := c.redacted[key]; ok {
		c.mu.Unlock()
		return got
	}
	c.mu.Unlock()

	out := ByOffsets(text, findings, repl)

	c.mu.Lock()
	c.redacted[key] = out
	c.mu.Unlock()
	return out
}

// Wrap returns WrapLines(text, maxWidth, m), memoized per font. The
// fontKey must change whenever the measurer's metrics do.
func (c *Cache) Wrap(fontKey string, maxWidth float64, text string, m Measurer) []string {
	key := fmt.Sprintf("%s\x00%.3f\x00%x", fontKey, maxWidth, sha256.Sum256([]byte(text)))

	c.mu.Lock()
	if got, ok := c.wrapped[key]; ok {
		c.mu.Unlock()
		return got
	}
	c.mu.Unlock()

	lines := WrapLines(text, maxWidth, m)

	c.mu.Lock()
	c.wrapped[key] = lines
	c.mu.Unlock()
	return lines
}
