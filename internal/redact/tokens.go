// Package redact produces replacement tokens for findings and splices
// them into text. Two token styles exist: sequenced inventory tokens for
// cell-oriented media and fixed-width block tokens for flow text, where
// the block filler keeps line geometry close to the original.
package redact

import (
	"fmt"
	"strings"
)

// blockFillerRune pads block tokens to approximate the covered text.
const blockFillerRune = '█'

// maxBlockFiller caps the filler so very long matches do not blow up
// line width.
const maxBlockFiller = 20

// TokenSequencer issues inventory tokens like [SSN_1], [SSN_2],
// [EMAIL_ADDRESS_1]. Counters are per entity type and per sequencer, so
// one sequencer covers one document and numbering restarts for the next.
// Not safe for concurrent use.
type TokenSequencer struct {
	counts map[string]int
}

// NewTokenSequencer returns a sequencer with all counters at zero.
func NewTokenSequencer() *TokenSequencer {
	return &TokenSequencer{counts: make(map[string]int)}
}

// Next returns the next token for entityType, incrementing its counter.
func (s *TokenSequencer) Next(entityType string) string {
	s.counts[entityType]++
	return fmt.Sprintf("[%s_%d]", entityType, s.counts[entityType])
}

// BlockToken renders a flow-text replacement of the form
// [Email Address:████]. The filler length is the covered text's length
// capped at 20, so the token's width stays near the original.
func BlockToken(entityType, covered string) string {
	n := len(covered)
	if n > maxBlockFiller {
		n = maxBlockFiller
	}
	return fmt.Sprintf("[%s:%s]", TitleizeEntity(entityType), strings.Repeat(string(blockFillerRune), n))
}

// TitleizeEntity converts an entity type constant to a display label:
// EMAIL_ADDRESS becomes "Email Address".
func TitleizeEntity(entityType string) string {
	words := strings.Split(strings.ToLower(entityType), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
