package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smart-redact/redactd/internal/detect"
)

func TestTokenSequencer(t *testing.T) {
	s := NewTokenSequencer()
	assert.Equal(t, "[SSN_1]", s.Next(detect.TypeSSN))
	assert.Equal(t, "[SSN_2]", s.Next(detect.TypeSSN))
	assert.Equal(t, "[EMAIL_ADDRESS_1]", s.Next(detect.TypeEmail))
	assert.Equal(t, "[SSN_3]", s.Next(detect.TypeSSN))

	// Fresh sequencer, fresh numbering.
	s2 := NewTokenSequencer()
	assert.Equal(t, "[SSN_1]", s2.Next(detect.TypeSSN))
}

func TestBlockToken(t *testing.T) {
	tests := []struct {
		entity  string
		covered string
		want    string
	}{
		{detect.TypeEmail, "a@b.co", "[Email Address:██████]"},
		{detect.TypeSSN, "123-45-6789", "[Ssn:███████████]"},
		{detect.TypePhone, strings.Repeat("5", 30), "[Phone Number:" + strings.Repeat("█", 20) + "]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BlockToken(tt.entity, tt.covered))
	}
}

func TestTitleizeEntity(t *testing.T) {
	assert.Equal(t, "Email Address", TitleizeEntity("EMAIL_ADDRESS"))
	assert.Equal(t, "Ssn", TitleizeEntity("SSN"))
	assert.Equal(t, "Date Of Birth", TitleizeEntity("DATE_OF_BIRTH"))
}

func TestByOffsets(t *testing.T) {
	text := "SSN: 123-45-6789, call 555-123-4567."
	findings := detect.FindingSet{
		{EntityType: detect.TypeSSN, Start: 5, End: 16, Text: "123-45-6789"},
		{EntityType: detect.TypePhone, Start: 23, End: 35, Text: "555-123-4567"},
	}

	got := ByOffsets(text, findings, Blocks)
	assert.Equal(t, "SSN: [Ssn:███████████], call [Phone Number:████████████].", got)
	assert.True(t, strings.HasPrefix(got, "SSN: "), "text before the match survives")
	assert.True(t, strings.HasSuffix(got, "."), "text after the match survives")
	assert.NotContains(t, got, "123-45-6789")
	assert.NotContains(t, got, "555-123-4567")
}

func TestByOffsetsSkipsOutOfRange(t *testing.T) {
	text := "short"
	findings := detect.FindingSet{
		{EntityType: "X", Start: 2, End: 99, Text: "ort"},
		{EntityType: "Y", Start: -1, End: 3, Text: "sho"},
	}
	assert.Equal(t, "short", ByOffsets(text, findings, Blocks))
}

func TestBySubstringReplacesAllOccurrences(t *testing.T) {
	text := "a@b.co wrote to a@b.co"
	findings := detect.FindingSet{
		{EntityType: detect.TypeEmail, Start: 0, End: 6, Text: "a@b.co"},
	}
	got := BySubstring(text, findings, Blocks)
	assert.NotContains(t, got, "a@b.co")
	assert.Equal(t, 2, strings.Count(got, "[Email Address:"))
}

type runeMeasurer struct{ w float64 }

func (m runeMeasurer) Width(s string) float64 { return float64(len(s)) * m.w }

func TestWrapLines(t *testing.T) {
	m := runeMeasurer{w: 1}

	lines := WrapLines("the quick brown fox", 9, m)
	assert.Equal(t, []string{"the quick", "brown fox"}, lines)

	lines = WrapLines("", 10, m)
	assert.Equal(t, []string{""}, lines)

	// A word wider than the line is split rather than overflowing.
	lines = WrapLines("abcdefghij", 4, m)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, lines)
	for _, l := range lines {
		assert.LessOrEqual(t, m.Width(l), 4.0)
	}
}

func TestCacheRedact(t *testing.T) {
	c := NewCache()
	text := "mail a@b.co now"
	findings := detect.FindingSet{{EntityType: detect.TypeEmail, Start: 5, End: 11, Text: "a@b.co"}}

	first := c.Redact(text, findings, Blocks)
	second := c.Redact(text, findings, Blocks)
	assert.Equal(t, first, second)
	assert.NotContains(t, first, "a@b.co")

	// Same text, different findings: distinct entries.
	other := c.Redact(text, nil, Blocks)
	assert.Equal(t, text, other)
}

func TestCacheWrap(t *testing.T) {
	c := NewCache()
	m := runeMeasurer{w: 1}

	a := c.Wrap("helv-11", 9, "the quick brown fox", m)
	b := c.Wrap("helv-11", 9, "the quick brown fox", m)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"the quick", "brown fox"}, a)
}
