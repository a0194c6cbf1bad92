package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRecognizers(t *testing.T) {
	recs, err := DefaultRecognizers()
	require.NoError(t, err)
	require.Len(t, recs, 9)

	// Registry order decides first-seen ties, so it is part of the contract.
	assert.Equal(t, "EmailRecognizer", recs[0].Name)
	assert.Equal(t, TypeEmail, recs[0].SupportedEntity)
	assert.Equal(t, "LicensePlateRecognizer", recs[8].Name)

	compiled, err := compilePatterns(recs)
	require.NoError(t, err)
	assert.NotEmpty(t, compiled)
	for _, p := range compiled {
		assert.Equal(t, 0.9, p.score, "builtin %s", p.name)
	}
}

func TestMergeRecognizersLayering(t *testing.T) {
	defaults := []RecognizerConfig{
		{Name: "EmailRecognizer", SupportedEntity: TypeEmail},
		{Name: "SSNRecognizer", SupportedEntity: TypeSSN},
	}
	overrides := []RecognizerConfig{
		{Name: "SSNRecognizer", SupportedEntity: TypeSSN, Patterns: []PatternConfig{{Name: "strict", Regex: `\d{3}-\d{2}-\d{4}`, Score: 0.95}}},
		{Name: "BadgeRecognizer", SupportedEntity: "BADGE"},
	}

	merged := MergeRecognizers(defaults, overrides)
	require.Len(t, merged, 3)
	assert.Equal(t, "EmailRecognizer", merged[0].Name)
	assert.Equal(t, "SSNRecognizer", merged[1].Name)
	assert.Len(t, merged[1].Patterns, 1, "override must replace the default in place")
	assert.Equal(t, "BadgeRecognizer", merged[2].Name)
}

func TestFilterByEntities(t *testing.T) {
	recs := []RecognizerConfig{
		{Name: "a", SupportedEntity: TypeEmail},
		{Name: "b", SupportedEntity: TypeSSN},
		{Name: "c", SupportedEntity: TypePhone},
	}

	got := FilterByEntities(recs, []string{TypeEmail, TypeSSN}, nil)
	require.Len(t, got, 2)

	got = FilterByEntities(recs, nil, []string{TypeSSN})
	require.Len(t, got, 2)
	for _, r := range got {
		assert.NotEqual(t, TypeSSN, r.SupportedEntity)
	}

	got = FilterByEntities(recs, []string{TypeEmail, TypeSSN}, []string{TypeSSN})
	require.Len(t, got, 1)
	assert.Equal(t, TypeEmail, got[0].SupportedEntity)
}

func TestCompilePatternsSkipsDisabled(t *testing.T) {
	off := false
	recs := []RecognizerConfig{
		{Name: "on", SupportedEntity: "A", Patterns: []PatternConfig{{Name: "p", Regex: `a+`, Score: 0.9}}},
		{Name: "off", SupportedEntity: "B", Enabled: &off, Patterns: []PatternConfig{{Name: "p", Regex: `b+`, Score: 0.9}}},
	}

	compiled, err := compilePatterns(recs)
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "on", compiled[0].name)
}

func TestCompilePatternsRejectsBadRegex(t *testing.T) {
	recs := []RecognizerConfig{
		{Name: "broken", SupportedEntity: "A", Patterns: []PatternConfig{{Name: "p", Regex: `(unclosed`, Score: 0.9}}},
	}
	_, err := compilePatterns(recs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestParseRecognizerFileRejectsGarbage(t *testing.T) {
	_, err := ParseRecognizerFile([]byte("{not yaml: ["))
	assert.Error(t, err)
}
