package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/document"
	"github.com/smart-redact/redactd/internal/evidence"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	}
}

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *evidence.Store) {
	t.Helper()
	store, err := evidence.NewStore(filepath.Join(t.TempDir(), "evidence.db"), testSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{WithEvidence(store), WithClock(fixedClock())}, opts...)
	return New(detect.MustNewDetector(), opts...), store
}

func TestScanTextDocument(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("Contact: john@example.com or 555-123-4567"), 0o600))

	p, _ := newTestPipeline(t)
	scan, err := p.Scan(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, document.MediumText, scan.Medium)
	require.Len(t, scan.Findings, 2)
	assert.Equal(t, detect.TypeEmail, scan.Findings[0].EntityType)
	assert.Equal(t, detect.TypePhone, scan.Findings[1].EntityType)
}

func TestScanUnsupportedFormat(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Scan(context.Background(), "archive.rar")

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
}

func TestProcessTextDocument(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("SSN: 123-45-6789 on file."), 0o600))

	p, store := newTestPipeline(t)
	result, err := p.Process(context.Background(), src, "")
	require.NoError(t, err)

	assert.Equal(t, StateSaved, result.State)
	assert.Equal(t, filepath.Join(dir, "notes_REDACTED_20260825_1430.txt"), result.Output)
	assert.Equal(t, map[string]int{detect.TypeSSN: 1}, result.TypeCounts)
	require.NotNil(t, result.Validation)
	assert.True(t, result.Validation.Passed())

	got, err := os.ReadFile(result.Output)
	require.NoError(t, err)
	assert.NotContains(t, string(got), "123-45-6789")
	assert.Contains(t, string(got), "[Ssn:")

	// The run is in the audit trail with a valid signature.
	require.NotEmpty(t, result.RunID)
	rec, err := store.Get(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "saved", rec.State)
	assert.Equal(t, evidence.ValidationPassed, rec.Validation)
	assert.Equal(t, 1, rec.EntityCounts[detect.TypeSSN])
	assert.True(t, strings.HasPrefix(rec.InputHash, "sha256:"))
	assert.True(t, strings.HasPrefix(rec.OutputHash, "sha256:"))

	ok, err := store.Verify(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessCleanDocumentStillWritesOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clean.txt")
	require.NoError(t, os.WriteFile(src, []byte("nothing sensitive here"), 0o600))

	p, _ := newTestPipeline(t)
	result, err := p.Process(context.Background(), src, "")
	require.NoError(t, err)

	assert.Equal(t, StateSaved, result.State)
	assert.Empty(t, result.Findings)
	got, err := os.ReadFile(result.Output)
	require.NoError(t, err)
	assert.Equal(t, "nothing sensitive here", string(got))
}

func TestProcessOutDir(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("mail a@b.co"), 0o600))

	p, _ := newTestPipeline(t)
	result, err := p.Process(context.Background(), src, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "notes_REDACTED_20260825_1430.txt"), result.Output)
}

func TestProcessValidationViolationRemovesOutput(t *testing.T) {
	// The SSN is split by markup: detection sees it in the stripped
	// text, but substring redaction over the raw HTML cannot find it.
	// The validation gate must catch the leak and fail the run.
	dir := t.TempDir()
	src := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(src, []byte("<p>SSN 123-45-<b></b>6789</p>"), 0o600))

	p, store := newTestPipeline(t)
	result, err := p.Process(context.Background(), src, "")

	var violation *ValidationViolation
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Leaked, detect.TypeSSN)
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, result.Output)

	// No redacted file is left behind.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.Equal(t, "page.html", entries[0].Name())

	// The failure itself is on the audit trail.
	runs, err := store.List(context.Background(), "", evidence.ValidationFailed, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].State)
	assert.Equal(t, 1, runs[0].LeakCount)
}

func TestProcessMissingFile(t *testing.T) {
	p, _ := newTestPipeline(t)
	result, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), "")

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, StateFailed, result.State)
}

func writeTestPDF(t *testing.T, path string, pages int) {
	t.Helper()
	doc := gofpdf.New("P", "pt", "Letter", "")
	for i := 1; i <= pages; i++ {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		doc.Text(54, 72, fmt.Sprintf("Page %d contact: user%d@example.com", i, i))
	}
	require.NoError(t, doc.OutputFileAndClose(path))
}

func TestProcessPDFMultiPage(t *testing.T) {
	// Six pages forces the concurrent page pool; output must still be
	// assembled in page order and come back clean.
	dir := t.TempDir()
	src := filepath.Join(dir, "report.pdf")
	writeTestPDF(t, src, 6)

	p, _ := newTestPipeline(t)
	scan, err := p.Scan(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 6, scan.Extraction.Stats.Pages)

	var prev int
	for i := 1; i <= 6; i++ {
		idx := strings.Index(scan.Extraction.Text, fmt.Sprintf("user%d@example.com", i))
		require.GreaterOrEqual(t, idx, 0, "page %d text missing", i)
		assert.Greater(t, idx, prev-1, "page %d out of order", i)
		prev = idx
	}
	assert.Len(t, scan.Findings, 6)

	result, err := p.Process(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, StateSaved, result.State)
	assert.True(t, result.Validation.Passed())

	out, err := document.Open(result.Output)
	require.NoError(t, err)
	ex, err := out.Extract(context.Background())
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		assert.NotContains(t, ex.Text, fmt.Sprintf("user%d@example.com", i))
	}
}

func TestValidationReportPassed(t *testing.T) {
	assert.True(t, (&ValidationReport{Checked: true}).Passed())
	assert.False(t, (&ValidationReport{Checked: false}).Passed())
	assert.False(t, (&ValidationReport{Checked: true, Leaked: []string{"SSN"}}).Passed())
}

func TestErrorTypes(t *testing.T) {
	inner := errors.New("boom")
	var err error = &ExtractionError{Path: "a.txt", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "a.txt")

	err = &RedactionError{Path: "b.txt", Err: inner}
	assert.ErrorIs(t, err, inner)

	v := &ValidationViolation{Output: "c.txt", Leaked: []string{"SSN", "EMAIL_ADDRESS"}}
	assert.Contains(t, v.Error(), "2 finding(s)")
	assert.Contains(t, v.Error(), "SSN")
}
