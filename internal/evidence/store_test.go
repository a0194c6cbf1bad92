package evidence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "evidence.db"), testSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord() *Record {
	return &Record{
		Source:        "/in/report.xlsx",
		Output:        "/in/report_REDACTED_20260825_1430.xlsx",
		Medium:        "spreadsheet",
		State:         "saved",
		InputHash:     "sha256:aaaa",
		OutputHash:    "sha256:bbbb",
		EntityCounts:  map[string]int{"SSN": 2, "EMAIL_ADDRESS": 1},
		FindingsTotal: 3,
		Methods:       map[string]bool{"pattern": true, "model": false, "service": false},
		Validation:    ValidationPassed,
		DurationMS:    412,
	}
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Append(ctx, rec))
	assert.True(t, strings.HasPrefix(rec.ID, "run_"))
	assert.True(t, strings.HasPrefix(rec.Signature, "hmac-sha256:"))
	assert.False(t, rec.Timestamp.IsZero())

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Source, got.Source)
	assert.Equal(t, 3, got.FindingsTotal)
	assert.Equal(t, map[string]int{"SSN": 2, "EMAIL_ADDRESS": 1}, got.EntityCounts)
	assert.Equal(t, ValidationPassed, got.Validation)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "run_nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Append(ctx, rec))

	ok, err := s.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Tamper with the stored JSON; verification must fail.
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET record_json = replace(record_json, '"findings_total":3', '"findings_total":0') WHERE id = ?`,
		rec.ID)
	require.NoError(t, err)

	ok, err = s.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleRecord()
	require.NoError(t, s.Append(ctx, a))

	b := sampleRecord()
	b.Medium = "pdf"
	b.Validation = ValidationFailed
	require.NoError(t, s.Append(ctx, b))

	all, err := s.List(ctx, "", "", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pdfs, err := s.List(ctx, "pdf", "", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, pdfs, 1)
	assert.Equal(t, b.ID, pdfs[0].ID)

	failed, err := s.List(ctx, "", ValidationFailed, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)

	limited, err := s.List(ctx, "", "", time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, sampleRecord()))
	other := sampleRecord()
	other.EntityCounts = map[string]int{"SSN": 1, "PHONE_NUMBER": 4}
	require.NoError(t, s.Append(ctx, other))

	totals, err := s.Summary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, totals["SSN"])
	assert.Equal(t, 1, totals["EMAIL_ADDRESS"])
	assert.Equal(t, 4, totals["PHONE_NUMBER"])
}

func TestDeleteOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := sampleRecord()
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Append(ctx, old))
	require.NoError(t, s.Append(ctx, sampleRecord()))

	n, err := s.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := s.List(ctx, "", "", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSignerKeyValidation(t *testing.T) {
	_, err := NewSigner("too-short")
	require.Error(t, err)

	_, err = NewSigner(testSigningKey)
	require.NoError(t, err)

	// 64 hex chars decode to 32 bytes.
	_, err = NewSigner(strings.Repeat("ab", 32))
	require.NoError(t, err)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h)

	_, err = HashFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestExportRecord(t *testing.T) {
	rec := sampleRecord()
	rec.ID = "run_x"
	rec.Error = "boom"

	exp := ToExportRecord(rec)
	assert.Equal(t, "run_x", exp.ID)
	assert.True(t, exp.HasError)
	assert.Equal(t, []string{"EMAIL_ADDRESS=1", "SSN=2"}, exp.EntityCounts)
	assert.Equal(t, "EMAIL_ADDRESS=1;SSN=2", exp.EntityCountsCSV())
}
