package cmd

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-redact/redactd/internal/evidence"
)

func TestRenderAuditList(t *testing.T) {
	runs := []evidence.Record{
		{
			ID:            "run_abc12345",
			Timestamp:     time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC),
			Medium:        "pdf",
			Validation:    evidence.ValidationPassed,
			FindingsTotal: 3,
			DurationMS:    120,
		},
		{
			ID:         "run_def67890",
			Timestamp:  time.Date(2026, 8, 25, 14, 31, 0, 0, time.UTC),
			Medium:     "text",
			Validation: evidence.ValidationFailed,
			LeakCount:  1,
			Error:      "validation failed",
		},
	}

	var buf bytes.Buffer
	renderAuditList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "showing 2")
	assert.Contains(t, out, "✓ run_abc12345")
	assert.Contains(t, out, "3 finding(s)")
	assert.Contains(t, out, "✗ run_def67890")
	assert.Contains(t, out, "[ERROR]")
}

func TestRenderVerifyResult(t *testing.T) {
	var buf bytes.Buffer
	renderVerifyResult(&buf, "run_abc12345", true)
	assert.Contains(t, buf.String(), "VALID")

	buf.Reset()
	renderVerifyResult(&buf, "run_abc12345", false)
	assert.Contains(t, buf.String(), "INVALID")
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, map[string]int{"SSN": 2, "EMAIL_ADDRESS": 5})

	out := buf.String()
	assert.Contains(t, out, "EMAIL_ADDRESS")
	assert.Contains(t, out, "5")
	assert.Contains(t, out, "SSN")

	buf.Reset()
	renderSummary(&buf, nil)
	assert.Contains(t, buf.String(), "No findings recorded")
}

func TestWriteExportCSV(t *testing.T) {
	records := []evidence.ExportRecord{
		{
			ID:            "run_abc12345",
			Timestamp:     time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC),
			Source:        "in.pdf",
			Output:        "in_REDACTED_20260825_1430.pdf",
			Medium:        "pdf",
			State:         "saved",
			Validation:    evidence.ValidationPassed,
			FindingsTotal: 2,
			EntityCounts:  []string{"EMAIL_ADDRESS=1", "SSN=1"},
			InputHash:     "sha256:aa",
			OutputHash:    "sha256:bb",
			DurationMS:    240,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeExportCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "run_abc12345", rows[1][0])
	assert.Equal(t, "EMAIL_ADDRESS=1;SSN=1", rows[1][8])
	assert.Equal(t, "false", rows[1][12])
}
