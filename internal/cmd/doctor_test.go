package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smart-redact/redactd/internal/doctor"
)

func TestRenderDoctorReport(t *testing.T) {
	report := &doctor.Report{
		Status: "warn",
		Checks: []doctor.CheckResult{
			{Name: "data_dirs_writable", Category: "config", Status: "pass", Message: "/tmp/x (writable)"},
			{Name: "signing_key", Category: "config", Status: "warn", Message: "Using generated default", Fix: "Set REDACT_SIGNING_KEY for production"},
			{Name: "ocr_backend", Category: "detection", Status: "fail", Message: "Tesseract unavailable"},
		},
		Summary: doctor.Summary{Pass: 1, Warn: 1, Fail: 1},
	}

	var buf bytes.Buffer
	renderDoctorReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "config:")
	assert.Contains(t, out, "detection:")
	assert.Contains(t, out, "✓ data_dirs_writable")
	assert.Contains(t, out, "⚠ signing_key")
	assert.Contains(t, out, "fix: Set REDACT_SIGNING_KEY for production")
	assert.Contains(t, out, "✗ ocr_backend")
	assert.Contains(t, out, "1 passed, 1 warning(s), 1 failure(s)")
}
