package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternDetection(t *testing.T) {
	d := MustNewDetector()
	ctx := context.Background()

	tests := []struct {
		name      string
		text      string
		wantTypes []string
	}{
		{
			name:      "no PII",
			text:      "hello world, nothing sensitive here",
			wantTypes: nil,
		},
		{
			name:      "email address",
			text:      "Contact me at user@example.com please",
			wantTypes: []string{TypeEmail},
		},
		{
			name:      "phone number with separators",
			text:      "Call (555) 123-4567 tomorrow",
			wantTypes: []string{TypePhone},
		},
		{
			name:      "ssn with dashes",
			text:      "SSN 123-45-6789 on file",
			wantTypes: []string{TypeSSN},
		},
		{
			name:      "credit card",
			text:      "card 4111-1111-1111-1111 charged",
			wantTypes: []string{TypeCreditCard},
		},
		{
			name:      "ip address permissive",
			text:      "seen from 999.999.999.999 yesterday",
			wantTypes: []string{TypeIPAddress},
		},
		{
			name:      "url",
			text:      "docs at https://example.com/a%20b",
			wantTypes: []string{TypeURL},
		},
		{
			name:      "date of birth",
			text:      "DOB: 01/15/1987",
			wantTypes: []string{TypeDateOfBirth},
		},
		{
			name:      "passport number",
			text:      "passport AB1234567 issued",
			wantTypes: []string{TypePassport},
		},
		{
			name:      "license plate",
			text:      "plate ABC-1234 towed",
			wantTypes: []string{TypeLicensePlate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := d.Detect(ctx, tt.text)
			require.NoError(t, findings.Validate(tt.text))

			got := map[string]bool{}
			for _, f := range findings {
				got[f.EntityType] = true
				assert.Equal(t, MethodPattern, f.Method)
				assert.Equal(t, 0.9, f.Confidence)
			}
			for _, want := range tt.wantTypes {
				assert.True(t, got[want], "expected %s in %v", want, findings)
			}
			if tt.wantTypes == nil {
				assert.Empty(t, findings)
			}
		})
	}
}

func TestDetectEmptyInput(t *testing.T) {
	d := MustNewDetector()
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		findings := d.Detect(ctx, text)
		assert.Empty(t, findings)
		assert.NotNil(t, findings)
	}
}

func TestDetectEmailAndPhoneScenario(t *testing.T) {
	d := MustNewDetector()
	text := "Contact: john@example.com or 555-123-4567"

	findings := d.Detect(context.Background(), text)
	require.NoError(t, findings.Validate(text))
	require.Len(t, findings, 2)

	assert.Equal(t, TypeEmail, findings[0].EntityType)
	assert.Equal(t, "john@example.com", findings[0].Text)
	assert.Equal(t, TypePhone, findings[1].EntityType)
	assert.Equal(t, "555-123-4567", findings[1].Text)
	assert.LessOrEqual(t, findings[0].End, findings[1].Start)
}

func TestDetectorStatus(t *testing.T) {
	d := MustNewDetector()
	status := d.Status()
	assert.True(t, status["pattern"])
	assert.False(t, status["model"])
	assert.False(t, status["service"])
}

type fakeTagger struct {
	entities []TaggedEntity
	err      error
}

func (f *fakeTagger) Tag(_ context.Context, _ string) ([]TaggedEntity, error) {
	return f.entities, f.err
}

func TestModelDetection(t *testing.T) {
	text := "John Smith works at Acme Corp"
	d := MustNewDetector(WithTagger(&fakeTagger{entities: []TaggedEntity{
		{Label: "PERSON", Start: 0, End: 10, Text: "John Smith"},
		{Label: "ORG", Start: 20, End: 29, Text: "Acme Corp"},
		{Label: "CARDINAL", Start: 0, End: 4}, // not PII-relevant, dropped
	}}))

	assert.True(t, d.Status()["model"])

	findings := d.Detect(context.Background(), text)
	require.Len(t, findings, 2)
	assert.Equal(t, TypePerson, findings[0].EntityType)
	assert.Equal(t, MethodModel, findings[0].Method)
	assert.Equal(t, 0.8, findings[0].Confidence)
	assert.Equal(t, TypeOrganization, findings[1].EntityType)
}

func TestModelFailureDegradesGracefully(t *testing.T) {
	d := MustNewDetector(WithTagger(&fakeTagger{err: errors.New("model not loaded")}))

	findings := d.Detect(context.Background(), "reach me at jane@co.com")
	require.Len(t, findings, 1)
	assert.Equal(t, TypeEmail, findings[0].EntityType)
}

func TestOperatorPatternFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	yaml := `recognizers:
  - name: EmployeeIDRecognizer
    supported_entity: EMPLOYEE_ID
    patterns:
      - name: emp_id
        regex: '\bEMP-[0-9]{5}\b'
        score: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	d, err := NewDetector(WithPatternFile(path))
	require.NoError(t, err)

	findings := d.Detect(context.Background(), "badge EMP-00042 active")
	require.Len(t, findings, 1)
	assert.Equal(t, "EMPLOYEE_ID", findings[0].EntityType)
}

func TestMissingPatternFileIsNoOp(t *testing.T) {
	d, err := NewDetector(WithPatternFile(filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestEntityFilters(t *testing.T) {
	d, err := NewDetector(WithDisabledEntities([]string{TypeSSN}))
	require.NoError(t, err)

	// 123-45-6789 still matches the phone shape, but must not be an SSN.
	findings := d.Detect(context.Background(), "id 123-45-6789 end")
	for _, f := range findings {
		assert.NotEqual(t, TypeSSN, f.EntityType)
	}

	d, err = NewDetector(WithEnabledEntities([]string{TypeEmail}))
	require.NoError(t, err)
	findings = d.Detect(context.Background(), "a@b.co and 123-45-6789")
	require.Len(t, findings, 1)
	assert.Equal(t, TypeEmail, findings[0].EntityType)
}
