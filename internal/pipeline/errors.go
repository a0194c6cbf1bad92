package pipeline

import (
	"fmt"
	"strings"
)

// ExtractionError wraps failures while reading or linearizing a source
// document.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RedactionError wraps failures while writing the redacted copy.
type RedactionError struct {
	Path string
	Err  error
}

func (e *RedactionError) Error() string {
	return fmt.Sprintf("redacting %s: %v", e.Path, e.Err)
}

func (e *RedactionError) Unwrap() error { return e.Err }

// ValidationViolation is the hard failure raised when redacted output
// still contains detected text. Leaked holds the entity types that
// leaked, never the matched text.
type ValidationViolation struct {
	Output string
	Leaked []string
}

func (e *ValidationViolation) Error() string {
	return fmt.Sprintf("validation failed for %s: %d finding(s) still present (%s)",
		e.Output, len(e.Leaked), strings.Join(e.Leaked, ", "))
}
