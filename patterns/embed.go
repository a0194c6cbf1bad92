// Package patterns provides the embedded default recognizer definitions.
// The YAML file uses a Presidio-compatible recognizer format; recognizer
// order is significant because the resolver keeps the first-seen finding
// on an exact confidence/method tie.
package patterns

import _ "embed"

//go:embed pii_builtin.yaml
var piiBuiltinYAML []byte

// PIIBuiltinYAML returns the embedded default PII recognizer definitions.
func PIIBuiltinYAML() []byte { return piiBuiltinYAML }
