// Package detect locates PII in text. Detection combines a compiled
// regex recognizer registry (always available), an optional named-entity
// tagger, and an optional analyzer service; overlapping candidates are
// merged into a single authoritative finding set by Resolve.
package detect

import (
	"fmt"
	"sort"
)

// Well-known entity types. The set is open: recognizer files, taggers
// and analyzer services may introduce additional types.
const (
	TypeEmail        = "EMAIL_ADDRESS"
	TypePhone        = "PHONE_NUMBER"
	TypeSSN          = "SSN"
	TypeCreditCard   = "CREDIT_CARD"
	TypeIPAddress    = "IP_ADDRESS"
	TypeURL          = "URL"
	TypeDateOfBirth  = "DATE_OF_BIRTH"
	TypePassport     = "PASSPORT_NUMBER"
	TypeLicensePlate = "LICENSE_PLATE"
	TypePerson       = "PERSON"
	TypeOrganization = "ORGANIZATION"
	TypeLocation     = "LOCATION"
	TypeDateTime     = "DATE_TIME"
)

// Method identifies which detector produced a finding. It is used only
// as a tie-break during resolution, never for correctness.
type Method string

const (
	MethodPattern Method = "pattern"
	MethodModel   Method = "model"
	MethodService Method = "service"
)

// Priority orders methods for tie-breaking: service > model > pattern.
func (m Method) Priority() int {
	switch m {
	case MethodService:
		return 3
	case MethodModel:
		return 2
	case MethodPattern:
		return 1
	}
	return 0
}

// Box is an axis-aligned bounding box in document units (PDF points or
// image pixels), origin per the producing medium.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Union returns the smallest box covering both b and o.
func (b Box) Union(o Box) Box {
	x0, y0 := min(b.X, o.X), min(b.Y, o.Y)
	x1 := max(b.X+b.W, o.X+o.W)
	y1 := max(b.Y+b.H, o.Y+o.H)
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// PositionKind discriminates the medium-specific locator variants.
type PositionKind string

const (
	// PositionNone means no medium position is attached; redaction
	// falls back to substring matching.
	PositionNone PositionKind = ""
	// PositionCell locates a spreadsheet cell (Sheet + Cell).
	PositionCell PositionKind = "cell"
	// PositionUnit locates a flow-text unit (paragraph or table cell)
	// by document-order index.
	PositionUnit PositionKind = "unit"
	// PositionPage locates a page region (Page + optional Box).
	PositionPage PositionKind = "page"
)

// Position is a medium-specific locator for a finding.
type Position struct {
	Kind  PositionKind `json:"kind"`
	Sheet string       `json:"sheet,omitempty"`
	Cell  string       `json:"cell,omitempty"`
	Unit  int          `json:"unit,omitempty"`
	Page  int          `json:"page,omitempty"`
	Box   *Box         `json:"box,omitempty"`
}

// Finding is a single detected PII occurrence. Start and End are
// half-open byte offsets into the exact source string the detector ran
// against; any re-encoding of that string invalidates them. Text is the
// matched substring and remains usable for substring-based redaction
// after offset invalidation.
type Finding struct {
	EntityType string    `json:"entity_type"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Method     Method    `json:"detection_method"`
	Position   *Position `json:"position,omitempty"`
}

// FindingSet is an ordered collection of findings for one source text.
type FindingSet []Finding

// Validate checks the offset invariants of every finding against the
// source text it was detected in.
func (fs FindingSet) Validate(source string) error {
	for i, f := range fs {
		if f.Start < 0 || f.Start >= f.End || f.End > len(source) {
			return fmt.Errorf("finding %d (%s): offsets [%d,%d) out of range for %d-byte source",
				i, f.EntityType, f.Start, f.End, len(source))
		}
		if source[f.Start:f.End] != f.Text {
			return fmt.Errorf("finding %d (%s): text %q does not match source[%d:%d]",
				i, f.EntityType, f.Text, f.Start, f.End)
		}
	}
	return nil
}

// TypeCounts returns the number of findings per entity type.
func (fs FindingSet) TypeCounts() map[string]int {
	counts := make(map[string]int, len(fs))
	for _, f := range fs {
		counts[f.EntityType]++
	}
	return counts
}

// Sorted returns a copy ordered by start offset ascending. The sort is
// stable so equal-start findings keep detector order (pattern file
// order, then model, then service).
func (fs FindingSet) Sorted() FindingSet {
	out := append(FindingSet(nil), fs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
