// Package layout maps byte ranges of a document's linearized text back
// to medium positions: spreadsheet cells, flow-text units, page regions.
// Adapters record spans while extracting; Attach then stamps each
// finding with the position of the span containing it.
package layout

import (
	"strings"

	"github.com/smart-redact/redactd/internal/detect"
)

// BoxSpan ties a sub-range of a span's text to a bounding box. Start and
// End are byte offsets relative to the span, half-open.
type BoxSpan struct {
	Start int
	End   int
	Box   detect.Box
}

// Span maps one contiguous byte range of the linearized text to a
// medium position. Spans never overlap and are recorded in text order.
type Span struct {
	Start    int
	End      int
	Position detect.Position
	Boxes    []BoxSpan
}

// Contains reports whether the finding range [start,end) lies entirely
// within the span.
func (s Span) Contains(start, end int) bool {
	return start >= s.Start && end <= s.End
}

// boxFor unions the boxes of all box spans overlapping [start,end),
// offsets relative to the span. Returns nil when no box span overlaps.
func (s Span) boxFor(start, end int) *detect.Box {
	var union *detect.Box
	for _, bs := range s.Boxes {
		if bs.End <= start || bs.Start >= end {
			continue
		}
		if union == nil {
			b := bs.Box
			union = &b
		} else {
			b := union.Union(bs.Box)
			union = &b
		}
	}
	return union
}

// Attach stamps each finding with the position of the span that fully
// contains its byte range. A finding contained by no span (or straddling
// a span boundary, which only happens across the separators adapters
// insert between units) keeps a nil position and is redacted by
// substring fallback. Page positions additionally get the union of the
// character boxes overlapping the finding, when the span carries them.
//
// Spans must be sorted by Start; findings are matched by binary-search
// style scan since both sides are ordered.
func Attach(findings detect.FindingSet, spans []Span) detect.FindingSet {
	out := append(detect.FindingSet(nil), findings...)
	si := 0
	for i := range out {
		f := &out[i]
		for si < len(spans) && spans[si].End < f.End {
			si++
		}
		if si >= len(spans) || !spans[si].Contains(f.Start, f.End) {
			continue
		}
		span := spans[si]
		pos := span.Position
		if pos.Kind == detect.PositionPage {
			if box := span.boxFor(f.Start-span.Start, f.End-span.Start); box != nil {
				pos.Box = box
			}
		}
		f.Position = &pos
	}
	return out
}

// Builder accumulates linearized text and the spans describing it.
// Adapters call Unit once per extracted unit and Sep for the separators
// between them; separators are part of the text but belong to no span.
type Builder struct {
	text  strings.Builder
	spans []Span
}

// Unit appends text as one span at the given position.
func (b *Builder) Unit(text string, pos detect.Position) {
	b.UnitBoxes(text, pos, nil)
}

// UnitBoxes appends text as one span with per-range bounding boxes.
func (b *Builder) UnitBoxes(text string, pos detect.Position, boxes []BoxSpan) {
	if text == "" {
		return
	}
	start := b.text.Len()
	b.text.WriteString(text)
	b.spans = append(b.spans, Span{
		Start:    start,
		End:      b.text.Len(),
		Position: pos,
		Boxes:    boxes,
	})
}

// Sep appends separator text covered by no span.
func (b *Builder) Sep(s string) {
	b.text.WriteString(s)
}

// Text returns the accumulated linearized text.
func (b *Builder) Text() string { return b.text.String() }

// Spans returns the recorded spans in text order.
func (b *Builder) Spans() []Span { return b.spans }
