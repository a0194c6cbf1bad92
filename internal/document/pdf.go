package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/phpdave11/gofpdf"
	"golang.org/x/sync/errgroup"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/layout"
	"github.com/smart-redact/redactd/internal/redact"
)

// defaultPageWorkers bounds the PDF page pool. Extraction parallelizes
// only past this many pages; below that the goroutine overhead wins.
const defaultPageWorkers = 4

// Letter-size fallback for pages without a resolvable MediaBox.
const (
	letterWidthPt  = 612.0
	letterHeightPt = 792.0
)

type pdfFragment struct {
	text     string
	x, y     float64 // baseline origin, PDF bottom-up coordinates
	width    float64
	fontSize float64
}

type pdfPage struct {
	width  float64
	height float64
	frags  []pdfFragment
}

// pdfAdapter handles .pdf files. Extraction walks positioned text
// fragments per page; redaction re-renders every page from those
// fragments, so the original content stream never reaches the output
// and nothing redacted can be recovered from it.
type pdfAdapter struct {
	path    string
	workers int
}

func (a *pdfAdapter) Medium() Medium { return MediumPDF }

func (a *pdfAdapter) Extract(ctx context.Context) (*Extraction, error) {
	pages, err := a.extractPages(ctx)
	if err != nil {
		return nil, err
	}

	var b layout.Builder
	for i, page := range pages {
		if i > 0 {
			b.Sep("\n")
		}
		text, boxes := linearizePage(page)
		b.UnitBoxes(text, detect.Position{Kind: detect.PositionPage, Page: i + 1}, boxes)
	}

	return &Extraction{
		Text:  b.Text(),
		Spans: b.Spans(),
		Stats: Stats{Pages: len(pages)},
	}, nil
}

// extractPages reads all pages, fanning out to the worker pool when the
// document is large enough to be worth it. Results are assembled by
// page index, so output order never depends on completion order.
func (a *pdfAdapter) extractPages(ctx context.Context) ([]pdfPage, error) {
	f, r, err := pdf.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]pdfPage, n)

	readOne := func(i int) error {
		page, err := readPage(r, i+1)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		pages[i] = page
		return nil
	}

	if n <= defaultPageWorkers {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := readOne(i); err != nil {
				return nil, err
			}
		}
		return pages, nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error { return readOne(i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// readPage pulls one page's fragments. The content parser panics on
// some malformed streams; that is recovered into an error so one bad
// page fails the document cleanly instead of crashing the process.
func readPage(r *pdf.Reader, num int) (page pdfPage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parsing content: %v", rec)
		}
	}()

	p := r.Page(num)
	page.width, page.height = mediaBoxSize(p)
	if p.V.IsNull() {
		return page, nil
	}

	for _, t := range p.Content().Text {
		if t.S == "" {
			continue
		}
		page.frags = append(page.frags, pdfFragment{
			text:     t.S,
			x:        t.X,
			y:        t.Y,
			width:    t.W,
			fontSize: t.FontSize,
		})
	}
	return page, nil
}

// mediaBoxSize resolves the page's MediaBox, walking up the page tree
// for inherited boxes. Unresolvable boxes fall back to US Letter.
func mediaBoxSize(p pdf.Page) (w, h float64) {
	v := p.V
	for i := 0; i < 16 && !v.IsNull(); i++ {
		box := v.Key("MediaBox")
		if !box.IsNull() && box.Len() == 4 {
			w = box.Index(2).Float64() - box.Index(0).Float64()
			h = box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return letterWidthPt, letterHeightPt
}

// linearizePage orders fragments into reading order and joins them into
// the page's text, recording one box per fragment. A drop in baseline
// starts a new line; a horizontal gap inserts a space; adjacent
// fragments concatenate directly so matches split across fragments
// still surface to the detector.
func linearizePage(p pdfPage) (string, []layout.BoxSpan) {
	frags := append([]pdfFragment(nil), p.frags...)
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].y != frags[j].y {
			return frags[i].y > frags[j].y
		}
		return frags[i].x < frags[j].x
	})

	var sb strings.Builder
	var boxes []layout.BoxSpan
	for i, f := range frags {
		if i > 0 {
			prev := frags[i-1]
			switch {
			case prev.y-f.y > f.fontSize/2:
				sb.WriteString("\n")
			case f.x-(prev.x+prev.width) > 1.0:
				sb.WriteString(" ")
			}
		}
		start := sb.Len()
		sb.WriteString(f.text)
		boxes = append(boxes, layout.BoxSpan{
			Start: start,
			End:   sb.Len(),
			Box:   detect.Box{X: f.x, Y: f.y, W: f.width, H: f.fontSize},
		})
	}
	return sb.String(), boxes
}

// Redact writes a redacted copy by re-rendering every page. Fragments
// overlapped by a finding are dropped and covered with an opaque
// labeled box; everything else is redrawn in place. A page whose
// findings carry no coordinates is reconstructed as flowed text with
// block tokens instead.
func (a *pdfAdapter) Redact(ctx context.Context, findings detect.FindingSet, outPath string) error {
	pages, err := a.extractPages(ctx)
	if err != nil {
		return err
	}

	// Rebuild the same linearization Extract produced, so finding
	// offsets address the right fragments.
	type renderPage struct {
		pdfPage
		start int // page text offset in the linearized document
		text  string
		boxes []layout.BoxSpan
	}
	rendered := make([]renderPage, len(pages))
	offset := 0
	for i, p := range pages {
		if i > 0 {
			offset++ // page separator
		}
		text, boxes := linearizePage(p)
		rendered[i] = renderPage{pdfPage: p, start: offset, text: text, boxes: boxes}
		offset += len(text)
	}

	perPage := make([][]detect.Finding, len(pages))
	var posless detect.FindingSet
	for _, f := range findings {
		placed := false
		for i := range rendered {
			if f.Start >= rendered[i].start && f.End <= rendered[i].start+len(rendered[i].text) {
				perPage[i] = append(perPage[i], f)
				placed = true
				break
			}
		}
		if !placed {
			posless = append(posless, f)
		}
	}

	doc := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: letterWidthPt, Ht: letterHeightPt},
	})
	doc.SetAutoPageBreak(false, 0)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	cache := redact.NewCache()

	for i, page := range rendered {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc.AddPageFormat("P", gofpdf.SizeType{Wd: page.width, Ht: page.height})

		pageFindings := detect.FindingSet(perPage[i])
		reconstruct := len(pageFindings) == 0 && pagePoslessHit(page.text, posless)
		if reconstruct {
			renderReconstructed(doc, tr, cache, page.text, posless, page.width, page.height)
			continue
		}
		renderFromFragments(doc, tr, page.pdfPage, page.boxes, pageFindings, page.start, posless)
	}

	if err := doc.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("writing redacted pdf: %w", err)
	}
	return nil
}

func pagePoslessHit(text string, posless detect.FindingSet) bool {
	for _, f := range posless {
		if f.Text != "" && strings.Contains(text, f.Text) {
			return true
		}
	}
	return false
}

// renderFromFragments redraws a page fragment by fragment. A fragment
// overlapping a finding's byte range is suppressed; its finding gets
// one labeled box over the union of the fragments it covered.
func renderFromFragments(doc *gofpdf.Fpdf, tr func(string) string, page pdfPage, boxes []layout.BoxSpan, findings detect.FindingSet, pageStart int, posless detect.FindingSet) {
	frags := append([]pdfFragment(nil), page.frags...)
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].y != frags[j].y {
			return frags[i].y > frags[j].y
		}
		return frags[i].x < frags[j].x
	})

	covered := func(fragIdx int) bool {
		bs := boxes[fragIdx]
		for _, f := range findings {
			rs, re := f.Start-pageStart, f.End-pageStart
			if bs.Start < re && bs.End > rs {
				return true
			}
		}
		return false
	}

	for idx, frag := range frags {
		if covered(idx) {
			continue
		}
		text := frag.text
		for _, f := range posless {
			if f.Text != "" && strings.Contains(text, f.Text) {
				text = strings.ReplaceAll(text, f.Text, redact.Blocks(f))
			}
		}
		size := frag.fontSize
		if size <= 0 {
			size = 11
		}
		doc.SetFont("Helvetica", "", size)
		doc.SetTextColor(0, 0, 0)
		doc.Text(frag.x, page.height-frag.y, tr(text))
	}

	for _, f := range findings {
		box := findingBox(f, boxes, pageStart)
		if box == nil {
			continue
		}
		drawRedactionBox(doc, page.height, *box, f.EntityType)
	}
}

// findingBox unions the boxes of all fragments the finding overlaps.
func findingBox(f detect.Finding, boxes []layout.BoxSpan, pageStart int) *detect.Box {
	rs, re := f.Start-pageStart, f.End-pageStart
	var union *detect.Box
	for _, bs := range boxes {
		if bs.End <= rs || bs.Start >= re {
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

// drawRedactionBox paints an opaque box over the finding's region with
// the entity label inside. Box coordinates are bottom-up; gofpdf draws
// top-down, so the rectangle's top is pageH minus the box's top edge.
func drawRedactionBox(doc *gofpdf.Fpdf, pageH float64, box detect.Box, entityType string) {
	pad := box.H * 0.25
	x, w := box.X-1, box.W+2
	top := pageH - (box.Y + box.H) - pad
	h := box.H + 2*pad

	doc.SetFillColor(0, 0, 0)
	doc.Rect(x, top, w, h, "F")

	label := redact.TitleizeEntity(entityType)
	labelSize := box.H * 0.6
	if labelSize < 4 {
		return
	}
	doc.SetFont("Helvetica", "B", labelSize)
	if doc.GetStringWidth(label) > w-4 {
		return
	}
	doc.SetTextColor(255, 255, 255)
	doc.Text(x+2, top+h/2+labelSize/3, label)
}

type pdfMeasurer struct{ doc *gofpdf.Fpdf }

func (m pdfMeasurer) Width(s string) float64 { return m.doc.GetStringWidth(s) }

// renderReconstructed rebuilds a page as flowed text: the page's
// linearized text with block tokens spliced in, wrapped to the page
// width. Used when findings carry no usable coordinates, trading layout
// fidelity for guaranteed removal.
func renderReconstructed(doc *gofpdf.Fpdf, tr func(string) string, cache *redact.Cache, text string, findings detect.FindingSet, pageW, pageH float64) {
	const margin = 54.0
	const fontSize = 11.0
	lineHeight := fontSize * 1.35

	redacted := text
	for _, f := range findings {
		if f.Text != "" {
			redacted = strings.ReplaceAll(redacted, f.Text, redact.Blocks(f))
		}
	}

	doc.SetFont("Helvetica", "", fontSize)
	doc.SetTextColor(0, 0, 0)
	m := pdfMeasurer{doc: doc}

	y := margin + fontSize
	for _, para := range strings.Split(redacted, "\n") {
		for _, line := range cache.Wrap(fmt.Sprintf("helv-%.1f", fontSize), pageW-2*margin, para, m) {
			if y > pageH-margin {
				doc.AddPageFormat("P", gofpdf.SizeType{Wd: pageW, Ht: pageH})
				y = margin + fontSize
			}
			doc.Text(margin, y, tr(line))
			y += lineHeight
		}
	}
}
