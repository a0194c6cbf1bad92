package document

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/layout"
	"github.com/smart-redact/redactd/internal/redact"
)

const wordDocumentEntry = "word/document.xml"

// WordprocessingML never nests w:p, so a lazy match up to the closing
// tag is exact. Self-closing paragraphs are listed first so a <w:p .../>
// cannot swallow the content that follows it. The attribute guard keeps
// <w:p from matching <w:pPr.
var (
	paragraphRe = regexp.MustCompile(`(?s)<w:p(?: [^>]*?)?/>|<w:p(?: [^>]*)?>.*?</w:p>`)
	paraOpenRe  = regexp.MustCompile(`^<w:p(?: [^>]*)?>`)
	textRunRe   = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
	pPrRe       = regexp.MustCompile(`(?s)<w:pPr(?: [^>]*)?>.*?</w:pPr>|<w:pPr(?: [^>]*)?/>`)
	rPrRe       = regexp.MustCompile(`(?s)<w:rPr(?: [^>]*)?>.*?</w:rPr>|<w:rPr(?: [^>]*)?/>`)
)

var (
	xmlUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
	xmlEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// wordAdapter handles .docx files. The package structure is copied
// verbatim except word/document.xml, which is rewritten paragraph by
// paragraph. A paragraph is the extraction unit: PII is routinely split
// across runs by Word's revision tracking, so detection sees the joined
// paragraph text and redaction rewrites the whole paragraph as a single
// run carrying the first run's formatting.
type wordAdapter struct {
	path string
}

func (a *wordAdapter) Medium() Medium { return MediumWord }

func (a *wordAdapter) Extract(ctx context.Context) (*Extraction, error) {
	doc, err := a.readDocumentXML()
	if err != nil {
		return nil, err
	}

	var b layout.Builder
	stats := Stats{}
	first := true

	for i, para := range paragraphRe.FindAllString(doc, -1) {
		text := paragraphText(para)
		if text == "" {
			continue
		}
		if !first {
			b.Sep("\n")
		}
		first = false
		b.Unit(text, detect.Position{Kind: detect.PositionUnit, Unit: i})
		stats.Units++
	}

	return &Extraction{Text: b.Text(), Spans: b.Spans(), Stats: stats}, nil
}

// Redact writes a redacted .docx copy. Positioned findings address
// their paragraph by document-order index; position-less findings are
// applied to every paragraph containing the matched text.
func (a *wordAdapter) Redact(ctx context.Context, findings detect.FindingSet, outPath string) error {
	byUnit := make(map[int]detect.FindingSet)
	var posless detect.FindingSet
	for _, f := range findings {
		if f.Position != nil && f.Position.Kind == detect.PositionUnit {
			byUnit[f.Position.Unit] = append(byUnit[f.Position.Unit], f)
		} else {
			posless = append(posless, f)
		}
	}

	idx := -1
	rewrite := func(para string) string {
		idx++
		text := paragraphText(para)
		if text == "" {
			return para
		}

		redacted := redact.BySubstring(text, byUnit[idx], redact.Blocks)
		for _, f := range posless {
			if f.Text != "" && strings.Contains(redacted, f.Text) {
				redacted = strings.ReplaceAll(redacted, f.Text, redact.Blocks(f))
			}
		}
		if redacted == text {
			return para
		}
		return rebuildParagraph(para, redacted)
	}

	return a.rewritePackage(ctx, outPath, func(doc string) string {
		return paragraphRe.ReplaceAllStringFunc(doc, rewrite)
	})
}

// paragraphText joins the text runs of one paragraph, entities decoded.
func paragraphText(para string) string {
	var sb strings.Builder
	for _, m := range textRunRe.FindAllStringSubmatch(para, -1) {
		sb.WriteString(xmlUnescaper.Replace(m[1]))
	}
	return sb.String()
}

// rebuildParagraph replaces a paragraph's runs with a single run holding
// text. Paragraph properties survive; run properties are taken from the
// first run, so the redacted text keeps that run's font and size.
func rebuildParagraph(para, text string) string {
	open := paraOpenRe.FindString(para)
	if open == "" {
		return para
	}
	pPr := pPrRe.FindString(para)
	rPr := rPrRe.FindString(para)

	var sb strings.Builder
	sb.WriteString(open)
	sb.WriteString(pPr)
	sb.WriteString("<w:r>")
	sb.WriteString(rPr)
	sb.WriteString(`<w:t xml:space="preserve">`)
	sb.WriteString(xmlEscaper.Replace(text))
	sb.WriteString(`</w:t></w:r></w:p>`)
	return sb.String()
}

func (a *wordAdapter) readDocumentXML() (string, error) {
	zr, err := zip.OpenReader(a.path)
	if err != nil {
		return "", fmt.Errorf("opening docx package: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != wordDocumentEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", wordDocumentEntry, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", wordDocumentEntry, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("docx package has no %s", wordDocumentEntry)
}

// rewritePackage copies every zip entry verbatim except
// word/document.xml, which is passed through transform.
func (a *wordAdapter) rewritePackage(ctx context.Context, outPath string, transform func(string) string) error {
	zr, err := zip.OpenReader(a.path)
	if err != nil {
		return fmt.Errorf("opening docx package: %w", err)
	}
	defer zr.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating redacted docx: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}

		rc, err := f.Open()
		if err != nil {
			zw.Close()
			return fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			zw.Close()
			return fmt.Errorf("reading entry %s: %w", f.Name, err)
		}

		if f.Name == wordDocumentEntry {
			data = []byte(transform(string(data)))
		}

		hdr := f.FileHeader
		w, err := zw.CreateHeader(&hdr)
		if err != nil {
			zw.Close()
			return fmt.Errorf("writing entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			zw.Close()
			return fmt.Errorf("writing entry %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing redacted docx: %w", err)
	}
	return out.Close()
}
