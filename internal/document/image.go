package document

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/layout"
)

// imageAdapter handles raster images. OCR produces the text view; word
// boxes flow through as page-position boxes in pixels, and redaction
// burns opaque rectangles straight into the pixels, so no text layer
// survives to leak.
type imageAdapter struct {
	path string
	ocr  OCREngine
}

func (a *imageAdapter) Medium() Medium { return MediumImage }

func (a *imageAdapter) Extract(ctx context.Context) (*Extraction, error) {
	if !a.ocr.Available() {
		// No backend: empty text, nothing to detect. The pipeline
		// records the degradation rather than failing the document.
		return &Extraction{Stats: Stats{Pages: 1}}, nil
	}

	words, err := a.ocr.Recognize(ctx, a.path)
	if err != nil {
		return nil, fmt.Errorf("OCR: %w", err)
	}

	var sb strings.Builder
	var boxes []layout.BoxSpan
	for i, w := range words {
		if i > 0 {
			sb.WriteString(" ")
		}
		start := sb.Len()
		sb.WriteString(w.Text)
		boxes = append(boxes, layout.BoxSpan{Start: start, End: sb.Len(), Box: w.Box})
	}

	var b layout.Builder
	b.UnitBoxes(sb.String(), detect.Position{Kind: detect.PositionPage, Page: 1}, boxes)

	return &Extraction{
		Text:  b.Text(),
		Spans: b.Spans(),
		Stats: Stats{Pages: 1, OCRUsed: true},
	}, nil
}

// Redact writes a redacted image copy. Findings with boxes are covered
// exactly; findings without any box black out the whole frame, since a
// partial guess would risk leaving the match visible.
func (a *imageAdapter) Redact(ctx context.Context, findings detect.FindingSet, outPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := a.decode()
	if err != nil {
		return err
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, f := range findings {
		if f.Position != nil && f.Position.Box != nil {
			b := f.Position.Box
			r := image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H)).Intersect(bounds)
			draw.Draw(canvas, r, image.Black, image.Point{}, draw.Src)
			continue
		}
		draw.Draw(canvas, bounds, image.Black, image.Point{}, draw.Src)
		break
	}

	return a.encode(canvas, outPath)
}

func (a *imageAdapter) decode() (image.Image, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func (a *imageAdapter) encode(img image.Image, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating redacted image: %w", err)
	}
	defer out.Close()

	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".png":
		err = png.Encode(out, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 90})
	case ".tiff", ".tif":
		err = tiff.Encode(out, img, nil)
	case ".bmp":
		err = bmp.Encode(out, img)
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("encoding redacted image: %w", err)
	}
	return nil
}
