package document

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"

	"github.com/smart-redact/redactd/internal/detect"
)

// OCRWord is one recognized word with its pixel bounding box, origin at
// the image's top-left corner.
type OCRWord struct {
	Text string
	Box  detect.Box
}

// OCREngine recognizes text in images. Implementations report their own
// availability so the image adapter can degrade instead of failing when
// no OCR backend is installed.
type OCREngine interface {
	Available() bool
	Recognize(ctx context.Context, path string) ([]OCRWord, error)
}

var (
	ocrProbeOnce sync.Once
	ocrUsable    bool
)

// DefaultOCREngine returns the Tesseract engine when the installed
// runtime is usable, otherwise a stub that reports unavailable. The
// probe runs once per process.
func DefaultOCREngine() OCREngine {
	ocrProbeOnce.Do(func() {
		langs, err := gosseract.GetAvailableLanguages()
		if err != nil || len(langs) == 0 {
			log.Warn().Err(err).Msg("tesseract unavailable, image documents will not be scanned")
			return
		}
		ocrUsable = true
	})
	if ocrUsable {
		return &tesseractEngine{}
	}
	return &stubOCREngine{}
}

// tesseractEngine wraps gosseract. A fresh client per call keeps the
// engine safe for the concurrent page workers; client setup is cheap
// next to recognition itself.
type tesseractEngine struct{}

func (e *tesseractEngine) Available() bool { return true }

func (e *tesseractEngine) Recognize(ctx context.Context, path string) ([]OCRWord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(path); err != nil {
		return nil, fmt.Errorf("loading image for OCR: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	words := make([]OCRWord, 0, len(boxes))
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		words = append(words, OCRWord{
			Text: b.Word,
			Box: detect.Box{
				X: float64(b.Box.Min.X),
				Y: float64(b.Box.Min.Y),
				W: float64(b.Box.Dx()),
				H: float64(b.Box.Dy()),
			},
		})
	}
	return words, nil
}

// stubOCREngine is the degraded no-backend engine: images pass through
// the pipeline unscanned, and status surfaces report OCR as down.
type stubOCREngine struct{}

func (e *stubOCREngine) Available() bool { return false }

func (e *stubOCREngine) Recognize(context.Context, string) ([]OCRWord, error) {
	return nil, nil
}
