// Package preview renders pages of produced PDFs as JPEG thumbnails so
// callers can eyeball a split result without downloading it.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDPI     = 96
	DefaultQuality = 80
)

// Options control one render.
type Options struct {
	Page      int // 1-based
	DPI       int
	Quality   int
	Grayscale bool
}

// RenderJPEG renders one page of the PDF at path as an in-memory JPEG.
func RenderJPEG(path string, opts Options) ([]byte, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer doc.Close()

	if opts.Page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d)", opts.Page, doc.NumPage())
	}

	// go-fitz pages are 0-based
	img, err := doc.ImageDPI(opts.Page-1, float64(opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", opts.Page, err)
	}

	var final image.Image = img
	if opts.Grayscale {
		bounds := img.Bounds()
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	log.Debug().Str("file", path).Int("page", opts.Page).Int("dpi", opts.DPI).
		Int("bytes", buf.Len()).Msg("rendered preview")
	return buf.Bytes(), nil
}
