// Package preflight inspects input files before the split stage runs:
// a magic-byte check that the file really is a PDF, plus a cheap page scan
// reporting page counts and split-axis distribution for logging and work
// estimation.
package preflight

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	fitz "github.com/gen2brain/go-fitz"

	"github.com/local/middlesplit/internal/geometry"
)

// Report summarizes one inspected source.
type Report struct {
	Path           string `json:"path"`
	Pages          int    `json:"pages"`
	LandscapePages int    `json:"landscape_pages"`
	PortraitPages  int    `json:"portrait_pages"`
}

// Doc abstracts the renderer used for the page scan.
type Doc interface {
	NumPage() int
	Bound(i int) (w, h float64, err error)
	Close() error
}

// Opener abstracts opening a path into a Doc. The default uses go-fitz.
type Opener interface {
	Open(path string) (Doc, error)
}

var defaultOpener Opener = fitzOpener{}

func setDefaultOpener(o Opener) { defaultOpener = o }

// Inspect verifies path is a PDF and scans its pages.
func Inspect(path string) (*Report, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	if !mtype.Is("application/pdf") {
		return nil, fmt.Errorf("%s is not a PDF (detected %s)", path, mtype.String())
	}

	doc, err := defaultOpener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	rep := &Report{Path: path, Pages: doc.NumPage()}
	for i := 0; i < rep.Pages; i++ {
		w, h, err := doc.Bound(i)
		if err != nil {
			return nil, fmt.Errorf("page %d bounds: %w", i+1, err)
		}
		if (geometry.Classify(geometry.Box{URX: w, URY: h})) == geometry.Landscape {
			rep.LandscapePages++
		} else {
			rep.PortraitPages++
		}
	}
	return rep, nil
}

// --- fitz adapter ---

type fitzOpener struct{}

func (fitzOpener) Open(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzDoc{doc}, nil
}

type fitzDoc struct{ *fitz.Document }

func (d *fitzDoc) Bound(i int) (float64, float64, error) {
	b, err := d.Document.Bound(i)
	if err != nil {
		return 0, 0, err
	}
	return float64(b.Dx()), float64(b.Dy()), nil
}
