package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/middlesplit/internal/geometry"
)

// copy/extract permission bit (bit 5) of the encryption dictionary P entry.
const permCopyExtract = 1 << 4

// PDFEngine implements Engine on top of pdfcpu.
type PDFEngine struct{}

func NewPDFEngine() *PDFEngine { return &PDFEngine{} }

func (e *PDFEngine) Open(src Source) (Handle, error) {
	conf := model.NewDefaultConfiguration()
	if src.Password != "" {
		conf.UserPW = src.Password
		conf.OwnerPW = src.Password
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer f.Close()

	ctx, _, _, _, err := api.ReadValidateAndOptimize(f, conf, time.Now())
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", src.Path, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count %s: %w", src.Path, err)
	}

	log.Debug().Str("file", src.Path).Int("pages", ctx.PageCount).Msg("opened source document")
	return &pdfHandle{ctx: ctx, path: src.Path}, nil
}

func (e *PDFEngine) NewDestination(from Handle) (Destination, error) {
	h, ok := from.(*pdfHandle)
	if !ok {
		return nil, fmt.Errorf("destination requires a pdfcpu source handle, got %T", from)
	}
	return &pdfDestination{src: h.ctx, conf: model.NewDefaultConfiguration()}, nil
}

// pdfHandle is an open source document backed by a pdfcpu context.
type pdfHandle struct {
	ctx  *model.Context
	path string
}

func (h *pdfHandle) PageCount() int { return h.ctx.PageCount }

func (h *pdfHandle) Page(i int) (Page, error) {
	if i < 1 || i > h.ctx.PageCount {
		return Page{}, fmt.Errorf("page %d out of range [1,%d]", i, h.ctx.PageCount)
	}

	pageDict, _, inh, err := h.ctx.PageDict(i, false)
	if err != nil {
		return Page{}, fmt.Errorf("page dict %d: %w", i, err)
	}

	// Prefer the trim box; it describes the intended page content area.
	// Fall back to the effective crop box, then the media box.
	rect := h.trimBox(pageDict)
	if rect == nil {
		rect = inh.CropBox
	}
	if rect == nil {
		rect = inh.MediaBox
	}
	if rect == nil {
		return Page{}, fmt.Errorf("page %d has no box information", i)
	}

	box := geometry.Box{LLX: rect.LL.X, LLY: rect.LL.Y, URX: rect.UR.X, URY: rect.UR.Y}
	if err := box.Validate(); err != nil {
		return Page{}, fmt.Errorf("page %d: %w", i, err)
	}
	return Page{Number: i, Box: box}, nil
}

func (h *pdfHandle) trimBox(pageDict types.Dict) *types.Rectangle {
	obj, found := pageDict.Find("TrimBox")
	if !found {
		return nil
	}
	arr, err := h.ctx.DereferenceArray(obj)
	if err != nil {
		return nil
	}
	rect, err := h.ctx.RectForArray(arr)
	if err != nil {
		return nil
	}
	return rect
}

func (h *pdfHandle) EnsureCopyPermission() error {
	if h.ctx.E == nil {
		// unencrypted documents grant everything
		return nil
	}
	if h.ctx.E.P&permCopyExtract == 0 {
		return fmt.Errorf("%s: %w", h.path, ErrPermissionDenied)
	}
	return nil
}

func (h *pdfHandle) Close() error {
	h.ctx = nil
	return nil
}

// pdfDestination assembles an output document as an ordered list of source
// page references with crop overrides. Pages materialize on Save: each page
// is extracted into a single-page context, its crop box applied, and the
// buffers merged in order.
type pdfDestination struct {
	src     *model.Context
	conf    *model.Configuration
	pages   []destPage
	version string
}

type destPage struct {
	srcPage int
	crop    *geometry.Box
}

func (d *pdfDestination) ImportPage(p Page) (int, error) {
	if d.src == nil {
		return 0, fmt.Errorf("destination is closed")
	}
	if p.Number < 1 || p.Number > d.src.PageCount {
		return 0, fmt.Errorf("import: source page %d out of range", p.Number)
	}
	d.pages = append(d.pages, destPage{srcPage: p.Number})
	return len(d.pages), nil
}

func (d *pdfDestination) SetCropBox(i int, box geometry.Box) error {
	if i < 1 || i > len(d.pages) {
		return fmt.Errorf("set crop box: page %d out of range", i)
	}
	if err := box.Validate(); err != nil {
		return err
	}
	b := box
	d.pages[i-1].crop = &b
	return nil
}

func (d *pdfDestination) MovePageToEnd(i int) error {
	if i < 1 || i > len(d.pages) {
		return fmt.Errorf("move page: position %d out of range", i)
	}
	p := d.pages[i-1]
	d.pages = append(d.pages[:i-1], d.pages[i:]...)
	d.pages = append(d.pages, p)
	return nil
}

func (d *pdfDestination) PageCount() int { return len(d.pages) }

func (d *pdfDestination) SetFormatVersion(v string) error {
	if v == "" {
		return nil
	}
	if _, err := model.PDFVersion(v); err != nil {
		return fmt.Errorf("pdf version %q: %w", v, err)
	}
	d.version = v
	return nil
}

func (d *pdfDestination) Save(path string) error {
	if d.src == nil {
		return &SaveError{Path: path, Err: fmt.Errorf("destination is closed")}
	}
	if len(d.pages) == 0 {
		return &SaveError{Path: path, Err: fmt.Errorf("no pages to save")}
	}

	buffers := make([]io.ReadSeeker, 0, len(d.pages))
	for i, p := range d.pages {
		data, err := d.renderPage(p)
		if err != nil {
			return &SaveError{Path: path, Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		buffers = append(buffers, bytes.NewReader(data))
	}

	var out bytes.Buffer
	if len(buffers) == 1 {
		if _, err := io.Copy(&out, buffers[0]); err != nil {
			return &SaveError{Path: path, Err: err}
		}
	} else if err := api.MergeRaw(buffers, &out, false, d.conf); err != nil {
		return &SaveError{Path: path, Err: fmt.Errorf("merge: %w", err)}
	}

	data := out.Bytes()
	if d.version != "" {
		rewritten, err := d.applyVersion(data)
		if err != nil {
			return &SaveError{Path: path, Err: err}
		}
		data = rewritten
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	log.Debug().Str("file", path).Int("pages", len(d.pages)).Msg("saved destination document")
	return nil
}

// renderPage extracts one source page into a standalone single-page document
// and applies the crop override.
func (d *pdfDestination) renderPage(p destPage) ([]byte, error) {
	single, err := pdfcpu.ExtractPages(d.src, []int{p.srcPage}, false)
	if err != nil {
		return nil, fmt.Errorf("extract source page %d: %w", p.srcPage, err)
	}
	if err := single.EnsurePageCount(); err != nil {
		return nil, err
	}

	if p.crop != nil {
		pageDict, _, _, err := single.PageDict(1, false)
		if err != nil {
			return nil, err
		}
		rect := types.NewRectangle(p.crop.LLX, p.crop.LLY, p.crop.URX, p.crop.URY)
		pageDict["CropBox"] = rect.Array()
	}

	var buf bytes.Buffer
	if err := api.WriteContext(single, &buf); err != nil {
		return nil, fmt.Errorf("write page: %w", err)
	}
	return buf.Bytes(), nil
}

// applyVersion rewrites the merged document with the requested header version.
func (d *pdfDestination) applyVersion(data []byte) ([]byte, error) {
	v, err := model.PDFVersion(d.version)
	if err != nil {
		return nil, err
	}
	ctx, _, _, _, err := api.ReadValidateAndOptimize(bytes.NewReader(data), d.conf, time.Now())
	if err != nil {
		return nil, fmt.Errorf("reread for version stamp: %w", err)
	}
	ctx.HeaderVersion = &v

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("write versioned: %w", err)
	}
	return out.Bytes(), nil
}

func (d *pdfDestination) Close() error {
	d.src = nil
	d.pages = nil
	return nil
}
