package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/middlesplit/internal/document"
	"github.com/local/middlesplit/internal/geometry"
	"github.com/local/middlesplit/internal/naming"
	"github.com/local/middlesplit/internal/output"
	"github.com/local/middlesplit/internal/repaginate"
)

// --- in-memory document engine fakes ---

type fakeHandle struct {
	name     string
	boxes    []geometry.Box
	denyCopy bool
	pageErr  error
	closed   bool
}

func (h *fakeHandle) PageCount() int { return len(h.boxes) }

func (h *fakeHandle) Page(i int) (document.Page, error) {
	if h.pageErr != nil {
		return document.Page{}, h.pageErr
	}
	return document.Page{Number: i, Box: h.boxes[i-1]}, nil
}

func (h *fakeHandle) EnsureCopyPermission() error {
	if h.denyCopy {
		return document.ErrPermissionDenied
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type fakePage struct {
	srcPage int
	crop    geometry.Box
}

type fakeDest struct {
	from    *fakeHandle
	pages   []fakePage
	moves   []int
	version string
	saveErr error
	savedTo string
	closed  bool
}

func (d *fakeDest) ImportPage(p document.Page) (int, error) {
	d.pages = append(d.pages, fakePage{srcPage: p.Number})
	return len(d.pages), nil
}

func (d *fakeDest) SetCropBox(i int, box geometry.Box) error {
	d.pages[i-1].crop = box
	return nil
}

func (d *fakeDest) MovePageToEnd(i int) error {
	d.moves = append(d.moves, i)
	p := d.pages[i-1]
	d.pages = append(d.pages[:i-1], d.pages[i:]...)
	d.pages = append(d.pages, p)
	return nil
}

func (d *fakeDest) PageCount() int { return len(d.pages) }

func (d *fakeDest) SetFormatVersion(v string) error {
	d.version = v
	return nil
}

func (d *fakeDest) Save(path string) error {
	if d.saveErr != nil {
		return &document.SaveError{Path: path, Err: d.saveErr}
	}
	d.savedTo = path
	return os.WriteFile(path, []byte("%PDF-fake"), 0o644)
}

func (d *fakeDest) Close() error {
	d.closed = true
	return nil
}

type fakeEngine struct {
	handles map[string]*fakeHandle
	opened  []string
	dests   []*fakeDest
}

func (e *fakeEngine) Open(src document.Source) (document.Handle, error) {
	h, ok := e.handles[src.Path]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", src.Path)
	}
	e.opened = append(e.opened, src.Path)
	return h, nil
}

func (e *fakeEngine) NewDestination(from document.Handle) (document.Destination, error) {
	d := &fakeDest{from: from.(*fakeHandle)}
	e.dests = append(e.dests, d)
	return d, nil
}

type recordingNotifier struct {
	reports [][2]int
}

func (n *recordingNotifier) Report(cur, total int) {
	n.reports = append(n.reports, [2]int{cur, total})
}

func newDeps(engine *fakeEngine) (Deps, *output.Registry, *recordingNotifier) {
	reg := output.NewRegistry()
	prog := &recordingNotifier{}
	return Deps{
		Engine:   engine,
		Names:    naming.NewGenerator("split_"),
		Registry: reg,
		Progress: prog,
	}, reg, prog
}

func cleanupBuffers(t *testing.T, reg *output.Registry) {
	t.Helper()
	for _, e := range reg.Entries() {
		os.Remove(e.BufferPath)
	}
}

// --- tests ---

func TestRunSplitsLandscapeSource(t *testing.T) {
	h := &fakeHandle{name: "scan.pdf", boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/scan.pdf": h}}
	deps, reg, prog := newDeps(engine)
	defer cleanupBuffers(t, reg)

	params := Params{Sources: []document.Source{{Path: "/in/scan.pdf", Name: "scan.pdf"}}}
	require.NoError(t, Run(context.Background(), params, deps))

	require.Len(t, engine.dests, 1)
	dest := engine.dests[0]
	require.Equal(t, 2, dest.PageCount())
	assert.Equal(t, geometry.Box{LLX: 0, LLY: 0, URX: 400, URY: 600}, dest.pages[0].crop)
	assert.Equal(t, geometry.Box{LLX: 400, LLY: 0, URX: 800, URY: 600}, dest.pages[1].crop)
	assert.Equal(t, 1, dest.pages[0].srcPage)
	assert.Equal(t, 1, dest.pages[1].srcPage)

	require.Len(t, reg.Entries(), 1)
	assert.Equal(t, "split_scan.pdf", reg.Entries()[0].Name)
	assert.FileExists(t, reg.Entries()[0].BufferPath)

	assert.Equal(t, [][2]int{{1, 1}}, prog.reports)
	assert.True(t, h.closed)
	assert.True(t, dest.closed)
}

func TestRunSplitsPortraitSource(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 600, URY: 800}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/p.pdf": h}}
	deps, reg, _ := newDeps(engine)
	defer cleanupBuffers(t, reg)

	params := Params{Sources: []document.Source{{Path: "/in/p.pdf", Name: "p.pdf"}}}
	require.NoError(t, Run(context.Background(), params, deps))

	dest := engine.dests[0]
	require.Equal(t, 2, dest.PageCount())
	// top half first, then bottom
	assert.Equal(t, geometry.Box{LLX: 0, LLY: 400, URX: 600, URY: 800}, dest.pages[0].crop)
	assert.Equal(t, geometry.Box{LLX: 0, LLY: 0, URX: 600, URY: 400}, dest.pages[1].crop)
}

func TestRunDoublesPageCount(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{
		{LLX: 0, LLY: 0, URX: 800, URY: 600},
		{LLX: 0, LLY: 0, URX: 600, URY: 800},
		{LLX: 0, LLY: 0, URX: 842, URY: 595},
	}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/mix.pdf": h}}
	deps, reg, _ := newDeps(engine)
	defer cleanupBuffers(t, reg)

	params := Params{Sources: []document.Source{{Path: "/in/mix.pdf", Name: "mix.pdf"}}}
	require.NoError(t, Run(context.Background(), params, deps))

	dest := engine.dests[0]
	assert.Equal(t, 2*h.PageCount(), dest.PageCount())
	// source page k becomes destination pages 2k-1 and 2k
	for k := 1; k <= h.PageCount(); k++ {
		assert.Equal(t, k, dest.pages[2*k-2].srcPage)
		assert.Equal(t, k, dest.pages[2*k-1].srcPage)
	}
}

func TestRunRepaginatesLastFirst(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{
		{LLX: 0, LLY: 0, URX: 800, URY: 600},
		{LLX: 0, LLY: 0, URX: 800, URY: 600},
	}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/s.pdf": h}}
	deps, reg, _ := newDeps(engine)
	defer cleanupBuffers(t, reg)

	params := Params{
		Sources:      []document.Source{{Path: "/in/s.pdf", Name: "s.pdf"}},
		Repagination: repaginate.LastFirst,
	}
	require.NoError(t, Run(context.Background(), params, deps))

	dest := engine.dests[0]
	assert.Equal(t, repaginate.MoveSequence(4), dest.moves)

	// pages were appended as (src 1 left, src 1 right, src 2 left, src 2 right);
	// last-first for 4 pages reorders them to positions [2 3 4 1].
	var order []int
	for _, p := range dest.pages {
		order = append(order, p.srcPage)
	}
	assert.Equal(t, []int{1, 2, 2, 1}, order)
}

func TestRunNoRepaginationIsIdempotent(t *testing.T) {
	crops := func() []fakePage {
		h := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}, {LLX: 0, LLY: 0, URX: 600, URY: 800}}}
		engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/a.pdf": h}}
		deps, reg, _ := newDeps(engine)
		defer cleanupBuffers(t, reg)

		params := Params{Sources: []document.Source{{Path: "/in/a.pdf", Name: "a.pdf"}}}
		require.NoError(t, Run(context.Background(), params, deps))
		return engine.dests[0].pages
	}
	assert.Equal(t, crops(), crops())
}

func TestRunPermissionDeniedAbortsBatch(t *testing.T) {
	denied := &fakeHandle{denyCopy: true, boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
	second := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{
		"/in/denied.pdf": denied,
		"/in/ok.pdf":     second,
	}}
	deps, reg, prog := newDeps(engine)

	params := Params{Sources: []document.Source{
		{Path: "/in/denied.pdf", Name: "denied.pdf"},
		{Path: "/in/ok.pdf", Name: "ok.pdf"},
	}}
	err := Run(context.Background(), params, deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrPermissionDenied)

	// the batch aborts: no output registered, second source never opened
	assert.Empty(t, reg.Entries())
	assert.Equal(t, []string{"/in/denied.pdf"}, engine.opened)
	assert.Empty(t, prog.reports)
	// handles still released on the abort path
	assert.True(t, denied.closed)
}

func TestRunSaveFailureAborts(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/s.pdf": h}}
	deps, reg, _ := newDeps(engine)

	params := Params{Sources: []document.Source{{Path: "/in/s.pdf", Name: "s.pdf"}}}

	// wrap engine so the destination fails to save
	failing := &saveFailEngine{inner: engine}
	deps.Engine = failing

	err := Run(context.Background(), params, deps)
	require.Error(t, err)
	var saveErr *document.SaveError
	assert.ErrorAs(t, err, &saveErr)
	assert.Empty(t, reg.Entries())
	assert.True(t, failing.dest.closed)
}

type saveFailEngine struct {
	inner *fakeEngine
	dest  *fakeDest
}

func (e *saveFailEngine) Open(src document.Source) (document.Handle, error) {
	return e.inner.Open(src)
}

func (e *saveFailEngine) NewDestination(from document.Handle) (document.Destination, error) {
	d, err := e.inner.NewDestination(from)
	if err != nil {
		return nil, err
	}
	e.dest = d.(*fakeDest)
	e.dest.saveErr = errors.New("disk full")
	return d, nil
}

func TestRunMalformedGeometryAborts(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 0, URY: 600}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/bad.pdf": h}}
	deps, reg, _ := newDeps(engine)

	params := Params{Sources: []document.Source{{Path: "/in/bad.pdf", Name: "bad.pdf"}}}
	err := Run(context.Background(), params, deps)
	require.Error(t, err)
	var mg *geometry.MalformedGeometryError
	assert.ErrorAs(t, err, &mg)
	assert.Empty(t, reg.Entries())
	assert.True(t, h.closed)
}

func TestRunProgressAndNaming(t *testing.T) {
	handles := map[string]*fakeHandle{}
	var sources []document.Source
	for i := 1; i <= 3; i++ {
		p := fmt.Sprintf("/in/doc%d.pdf", i)
		handles[p] = &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
		sources = append(sources, document.Source{Path: p, Name: fmt.Sprintf("doc%d.pdf", i)})
	}
	engine := &fakeEngine{handles: handles}
	deps, reg, prog := newDeps(engine)
	deps.Names = naming.NewGenerator("[FILENUMBER]_[BASENAME]")
	defer cleanupBuffers(t, reg)

	require.NoError(t, Run(context.Background(), Params{Sources: sources}, deps))

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, prog.reports)
	require.Len(t, reg.Entries(), 3)
	assert.Equal(t, "1_doc1.pdf", reg.Entries()[0].Name)
	assert.Equal(t, "2_doc2.pdf", reg.Entries()[1].Name)
	assert.Equal(t, "3_doc3.pdf", reg.Entries()[2].Name)
}

func TestRunFormatVersion(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/v.pdf": h}}
	deps, reg, _ := newDeps(engine)
	defer cleanupBuffers(t, reg)

	params := Params{
		Sources:       []document.Source{{Path: "/in/v.pdf", Name: "v.pdf"}},
		FormatVersion: "1.7",
	}
	require.NoError(t, Run(context.Background(), params, deps))
	assert.Equal(t, "1.7", engine.dests[0].version)
}

func TestRunCancelledContext(t *testing.T) {
	h := &fakeHandle{boxes: []geometry.Box{{LLX: 0, LLY: 0, URX: 800, URY: 600}}}
	engine := &fakeEngine{handles: map[string]*fakeHandle{"/in/c.pdf": h}}
	deps, reg, _ := newDeps(engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Params{Sources: []document.Source{{Path: "/in/c.pdf", Name: "c.pdf"}}}, deps)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reg.Entries())
	assert.Empty(t, engine.opened)
}
