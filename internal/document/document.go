// Package document defines the document engine contracts the batch splitter
// drives, plus the pdfcpu-backed implementation. The batch core only sees
// these interfaces, so tests can run against in-memory fakes.
package document

import (
	"errors"
	"fmt"

	"github.com/local/middlesplit/internal/geometry"
)

// ErrPermissionDenied is returned when a source document does not grant the
// copy/extract capability. It aborts the entire batch.
var ErrPermissionDenied = errors.New("document does not allow copy and extract")

// SaveError wraps a persistence failure while writing a destination.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string { return fmt.Sprintf("save %s: %v", e.Path, e.Err) }
func (e *SaveError) Unwrap() error { return e.Err }

// Page is a reference to one source page and its bounding box. Number is the
// 1-based page position in the source document.
type Page struct {
	Number int
	Box    geometry.Box
}

// Source identifies one input document of a batch.
type Source struct {
	Path     string // local filesystem path
	Name     string // original display name, used for output naming
	Password string // owner/user password for encrypted inputs, optional
}

// Handle is an open source document.
type Handle interface {
	// PageCount returns the number of pages.
	PageCount() int
	// Page returns the page at 1-based position i with its bounding box
	// (trim box when present, otherwise crop or media box).
	Page(i int) (Page, error)
	// EnsureCopyPermission fails with ErrPermissionDenied when the document
	// forbids content copy/extraction.
	EnsureCopyPermission() error
	// Close releases the handle. Best effort; callers ignore the error.
	Close() error
}

// Destination is a growable output document built from pages of one source.
type Destination interface {
	// ImportPage appends a content-preserving copy of the source page and
	// returns its 1-based position.
	ImportPage(p Page) (int, error)
	// SetCropBox restricts the visible rectangle of the page at position i.
	SetCropBox(i int, box geometry.Box) error
	// MovePageToEnd moves the page at 1-based position i to the tail,
	// preserving the relative order of the other pages.
	MovePageToEnd(i int) error
	// PageCount returns the current number of pages.
	PageCount() int
	// SetFormatVersion sets the output PDF header version, e.g. "1.7".
	SetFormatVersion(v string) error
	// Save persists the document to path. Failures wrap into SaveError.
	Save(path string) error
	// Close releases the destination. Best effort.
	Close() error
}

// Engine opens sources and creates destinations initialized from them.
type Engine interface {
	Open(src Source) (Handle, error)
	NewDestination(from Handle) (Destination, error)
}
