package geometry

import "fmt"

// Orientation of a page, derived from its bounding box.
type Orientation int

const (
	Landscape Orientation = iota
	Portrait
)

func (o Orientation) String() string {
	if o == Landscape {
		return "landscape"
	}
	return "portrait"
}

// Region identifies which half of the original page a split rectangle covers.
type Region string

const (
	Left   Region = "left"
	Right  Region = "right"
	Top    Region = "top"
	Bottom Region = "bottom"
)

// Box is a page rectangle in page-space units (PDF points).
// Coordinates follow the PDF convention: origin at the lower left.
type Box struct {
	LLX, LLY, URX, URY float64
}

func (b Box) Width() float64  { return b.URX - b.LLX }
func (b Box) Height() float64 { return b.URY - b.LLY }

// MalformedGeometryError reports a bounding box with non-positive extent.
type MalformedGeometryError struct {
	Box Box
}

func (e *MalformedGeometryError) Error() string {
	return fmt.Sprintf("malformed bounding box: width=%.2f height=%.2f", e.Box.Width(), e.Box.Height())
}

// Validate rejects boxes that would produce degenerate or inverted crops.
func (b Box) Validate() error {
	if b.Width() <= 0 || b.Height() <= 0 {
		return &MalformedGeometryError{Box: b}
	}
	return nil
}

// Classify returns Landscape when height <= width, Portrait otherwise.
// Square pages resolve to landscape.
func Classify(b Box) Orientation {
	if b.Height() <= b.Width() {
		return Landscape
	}
	return Portrait
}

// Half is one side of a down-the-middle split.
type Half struct {
	Region Region
	Box    Box
}

// Split cuts a page bounding box in two along its long axis: a vertical cut
// for landscape pages (left half first), a horizontal cut for portrait pages
// (top half first). The boundary coordinate is computed once and shared by
// both halves, so the two crops partition the box with no gap and no overlap.
func Split(b Box) ([2]Half, error) {
	var halves [2]Half
	if err := b.Validate(); err != nil {
		return halves, err
	}

	if Classify(b) == Landscape {
		midX := b.LLX + b.Width()/2
		halves[0] = Half{Region: Left, Box: Box{LLX: b.LLX, LLY: b.LLY, URX: midX, URY: b.URY}}
		halves[1] = Half{Region: Right, Box: Box{LLX: midX, LLY: b.LLY, URX: b.URX, URY: b.URY}}
		return halves, nil
	}

	midY := b.LLY + b.Height()/2
	halves[0] = Half{Region: Top, Box: Box{LLX: b.LLX, LLY: midY, URX: b.URX, URY: b.URY}}
	halves[1] = Half{Region: Bottom, Box: Box{LLX: b.LLX, LLY: b.LLY, URX: b.URX, URY: midY}}
	return halves, nil
}
