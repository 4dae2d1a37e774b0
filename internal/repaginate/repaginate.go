// Package repaginate corrects the page order of documents acquired in
// last-sheet-scanned-first order. The split stage produces two pages per
// double-layout page; this pass moves pages to the document end following a
// fixed index-stepping formula so the result reads front to back.
package repaginate

import (
	"fmt"
	"strings"
)

// Mode selects the repagination behavior for a batch run.
type Mode string

const (
	None      Mode = "none"
	LastFirst Mode = "last-first"
)

// ParseMode maps a config string to a Mode. The empty string means None.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "last-first", "last_first", "lastfirst":
		return LastFirst, nil
	default:
		return None, fmt.Errorf("unknown repagination mode %q", s)
	}
}

// MoveSequence returns, for a document of n pages, the 1-based page positions
// to move to the document end, in order. Positions refer to the page order
// before any move of this pass; because the sequence is strictly decreasing
// and every move appends to the tail, applying the moves against the live
// document yields the same result.
//
// The stepping alternates between 1 and 3 after every move, and whether it
// starts at 3 or 1 depends on the parity of the double-layout page count
// (n/2): startStep = (n/2) mod 2, step = 3 when startStep is 0, else 1,
// first position = n - startStep.
func MoveSequence(n int) []int {
	if n <= 0 {
		return nil
	}

	startStep := n / 2 % 2
	step := 3
	if startStep != 0 {
		step = 1
	}

	var moves []int
	for i := n - startStep; i > 0; {
		moves = append(moves, i)
		i -= step
		if step == 1 {
			step = 3
		} else {
			step = 1
		}
	}
	return moves
}

// Permutation returns the resulting page order for a document of n pages:
// element k holds the original 1-based position of the page that ends up at
// position k+1. Untouched pages keep their relative order, followed by the
// moved pages in move order.
func Permutation(n int) []int {
	moves := MoveSequence(n)
	moved := make(map[int]bool, len(moves))
	for _, m := range moves {
		moved[m] = true
	}

	out := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		if !moved[i] {
			out = append(out, i)
		}
	}
	return append(out, moves...)
}

// Mover is the single document operation repagination needs.
type Mover interface {
	MovePageToEnd(position int) error
}

// Apply runs the last-first move sequence for a document of n pages against
// a live document.
func Apply(doc Mover, n int) error {
	for _, pos := range MoveSequence(n) {
		if err := doc.MovePageToEnd(pos); err != nil {
			return err
		}
	}
	return nil
}
