package naming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
}

func TestGeneratePlainPrefix(t *testing.T) {
	g := NewGenerator("split_")
	assert.Equal(t, "split_scan.pdf", g.Generate(Request{OriginalName: "scan.pdf", FileNumber: 1}))
	assert.Equal(t, "split_report.pdf", g.Generate(Request{OriginalName: "report.PDF", FileNumber: 2}))
}

func TestGeneratePlaceholders(t *testing.T) {
	g := NewGenerator("[FILENUMBER]_[BASENAME]")
	assert.Equal(t, "3_scan.pdf", g.Generate(Request{OriginalName: "scan.pdf", FileNumber: 3}))

	g = NewGenerator("[BASENAME]_[TIMESTAMP]")
	g.now = fixedClock
	assert.Equal(t, "scan_20240315_103000.pdf", g.Generate(Request{OriginalName: "scan.pdf", FileNumber: 1}))
}

func TestGenerateSanitizes(t *testing.T) {
	g := NewGenerator("")
	name := g.Generate(Request{OriginalName: `bad:na*me?.pdf`, FileNumber: 1})
	assert.Equal(t, "bad_na_me_.pdf", name)
}

func TestGenerateEmptyOriginal(t *testing.T) {
	g := NewGenerator("")
	assert.Equal(t, "document_4.pdf", g.Generate(Request{OriginalName: "", FileNumber: 4}))
}

func TestGenerateSequenceDistinct(t *testing.T) {
	g := NewGenerator("out_[FILENUMBER]")
	first := g.Generate(Request{OriginalName: "a.pdf", FileNumber: 1})
	second := g.Generate(Request{OriginalName: "a.pdf", FileNumber: 2})
	assert.NotEqual(t, first, second)
}
