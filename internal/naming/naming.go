// Package naming generates output file names from a caller-supplied prefix,
// the original source name and the batch sequence number. The prefix may
// contain [BASENAME], [FILENUMBER] and [TIMESTAMP] placeholders; a prefix
// without placeholders is simply prepended to the original name.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const pdfExtension = ".pdf"

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// Request carries the inputs of one name generation.
type Request struct {
	OriginalName string
	FileNumber   int
}

// Generator produces output names for one batch run.
type Generator struct {
	prefix string
	now    func() time.Time
}

func NewGenerator(prefix string) *Generator {
	return &Generator{prefix: prefix, now: time.Now}
}

// Generate returns a sanitized file name ending in .pdf.
func (g *Generator) Generate(req Request) string {
	base := strings.TrimSuffix(req.OriginalName, filepath.Ext(req.OriginalName))
	if base == "" {
		base = fmt.Sprintf("document_%d", req.FileNumber)
	}

	name := g.prefix
	hasPlaceholder := false
	for tag, value := range map[string]string{
		"[BASENAME]":   base,
		"[FILENUMBER]": fmt.Sprintf("%d", req.FileNumber),
		"[TIMESTAMP]":  g.now().Format("20060102_150405"),
	} {
		if strings.Contains(name, tag) {
			hasPlaceholder = true
			name = strings.ReplaceAll(name, tag, value)
		}
	}
	if !hasPlaceholder {
		name = g.prefix + base
	}

	name = invalidFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" {
		name = fmt.Sprintf("document_%d", req.FileNumber)
	}
	if !strings.HasSuffix(strings.ToLower(name), pdfExtension) {
		name += pdfExtension
	}
	return name
}
