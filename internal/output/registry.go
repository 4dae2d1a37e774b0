// Package output collects the temporary buffers a batch run produces and
// commits them through a sink once the whole batch succeeded. Placement
// policy (directory layout, overwrite handling, remote upload) is owned by
// the sink.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Entry is one finished document waiting for commit.
type Entry struct {
	BufferPath string // temporary file holding the document
	Name       string // final output name
}

// Sink commits the accumulated outputs to their final destination.
type Sink interface {
	Commit(ctx context.Context, entries []Entry) error
}

// Registry accumulates outputs during a batch run.
type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry { return &Registry{} }

// Add registers a temporary buffer under its final name.
func (r *Registry) Add(bufferPath, name string) {
	r.entries = append(r.entries, Entry{BufferPath: bufferPath, Name: name})
}

// Entries returns the registered outputs in registration order.
func (r *Registry) Entries() []Entry { return r.entries }

// Commit hands all outputs to the sink, then removes the temporary buffers.
// Buffer removal is best effort and never fails the commit.
func (r *Registry) Commit(ctx context.Context, sink Sink) error {
	if err := sink.Commit(ctx, r.entries); err != nil {
		return err
	}
	for _, e := range r.entries {
		if err := os.Remove(e.BufferPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("buffer", e.BufferPath).Msg("failed to remove temp buffer")
		}
	}
	return nil
}

// DirSink writes outputs into a local directory.
type DirSink struct {
	Dir       string
	Overwrite bool
}

func (s *DirSink) Commit(ctx context.Context, entries []Entry) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(s.Dir, e.Name)
		if !s.Overwrite {
			if _, err := os.Stat(dst); err == nil {
				return fmt.Errorf("output %s already exists and overwrite is disabled", dst)
			}
		}
		if err := copyFile(e.BufferPath, dst); err != nil {
			return fmt.Errorf("write output %s: %w", dst, err)
		}
		log.Info().Str("output", dst).Msg("committed output")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
