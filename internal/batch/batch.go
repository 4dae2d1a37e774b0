// Package batch drives the per-source split loop: open, permission check,
// split every page into two cropped halves, optionally repaginate, save to a
// temporary buffer and register the output. Processing is strictly
// sequential; the first error aborts the whole batch and nothing is
// committed for the failing source.
package batch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/middlesplit/internal/document"
	"github.com/local/middlesplit/internal/geometry"
	"github.com/local/middlesplit/internal/metrics"
	"github.com/local/middlesplit/internal/naming"
	"github.com/local/middlesplit/internal/output"
	"github.com/local/middlesplit/internal/repaginate"
)

// Namer generates an output name for one finished source.
type Namer interface {
	Generate(req naming.Request) string
}

// Params configure one batch run.
type Params struct {
	Sources       []document.Source
	Repagination  repaginate.Mode
	FormatVersion string
}

// Deps are the collaborators a batch run drives.
type Deps struct {
	Engine   document.Engine
	Names    Namer
	Registry *output.Registry
	Progress Notifier
}

// Run processes all sources in order. Outputs accumulate in deps.Registry;
// committing them to a sink is the caller's responsibility and should only
// happen when Run returns nil.
func Run(ctx context.Context, params Params, deps Deps) error {
	if deps.Progress == nil {
		deps.Progress = NopNotifier{}
	}
	totalSteps := len(params.Sources)

	for i, src := range params.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := i + 1
		if err := processSource(src, step, params, deps); err != nil {
			metrics.IncSource("error")
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		metrics.IncSource("success")
		deps.Progress.Report(step, totalSteps)
	}
	return nil
}

// processSource splits one document. Source and destination handles are
// scoped to this call and released on every exit path; release errors are
// logged and never mask the triggering error.
func processSource(src document.Source, step int, params Params, deps Deps) error {
	start := time.Now()
	log.Debug().Str("source", src.Name).Msg("opening source")

	handle, err := deps.Engine.Open(src)
	if err != nil {
		return err
	}
	defer closeQuietly(handle, src.Name)

	if err := handle.EnsureCopyPermission(); err != nil {
		return err
	}

	dest, err := deps.Engine.NewDestination(handle)
	if err != nil {
		return err
	}
	defer closeQuietly(dest, src.Name)

	if params.FormatVersion != "" {
		if err := dest.SetFormatVersion(params.FormatVersion); err != nil {
			return err
		}
	}

	for p := 1; p <= handle.PageCount(); p++ {
		page, err := handle.Page(p)
		if err != nil {
			return err
		}
		if err := splitPage(dest, page); err != nil {
			return fmt.Errorf("page %d: %w", p, err)
		}
	}

	if params.Repagination == repaginate.LastFirst {
		if err := repaginate.Apply(dest, dest.PageCount()); err != nil {
			return fmt.Errorf("repaginate: %w", err)
		}
		metrics.IncRepagination()
	}

	buffer, err := os.CreateTemp("", "middlesplit-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp buffer: %w", err)
	}
	buffer.Close()

	if err := dest.Save(buffer.Name()); err != nil {
		os.Remove(buffer.Name())
		return err
	}

	name := deps.Names.Generate(naming.Request{OriginalName: src.Name, FileNumber: step})
	deps.Registry.Add(buffer.Name(), name)

	metrics.ObserveSource(time.Since(start))
	log.Info().
		Str("source", src.Name).
		Str("output", name).
		Int("pages_in", handle.PageCount()).
		Int("pages_out", dest.PageCount()).
		Dur("took", time.Since(start)).
		Msg("split source")
	return nil
}

// splitPage appends both halves of one source page to the destination, first
// half first, each restricted by its crop rectangle.
func splitPage(dest document.Destination, page document.Page) error {
	halves, err := geometry.Split(page.Box)
	if err != nil {
		return err
	}
	metrics.IncPageSplit(geometry.Classify(page.Box).String())

	for _, half := range halves {
		idx, err := dest.ImportPage(page)
		if err != nil {
			return err
		}
		if err := dest.SetCropBox(idx, half.Box); err != nil {
			return err
		}
	}
	return nil
}

type closer interface{ Close() error }

func closeQuietly(c closer, source string) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to release document handle")
	}
}
