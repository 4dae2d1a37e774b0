package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "middlesplit"

// forwarded events below this level never leave the process
const axiomMinLevel = zerolog.InfoLevel

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

var (
	global zerolog.Logger
	fw     *axiomForwarder
)

// Init sets up the global logger: rotated file output, console output and
// optional Axiom forwarding.
func Init(opts Options) error {
	writers, err := buildWriters(opts)
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	log.Logger = global
	return nil
}

func buildWriters(opts Options) ([]io.Writer, error) {
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		f, err := newAxiomForwarder(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			// keep logging locally without Axiom
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			fw = f
			writers = append(writers, &axiomWriter{fw: f})
		}
	}

	return writers, nil
}

// Close flushes any buffered external loggers.
func Close() {
	if fw != nil {
		fw.Close()
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return global.With().Str("component", name).Logger()
}

// axiomWriter forwards zerolog JSON lines to Axiom, skipping events below
// axiomMinLevel.
type axiomWriter struct{ fw *axiomForwarder }

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{"message": string(p), "level": "info"}
	}
	if s, ok := ev["level"].(string); ok {
		if lvl, err := zerolog.ParseLevel(s); err == nil && lvl < axiomMinLevel {
			return len(p), nil
		}
	}
	ev["service"] = serviceName
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.fw.Enqueue(axiom.Event(ev))
	return len(p), nil
}

// axiomForwarder batches events and ships them on a ticker.
type axiomForwarder struct {
	client    *axiom.Client
	dataset   string
	ch        chan axiom.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	cancel    context.CancelFunc
}

const (
	forwardBuffer = 1000
	forwardBatch  = 256
)

func newAxiomForwarder(token, orgID, dataset string, flushEvery time.Duration) (*axiomForwarder, error) {
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &axiomForwarder{
		client:  c,
		dataset: dataset,
		ch:      make(chan axiom.Event, forwardBuffer),
		cancel:  cancel,
	}
	f.wg.Add(1)
	go f.run(ctx, flushEvery)
	return f, nil
}

// Enqueue never blocks; events are dropped when the buffer is full.
func (f *axiomForwarder) Enqueue(ev axiom.Event) {
	select {
	case f.ch <- ev:
	default:
	}
}

func (f *axiomForwarder) run(ctx context.Context, flushEvery time.Duration) {
	defer f.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, forwardBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ictx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_, _ = f.client.IngestEvents(ictx, f.dataset, batch)
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case ev := <-f.ch:
			batch = append(batch, ev)
			if len(batch) >= forwardBatch {
				flush()
			}
		}
	}
}

func (f *axiomForwarder) Close() {
	f.closeOnce.Do(func() {
		f.cancel()
		f.wg.Wait()
	})
}
