package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/middlesplit/internal/batch"
	"github.com/local/middlesplit/internal/document"
	"github.com/local/middlesplit/internal/logger"
	"github.com/local/middlesplit/internal/metrics"
	"github.com/local/middlesplit/internal/naming"
	"github.com/local/middlesplit/internal/output"
	"github.com/local/middlesplit/internal/preflight"
	"github.com/local/middlesplit/internal/repaginate"
	"github.com/local/middlesplit/internal/source"
	"github.com/local/middlesplit/internal/storage"
	"github.com/local/middlesplit/internal/store"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	Depths(ctx context.Context) (int64, int64, error)
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	RecordResults(ctx context.Context, jobID string, names []string) error
}

// Slots bounds job concurrency across replicas.
type Slots interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
}

type Config struct {
	Concurrency   int
	JobTimeout    time.Duration
	PollInterval  time.Duration
	ResultDir     string
	OutputPrefix  string
	Repagination  string
	FormatVersion string
	Overwrite     bool
}

type Worker struct {
	cfg      Config
	q        Queue
	status   StatusStore
	resolver *source.Resolver
	engine   document.Engine
	inspect  func(path string) (*preflight.Report, error)
	slots    Slots
	s3       *storage.S3Client
	s3Pass   string

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, q Queue, status StatusStore, resolver *source.Resolver, s3 *storage.S3Client, s3Pass string) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{
		cfg:      cfg,
		q:        q,
		status:   status,
		resolver: resolver,
		engine:   document.NewPDFEngine(),
		inspect:  preflight.Inspect,
		s3:       s3,
		s3Pass:   s3Pass,
		stop:     make(chan struct{}),
	}
}

// LimitWith installs a shared inflight limiter consulted before each job.
// Must be called before Start.
func (w *Worker) LimitWith(s Slots) { w.slots = s }

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
	w.wg.Add(1)
	go w.reportDepths()
}

func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type jobSource struct {
	FilePath string `json:"file_path"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type splitJob struct {
	JobID         string      `json:"job_id"`
	Sources       []jobSource `json:"sources"`
	Repagination  string      `json:"repagination"`
	FormatVersion string      `json:"format_version"`
	NamePattern   string      `json:"name_pattern"`
	OutputPath    string      `json:"output_path"`
	Overwrite     bool        `json:"overwrite"`
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("worker-%d", id)
	wlog := logger.Component("worker")
	wlog.Info().Str("consumer", consumer).Msg("split worker started")
	for {
		select {
		case <-w.stop:
			wlog.Info().Str("consumer", consumer).Msg("split worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, w.cfg.PollInterval)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}

		var job splitJob
		if err := json.Unmarshal(data, &job); err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("malformed job payload")
			_ = w.q.AddDLQ(context.Background(), data, "malformed payload")
			_ = w.q.Ack(context.Background(), msgID)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
		w.processJob(ctx, msgID, data, job)
		cancel()
	}
}

func (w *Worker) processJob(ctx context.Context, msgID string, raw []byte, job splitJob) {
	defer func() { _ = w.q.Ack(context.Background(), msgID) }()

	if cancelled, _ := w.q.IsCancelled(ctx, job.JobID); cancelled {
		log.Warn().Str("job_id", job.JobID).Msg("job cancelled before processing; skipping")
		return
	}

	if w.slots != nil {
		if err := w.slots.Acquire(ctx); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("could not acquire job slot")
			_ = w.q.AddDLQ(context.Background(), raw, "slot acquire: "+err.Error())
			return
		}
		defer w.slots.Release(context.Background())
	}

	_ = w.status.Set(ctx, job.JobID, store.Status{Status: store.StatusProcessing, Progress: 0, Message: "processing"})

	names, err := w.runJob(ctx, job)
	end := time.Now()
	if err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("split job failed")
		metrics.IncJob("failed")
		_ = w.q.AddDLQ(context.Background(), raw, err.Error())
		_ = w.status.Set(context.Background(), job.JobID, store.Status{
			Status: store.StatusFailed, Message: err.Error(), End: &end})
		return
	}

	metrics.IncJob("success")
	source.CleanupTemps(time.Hour)
	_ = w.status.RecordResults(context.Background(), job.JobID, names)
	_ = w.status.Set(context.Background(), job.JobID, store.Status{
		Status: store.StatusDone, Progress: 100, Message: "completed", End: &end,
		Metadata: map[string]any{"outputs": len(names)}})
	log.Info().Str("job_id", job.JobID).Int("outputs", len(names)).Msg("split job completed")
}

// runJob resolves sources, splits them and commits the outputs. It returns
// the committed output names.
func (w *Worker) runJob(ctx context.Context, job splitJob) ([]string, error) {
	if len(job.Sources) == 0 {
		return nil, fmt.Errorf("job %s has no sources", job.JobID)
	}
	mode, err := repaginate.ParseMode(job.Repagination)
	if err != nil {
		return nil, err
	}
	if job.Repagination == "" {
		mode, _ = repaginate.ParseMode(w.cfg.Repagination)
	}
	formatVersion := job.FormatVersion
	if formatVersion == "" {
		formatVersion = w.cfg.FormatVersion
	}

	sources := make([]document.Source, 0, len(job.Sources))
	var cleanups []func()
	defer func() {
		for _, fn := range cleanups {
			fn()
		}
	}()
	for _, s := range job.Sources {
		local, cleanup, err := w.resolver.Resolve(ctx, s.FilePath)
		cleanups = append(cleanups, cleanup)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", s.FilePath, err)
		}
		rep, err := w.inspect(local)
		if err != nil {
			return nil, fmt.Errorf("preflight %s: %w", s.FilePath, err)
		}
		log.Debug().Str("job_id", job.JobID).Str("source", s.Name).
			Int("pages", rep.Pages).Int("landscape", rep.LandscapePages).Int("portrait", rep.PortraitPages).
			Msg("source preflight")
		sources = append(sources, document.Source{Path: local, Name: s.Name, Password: s.Password})
	}

	pattern := job.NamePattern
	if pattern == "" {
		pattern = w.cfg.OutputPrefix
	}
	registry := output.NewRegistry()
	params := batch.Params{Sources: sources, Repagination: mode, FormatVersion: formatVersion}
	deps := batch.Deps{
		Engine:   w.engine,
		Names:    naming.NewGenerator(pattern),
		Registry: registry,
		Progress: &statusNotifier{status: w.status, jobID: job.JobID, ctx: ctx},
	}
	if err := batch.Run(ctx, params, deps); err != nil {
		return nil, err
	}

	sink, err := w.sinkFor(job)
	if err != nil {
		return nil, err
	}
	if err := registry.Commit(ctx, sink); err != nil {
		return nil, fmt.Errorf("commit outputs: %w", err)
	}
	names := make([]string, 0, len(registry.Entries()))
	for _, e := range registry.Entries() {
		names = append(names, e.Name)
	}
	return names, nil
}

func (w *Worker) sinkFor(job splitJob) (output.Sink, error) {
	if strings.HasPrefix(job.OutputPath, "s3://") {
		if w.s3 == nil {
			return nil, fmt.Errorf("s3 output %q but storage is not configured", job.OutputPath)
		}
		_, prefix, err := storage.ParseURL(job.OutputPath)
		if err != nil {
			return nil, err
		}
		return &output.S3Sink{Client: w.s3, Prefix: prefix, Password: w.s3Pass}, nil
	}
	dir := job.OutputPath
	if dir == "" {
		dir = w.cfg.ResultDir
	}
	overwrite := job.Overwrite || w.cfg.Overwrite
	return &output.DirSink{Dir: dir, Overwrite: overwrite}, nil
}

// statusNotifier maps batch progress onto the job status record.
type statusNotifier struct {
	status StatusStore
	jobID  string
	ctx    context.Context
}

func (n *statusNotifier) Report(currentStep, totalSteps int) {
	progress := 0
	if totalSteps > 0 {
		progress = currentStep * 100 / totalSteps
	}
	if progress >= 100 {
		progress = 99 // final status flips to 100 when outputs are committed
	}
	_ = n.status.Set(n.ctx, n.jobID, store.Status{
		Status:   store.StatusProcessing,
		Progress: progress,
		Message:  fmt.Sprintf("source %d/%d done", currentStep, totalSteps),
	})
}

func (w *Worker) reportDepths() {
	defer w.wg.Done()
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			main, dlq, err := w.q.Depths(ctx)
			cancel()
			if err != nil {
				continue
			}
			metrics.SetQueueDepth("main", main)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}
}
