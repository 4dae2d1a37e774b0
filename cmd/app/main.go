package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/middlesplit/internal/config"
	"github.com/local/middlesplit/internal/limiter"
	logpkg "github.com/local/middlesplit/internal/logger"
	"github.com/local/middlesplit/internal/metrics"
	"github.com/local/middlesplit/internal/queue"
	"github.com/local/middlesplit/internal/service"
	"github.com/local/middlesplit/internal/source"
	"github.com/local/middlesplit/internal/statuscheck"
	"github.com/local/middlesplit/internal/storage"
	"github.com/local/middlesplit/internal/store"
	"github.com/local/middlesplit/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Queue
	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	// Status store
	rs, err := store.NewRedisStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis status store")
	}
	defer rs.Close()

	// S3 storage (optional)
	var s3cli *storage.S3Client
	if cfg.Storage.S3Bucket != "" {
		s3cli, err = storage.NewS3Client(context.Background(), cfg.Storage.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 storage")
		}
	}

	if err := os.MkdirAll(cfg.Storage.ResultDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Storage.ResultDir).Msg("cannot create result dir")
	}

	// HTTP API
	svc := service.New(service.Dependencies{
		Queue:  rq,
		Status: rs,
		Checker: statuscheck.New(statuscheck.Options{
			Redis:     rq,
			S3Bucket:  cfg.Storage.S3Bucket,
			ResultDir: cfg.Storage.ResultDir,
		}),
		ResultDir: cfg.Storage.ResultDir,
	})
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	// Split worker (optional)
	runWorker := os.Getenv("RUN_WORKER")
	if runWorker == "" || runWorker == "1" || runWorker == "true" {
		resolver := source.NewResolver(s3cli, cfg.Storage.CryptPassword)
		wrk := worker.New(worker.Config{
			Concurrency:   cfg.Worker.Concurrency,
			JobTimeout:    cfg.Worker.JobTimeout,
			PollInterval:  cfg.Queue.PollInterval,
			ResultDir:     cfg.Storage.ResultDir,
			OutputPrefix:  cfg.Split.OutputPrefix,
			Repagination:  cfg.Split.Repagination,
			FormatVersion: cfg.Split.FormatVersion,
			Overwrite:     cfg.Split.Overwrite,
		}, rq, rs, resolver, s3cli, cfg.Storage.CryptPassword)
		if cfg.Worker.MaxInflight > 0 {
			lim, err := limiter.New(limiter.Options{RedisURL: cfg.Queue.RedisURL, MaxSlots: cfg.Worker.MaxInflight})
			if err != nil {
				log.Fatal().Err(err).Msg("failed to init inflight limiter")
			}
			defer lim.Close()
			wrk.LimitWith(lim)
		}
		wrk.Start()
		defer wrk.Stop(context.Background())
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
