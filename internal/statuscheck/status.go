package statuscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for the split service's dependencies.
type Checker struct {
	redis     RedisPinger
	s3Bucket  string
	resultDir string
}

// Options configures the Checker.
type Options struct {
	Redis     RedisPinger
	S3Bucket  string
	ResultDir string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	ResultDir Status `json:"result_dir"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:     opts.Redis,
		s3Bucket:  opts.S3Bucket,
		resultDir: opts.ResultDir,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		S3:        c.checkS3(ctx),
		ResultDir: c.checkResultDir(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	cli := s3.NewFromConfig(cfg)
	_, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkResultDir verifies the result directory exists and is writable.
func (c *Checker) checkResultDir() Status {
	if c.resultDir == "" {
		return Status{OK: false, Message: "Result dir not configured"}
	}
	probe := filepath.Join(c.resultDir, ".writecheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	_ = os.Remove(probe)
	return Status{OK: true, Message: "Writable"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
