package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/middlesplit/internal/storage"
)

// Resolver turns a source reference into a local file path.
// Supported forms:
// - file://path or plain filesystem paths
// - http(s):// URLs (downloaded to temp)
// - s3://bucket/key (downloaded via the storage client, decrypted if needed)
type Resolver struct {
	S3     *storage.S3Client
	Client *http.Client
	// CryptPassword decrypts GCM-wrapped S3 objects when set.
	CryptPassword string
}

func NewResolver(s3 *storage.S3Client, cryptPassword string) *Resolver {
	return &Resolver{S3: s3, Client: http.DefaultClient, CryptPassword: cryptPassword}
}

// Resolve returns a local path and a cleanup callback. The callback removes
// any temp file the resolver created; for local refs it is a no-op.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		if r.S3 == nil {
			return "", noop, fmt.Errorf("s3 source %q but storage is not configured", ref)
		}
		p, err := r.downloadS3(ctx, ref)
		if err != nil {
			return "", noop, err
		}
		return p, func() { _ = os.Remove(p) }, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		p, err := r.downloadHTTP(ctx, ref)
		if err != nil {
			return "", noop, err
		}
		return p, func() { _ = os.Remove(p) }, nil
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), noop, nil
	default:
		return ref, noop, nil
	}
}

func (r *Resolver) downloadS3(ctx context.Context, ref string) (string, error) {
	f, err := os.CreateTemp("", "middlesplit-src-*.pdf")
	if err != nil {
		return "", err
	}
	_ = f.Close()
	if err := r.S3.DownloadRefToFile(ctx, ref, f.Name(), r.CryptPassword); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	log.Debug().Str("ref", ref).Msg("downloaded s3 source to temp")
	return f.Name(), nil
}

func (r *Resolver) downloadHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d fetching %s", resp.StatusCode, url)
	}
	f, err := os.CreateTemp("", "middlesplit-src-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
