package output

import (
	"context"
	"strings"

	"github.com/local/middlesplit/internal/storage"
)

// S3Sink uploads committed outputs under a key prefix in one bucket.
type S3Sink struct {
	Client   *storage.S3Client
	Prefix   string
	Password string // optional payload encryption
}

func (s *S3Sink) Commit(ctx context.Context, entries []Entry) error {
	prefix := strings.TrimSuffix(s.Prefix, "/")
	for _, e := range entries {
		key := e.Name
		if prefix != "" {
			key = prefix + "/" + e.Name
		}
		meta := map[string]string{"content-type": "application/pdf"}
		if err := s.Client.UploadFile(ctx, key, e.BufferPath, s.Password, meta); err != nil {
			return err
		}
	}
	return nil
}
