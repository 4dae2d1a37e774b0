package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// gcmMagic marks payloads encrypted with the password-derived AES-GCM format.
const gcmMagic = "GCM3NCR0"

const pbkdf2Iterations = 100000

// S3Client wraps the AWS S3 client for source downloads and result uploads.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucketName string
}

// NewS3Client creates an S3 client for the given bucket. When S3_ENDPOINT is
// set, the client targets an S3-compatible endpoint with static credentials
// from S3_ACCESS_KEY / S3_SECRET_KEY (minio-style deployments).
func NewS3Client(ctx context.Context, bucketName string) (*S3Client, error) {
	var opts []func(*awscfg.LoadOptions) error
	if ak, sk := os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_SECRET_KEY"); ak != "" && sk != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("S3_ENDPOINT"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucketName: bucketName,
	}, nil
}

// ParseURL splits an s3://bucket/key reference.
func ParseURL(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

// DownloadToFile fetches a key from the configured bucket into a local file.
// When password is non-empty and the object carries the GCM magic header,
// the payload is decrypted.
func (s *S3Client) DownloadToFile(ctx context.Context, key, path, password string) error {
	return s.downloadObject(ctx, s.bucketName, key, path, password)
}

// DownloadRefToFile fetches an s3://bucket/key reference into a local file,
// honoring the bucket named in the reference.
func (s *S3Client) DownloadRefToFile(ctx context.Context, ref, path, password string) error {
	bucket, key, err := ParseURL(ref)
	if err != nil {
		return err
	}
	return s.downloadObject(ctx, bucket, key, path, password)
}

func (s *S3Client) downloadObject(ctx context.Context, bucket, key, path, password string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		f.Close()
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if password == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(data, []byte(gcmMagic)) {
		return nil
	}
	plain, err := decryptGCM(data, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt s3 object %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int("size", len(plain)).Msg("decrypted s3 object")
	return os.WriteFile(path, plain, 0o644)
}

// Upload stores data under key, optionally encrypting with the password.
func (s *S3Client) Upload(ctx context.Context, key string, data []byte, password string, metadata map[string]string) error {
	if password != "" {
		enc, err := encryptGCM(data, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt upload: %w", err)
		}
		data = enc
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["encryption-format"] = gcmMagic
	}

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucketName),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: metadata,
	}); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucketName, key, err)
	}
	log.Info().Str("key", key).Int("size", len(data)).Msg("uploaded object to s3")
	return nil
}

// UploadFile streams a local file to key.
func (s *S3Client) UploadFile(ctx context.Context, key, path, password string, metadata map[string]string) error {
	if password != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return s.Upload(ctx, key, data, password, metadata)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucketName),
		Key:      aws.String(key),
		Body:     f,
		Metadata: metadata,
	}); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucketName, key, err)
	}
	log.Info().Str("key", key).Str("file", path).Msg("uploaded file to s3")
	return nil
}

// encryptGCM produces magic(8) + salt(16) + nonce(12) + ciphertext+tag.
func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := gcmForPassword(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

func decryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+16+12+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	salt := data[8:24]
	nonce := data[24:36]
	ciphertext := data[36:]

	gcm, err := gcmForPassword(password, salt)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func gcmForPassword(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
