package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// LocalStore writes evidence files to the local file system
type LocalStore struct{}

func (LocalStore) Name() string { return "local" }

// maxSuffix bounds the search for a free name when evidence collides
const maxSuffix = 1000

// Put never overwrites: when p exists, the first free "{name}_{n}{ext}" is
// used instead and returned.
func (LocalStore) Put(_ context.Context, p string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}

	ext := filepath.Ext(p)
	base := strings.TrimSuffix(p, ext)
	candidate := p
	for n := 2; ; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			if n > maxSuffix {
				return "", fmt.Errorf("no free evidence name for %s", p)
			}
			candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create evidence file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write evidence file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close evidence file: %w", err)
		}
		return candidate, nil
	}
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store mirrors evidence files to an S3 compatible bucket
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store connects to the bucket, creating it if needed
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("Created evidence bucket")
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) Put(ctx context.Context, p string, data []byte) (string, error) {
	key := ObjectKey(p)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mime.TypeByExtension(path.Ext(key)),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return p, nil
}

// ObjectKey maps a local evidence path to a bucket key
func ObjectKey(p string) string {
	key := path.Clean(filepath.ToSlash(p))
	for len(key) > 0 && (key[0] == '/' || key[0] == '.') {
		key = key[1:]
	}
	return key
}
