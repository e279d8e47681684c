// Package archive writes jobs evicted by the reaper to a local directory or an
// S3 bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"async-chat-broker/internal/config"
	"async-chat-broker/internal/jobs"
	"async-chat-broker/internal/logging"
	"async-chat-broker/internal/models"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

var _ jobs.Archiver = (*Archiver)(nil)

// Archiver serialises each job as JSON under <created date>/<job id>.json.
type Archiver struct {
	up  uploader
	log *zerolog.Logger
}

// New picks S3 when a bucket is configured, else the local directory.
// It returns nil when neither is set.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *zerolog.Logger) (*Archiver, error) {
	switch {
	case cfg.S3Bucket != "":
		return NewS3(ctx, cfg, logger)
	case cfg.Dir != "":
		return NewLocal(cfg.Dir, logger), nil
	default:
		return nil, nil
	}
}

func NewLocal(dir string, logger *zerolog.Logger) *Archiver {
	return newArchiver(&localUploader{baseDir: dir}, logger)
}

func NewS3(ctx context.Context, cfg config.ArchiveConfig, logger *zerolog.Logger) (*Archiver, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newArchiver(&s3Uploader{client: client, bucket: cfg.S3Bucket}, logger), nil
}

func newArchiver(up uploader, logger *zerolog.Logger) *Archiver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Archiver{up: up, log: logging.Component(logger, "archive")}
}

// Key is the object key a job is archived under.
func Key(job models.Job) string {
	return path.Join(job.CreatedAt.UTC().Format("2006-01-02"), job.ID+".json")
}

func (a *Archiver) Archive(ctx context.Context, job models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	location, err := a.up.Upload(ctx, Key(job), body, "application/json")
	if err != nil {
		return err
	}
	a.log.Debug().Str("job_id", job.ID).Str("location", location).Msg("job archived")
	return nil
}

func newS3Client(ctx context.Context, cfg config.ArchiveConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	p := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return p, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
