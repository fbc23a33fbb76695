package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"hls-radio/internal/radio"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config contains the settings for an S3-compatible object store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for MinIO and similar
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// ObjectGetter is the part of the S3 client the materializer needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3Materializer downloads songs from a bucket into temporary files.
type S3Materializer struct {
	client  ObjectGetter
	bucket  string
	workDir string
	log     *slog.Logger
}

// NewS3Materializer returns a materializer reading from bucket and writing
// temporary copies under workDir.
func NewS3Materializer(client ObjectGetter, bucket, workDir string, log *slog.Logger) *S3Materializer {
	return &S3Materializer{
		client:  client,
		bucket:  bucket,
		workDir: workDir,
		log:     log.With(slog.String("component", "s3_materializer")),
	}
}

// Materialize implements radio.Materializer. release deletes the temporary file.
func (m *S3Materializer) Materialize(ctx context.Context, song radio.Song) (string, func(), error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(song.Key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("get s3://%s/%s: %w", m.bucket, song.Key, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp(m.workDir, "song-*"+path.Ext(song.Key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	release := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			m.log.Warn("remove temp file failed", slog.String("path", f.Name()), slog.String("error", err.Error()))
		}
	}

	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		release()
		return "", nil, fmt.Errorf("download s3://%s/%s: %w", m.bucket, song.Key, err)
	}

	m.log.Debug("song downloaded",
		slog.String("key", song.Key),
		slog.Int64("bytes", n))
	return f.Name(), release, nil
}
