// Package s3 publishes harvested records and converted artifacts to an
// S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config configures the bucket connection.
type Config struct {
	Bucket string
	// Prefix is prepended to every key.
	Prefix   string
	Region   string
	Endpoint string

	// Static credentials. Both empty uses the default AWS credential chain.
	AccessKey string
	SecretKey string

	// PathStyle addressing is required by MinIO and most self-hosted stores.
	PathStyle bool
}

// API is the subset of the S3 client the publisher uses.
type API interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Publisher uploads directories to a bucket.
type Publisher struct {
	api    API
	bucket string
	prefix string
	logger zerolog.Logger
}

// New creates a publisher backed by the AWS SDK.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return NewWithAPI(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithAPI creates a publisher over an existing client.
func NewWithAPI(api API, bucket, prefix string) *Publisher {
	if api == nil {
		panic("s3: api cannot be nil")
	}
	return &Publisher{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.NewLogger(logging.ComponentPublish),
	}
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// Ping checks that the bucket is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	if _, err := p.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return fmt.Errorf("failed to reach bucket %s: %w", p.bucket, err)
	}
	return nil
}

// Key returns the object key of rel under prefix.
func (p *Publisher) Key(prefix, rel string) string {
	return path.Join(p.prefix, strings.Trim(prefix, "/"), filepath.ToSlash(rel))
}

// PublishDir uploads every regular file below dir, keyed by its path
// relative to dir. It stops at the first failed upload and returns the
// number of objects written.
func (p *Publisher) PublishDir(ctx context.Context, dir, prefix string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}

	uploaded := 0
	err = filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		key := p.Key(prefix, rel)
		if err := p.putFile(ctx, file, key); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded++
		return nil
	})

	p.logger.Info().
		Str("dir", dir).
		Str("bucket", p.bucket).
		Int("objects", uploaded).
		Err(err).
		Msg("Directory published")

	return uploaded, err
}

func (p *Publisher) putFile(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = p.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return err
	}

	p.logger.Debug().Str("key", key).Int64("bytes", info.Size()).Msg("Object uploaded")
	return nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".step", ".stp":
		return "model/step"
	case ".stl":
		return "model/stl"
	default:
		return "application/octet-stream"
	}
}
