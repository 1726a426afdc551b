package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string `yaml:"bucket"`

	// AccessKey and SecretKey are the static credentials (required).
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// Endpoint is a custom S3 endpoint URL, e.g. for MinIO (optional).
	Endpoint string `yaml:"endpoint"`

	// Region is the AWS region (default: us-east-1).
	Region string `yaml:"region"`

	// PathStyle enables path-style URLs (required for MinIO).
	PathStyle bool `yaml:"path_style"`
}

// applyDefaults fills in default values for empty config fields.
func (c *S3Config) applyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
}

// validate checks that required configuration fields are set.
func (c *S3Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}

// S3 stores blobs in S3-compatible object storage.
type S3 struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3 creates an S3 store with the given configuration.
func NewS3(cfg S3Config) (*S3, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)
		},
	}

	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return &S3{
		client: s3.New(s3.Options{}, opts...),
		cfg:    cfg,
	}, nil
}

// Write implements Store.
func (s *S3) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	// AWS SDK v2 needs a seekable body to compute the payload hash.
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		body = bytes.NewReader(data)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return wrapS3Error(err, ErrWriteFailed)
	}

	return nil
}

// Open implements Store.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3Error(err, ErrNotFound)
	}

	return out.Body, nil
}

// Delete implements Store.
func (s *S3) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return wrapS3Error(err, ErrDeleteFailed)
	}

	return nil
}

// wrapS3Error maps S3 errors onto sentinel errors. Uses %v (not %w) for the
// original error so callers match with errors.Is against the sentinels
// rather than errors.As against AWS types.
func wrapS3Error(err error, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}

	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return fmt.Errorf("%w: %v", fallback, err)
}
