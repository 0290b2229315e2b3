package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/config"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store stores assembled blobs in an S3-compatible bucket and returns
// "bucket/key" as the opaque object reference.
type S3Store struct {
	client *s3.Client
	bucket string
}

// Ensure S3Store implements port.ObjectStore.
var _ port.ObjectStore = (*S3Store)(nil)

// New builds the S3 client from gateway config. A BaseEndpoint makes it
// work against MinIO and other S3-compatible stores.
func New(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.BaseEndpoint != ""
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Store puts the blob under key and returns its object reference.
func (s *S3Store) Store(ctx context.Context, key string, blob []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(blob),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("%s/%s", s.bucket, key), nil
}
