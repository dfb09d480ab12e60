package output

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketConfig configures an S3-compatible destination.
type BucketConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
	AccessKey string
	SecretKey string
}

// BucketSink uploads artifacts to an S3-compatible bucket.
type BucketSink struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewBucketSink creates a MinIO client for cfg.
func NewBucketSink(cfg BucketConfig) (*BucketSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("output: bucket sink needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("output: init minio: %w", err)
	}
	return &BucketSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}, nil
}

// Ensure creates the bucket when it does not exist yet.
func (s *BucketSink) Ensure(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: check bucket %s: %v", ErrEnsure, s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("%w: make bucket %s: %v", ErrEnsure, s.bucket, err)
	}
	return nil
}

// Write uploads data as one object. S3 puts are atomic, so a failed upload
// leaves any previous object in place.
func (s *BucketSink) Write(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: contentType(name)}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("%w: upload %s: %v", ErrWrite, s.key(name), err)
	}
	return nil
}

// Location returns the s3:// URL of name.
func (s *BucketSink) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

func (s *BucketSink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func contentType(name string) string {
	if strings.EqualFold(path.Ext(name), ".svg") {
		return "image/svg+xml"
	}
	return "image/png"
}
