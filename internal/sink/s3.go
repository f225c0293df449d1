// internal/sink/s3.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config holds S3 connection configuration
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Sink implements Sink for s3://bucket/key destinations.
type S3Sink struct {
	client S3API
	prefix string
}

// NewS3 creates an S3 sink. Static keys in cfg take precedence over the
// credentials of base.
func NewS3(base aws.Config, cfg S3Config) *S3Sink {
	client := s3.NewFromConfig(base, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO and most S3-compatible services
		}
	})
	return NewS3WithAPI(client, cfg.Prefix)
}

// NewS3WithAPI wraps an existing client.
func NewS3WithAPI(client S3API, prefix string) *S3Sink {
	return &S3Sink{client: client, prefix: strings.Trim(prefix, "/")}
}

// parse splits s3://bucket/key and applies the key prefix.
func (s *S3Sink) parse(dest string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(dest, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid S3 destination %q, want s3://bucket/key", dest)
	}
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return bucket, key, nil
}

func (s *S3Sink) Place(ctx context.Context, src, dest string, overwrite bool) (string, error) {
	bucket, key, err := s.parse(dest)
	if err != nil {
		return "", err
	}

	if !overwrite {
		exists, err := s.Exists(ctx, dest)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%s: %w", dest, ErrExists)
		}
	}

	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", bucket, key, err)
	}

	f.Close()
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("removing %s after upload: %w", src, err)
	}
	return "s3://" + bucket + "/" + key, nil
}

func (s *S3Sink) Exists(ctx context.Context, dest string) (bool, error) {
	bucket, key, err := s.parse(dest)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
