package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/atlasgrowth23/lapermits/internal/config"
)

// Opener opens the byte stream behind a source path
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// FileOpener reads local files
type FileOpener struct{}

func (FileOpener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// BytesOpener serves the same in-memory content for every path
type BytesOpener []byte

func (b BytesOpener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// S3Opener reads s3://bucket/key objects from AWS S3 or an S3-compatible
// endpoint such as MinIO.
type S3Opener struct {
	client *s3.Client
}

// NewS3Opener builds a client from the default AWS credential chain
func NewS3Opener(ctx context.Context, cfg config.S3Config) (*S3Opener, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Opener{client: client}, nil
}

// Open streams the object body; the caller closes it
func (o *S3Opener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Path(path)
	if err != nil {
		return nil, err
	}
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// IsS3Path reports whether path uses the s3:// scheme
func IsS3Path(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ParseS3Path splits s3://bucket/key
func ParseS3Path(path string) (string, string, error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 path: %q", path)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 path needs a bucket and key: %q", path)
	}
	return bucket, key, nil
}

// OpenerFor picks the opener for a path. The S3 client is built only when needed.
func OpenerFor(ctx context.Context, path string, cfg config.S3Config) (Opener, error) {
	if IsS3Path(path) {
		return NewS3Opener(ctx, cfg)
	}
	return FileOpener{}, nil
}
