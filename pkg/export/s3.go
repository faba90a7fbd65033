package export

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/logflow/ptalign/pkg/config"
	"github.com/logflow/ptalign/pkg/errors"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	UploadTimeout time.Duration
}

// S3ConfigFrom maps the export section of the configuration file. A custom
// endpoint implies path-style addressing.
func S3ConfigFrom(c config.ExportConfig) S3Config {
	return S3Config{
		Region:        c.S3Region,
		Endpoint:      c.S3Endpoint,
		UsePathStyle:  c.S3Endpoint != "",
		UploadTimeout: 5 * time.Minute,
	}
}

// ParseS3Target splits "bucket/key", optionally prefixed with "s3://".
func ParseS3Target(target string) (bucket, key string, err error) {
	target = strings.TrimPrefix(target, "s3://")
	bucket, key, ok := strings.Cut(target, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", errors.InvalidConfig("s3", target, "expected bucket/key")
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to load AWS config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// UploadS3 uploads the file at localPath to target ("bucket/key").
func UploadS3(ctx context.Context, cfg S3Config, localPath, target string) error {
	bucket, key, err := ParseS3Target(target)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound(localPath)
		}
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to open upload source")
	}
	defer f.Close()

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.UploadTimeout)
		defer cancel()
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to upload to S3").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	return nil
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".parquet"), strings.HasSuffix(path, ".pq"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(path, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
