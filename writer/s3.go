package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cryptoreport/config"
	"cryptoreport/logger"
)

// PublishError reports a failed artifact upload.
type PublishError struct {
	Key string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Key, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ObjectPutter is the part of the S3 client the publisher uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads the latest artifacts to fixed keys under
// <prefix>/latest/, overwriting the previous upload.
type S3Publisher struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	version string
	log     *logger.Log
}

// NewS3Publisher loads AWS configuration the same way for every client:
// region from config, static keys when both are set, the default chain
// otherwise.
func NewS3Publisher(ctx context.Context, cfg config.S3Config, version string, log *logger.Log) (*S3Publisher, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_publisher").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_publisher").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 publisher initialized")

	return NewS3PublisherWithClient(client, cfg.Bucket, cfg.Prefix, version, log), nil
}

// NewS3PublisherWithClient builds a publisher on an existing client.
func NewS3PublisherWithClient(client ObjectPutter, bucket, prefix, version string, log *logger.Log) *S3Publisher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &S3Publisher{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		version: version,
		log:     log,
	}
}

// KeyFor returns the object key a local file is published under.
func (p *S3Publisher) KeyFor(file string) string {
	return path.Join(p.prefix, "latest", filepath.Base(file))
}

// Publish uploads each file in order and stops at the first failure.
func (p *S3Publisher) Publish(ctx context.Context, files ...string) error {
	for _, file := range files {
		if file == "" {
			continue
		}
		if err := p.upload(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (p *S3Publisher) upload(ctx context.Context, file string) error {
	key := p.KeyFor(file)
	log := p.log.WithComponent("s3_publisher").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"bucket":    p.bucket,
		"s3_key":    key,
	})

	data, err := os.ReadFile(file)
	if err != nil {
		return &PublishError{Key: key, Err: fmt.Errorf("failed to read %s: %w", file, err)}
	}

	start := time.Now()
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(file)),
		Metadata: map[string]string{
			"cryptoreport-version": p.version,
		},
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		log.WithError(err).WithEnv("S3_BUCKET").Error("failed to upload to S3")
		return &PublishError{Key: key, Err: err}
	}

	logger.LogPerformanceEntry(log, "s3_publisher", "upload_to_s3", time.Since(start), logger.Fields{
		"data_size": len(data),
	})
	return nil
}

func contentTypeFor(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
