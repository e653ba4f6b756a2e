package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// S3Client is the subset of the S3 API the archive sink needs.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket. Credentials fall back to the default AWS chain.
type S3Config struct {
	Bucket         string `env:"S3_BUCKET"`
	Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	Prefix         string `env:"S3_PREFIX" envDefault:"usage"`
	Endpoint       string `env:"S3_ENDPOINT"` // For S3-compatible services
	AccessKeyID    string `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"S3_SECRET_KEY"`
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE"` // MinIO and similar
}

// S3Sink archives each batch as <prefix>/YYYY/MM/DD/<uuid>.xml.gz.
type S3Sink struct {
	client  S3Client
	bucket  string
	prefix  string
	builder *PacketBuilder
	now     func() time.Time
}

// S3Option configures an S3Sink.
type S3Option func(*s3Options)

type s3Options struct {
	client  S3Client
	builder *PacketBuilder
	now     func() time.Time
	loadFns []func(*config.LoadOptions) error
}

// WithS3Client uses a pre-built client. Useful for tests.
func WithS3Client(c S3Client) S3Option {
	return func(o *s3Options) { o.client = c }
}

// WithS3PacketBuilder shares a packet builder with other sinks.
func WithS3PacketBuilder(b *PacketBuilder) S3Option {
	return func(o *s3Options) { o.builder = b }
}

// WithS3Clock overrides the clock used for object keys.
func WithS3Clock(now func() time.Time) S3Option {
	return func(o *s3Options) { o.now = now }
}

// WithAWSConfigOption passes extra options to config.LoadDefaultConfig.
func WithAWSConfigOption(fn func(*config.LoadOptions) error) S3Option {
	return func(o *s3Options) { o.loadFns = append(o.loadFns, fn) }
}

// NewS3Sink builds the AWS client from cfg unless one is supplied with WithS3Client.
func NewS3Sink(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: S3 bucket is required", ErrInvalidConfig)
	}

	o := &s3Options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		loadFns := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadFns = append(loadFns, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		loadFns = append(loadFns, o.loadFns...)

		awsCfg, err := config.LoadDefaultConfig(ctx, loadFns...)
		if err != nil {
			return nil, fmt.Errorf("%w: load AWS config: %w", ErrInvalidConfig, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	builder := o.builder
	if builder == nil {
		builder = NewPacketBuilder()
	}

	return &S3Sink{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		builder: builder,
		now:     o.now,
	}, nil
}

// Name identifies the sink in logs.
func (s *S3Sink) Name() string { return "s3" }

// Send uploads the batch as a single gzip object.
func (s *S3Sink) Send(ctx context.Context, batch shareusage.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	var body bytes.Buffer
	if err := s.builder.Build(batch).EncodeGzip(&body); err != nil {
		return err
	}

	key := s.objectKey()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body.Bytes()),
		ContentLength:   aws.Int64(int64(body.Len())),
		ContentType:     aws.String("application/xml"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			"records":    fmt.Sprint(batch.Len()),
			"session-id": s.builder.SessionID(),
		},
	})
	if err != nil {
		return s3Error(key, err)
	}
	return nil
}

func (s *S3Sink) objectKey() string {
	day := s.now().UTC().Format("2006/01/02")
	name := uuid.NewString() + ".xml.gz"
	if s.prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(s.prefix, day, name)
}

func s3Error(key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s: %w", ErrArchiveFailed, key, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%w: %s: %w", ErrArchiveFailed, key, err)
}
