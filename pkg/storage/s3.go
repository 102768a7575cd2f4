package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultObjectKey is the object the module list is stored in
const DefaultObjectKey = "noderegistry/config.nodes.json"

var tracer = otel.Tracer("github.com/platinummonkey/noderegistry/pkg/storage")

// S3API is the part of the S3 client the store uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps the module list as a JSON object in a bucket
type S3Store struct {
	client S3API
	bucket string
	key    string
}

// OpenS3Store builds an S3 client from cfg
func OpenS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("no bucket configured for s3 store")
	}

	var awsConfig aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials (MinIO or AWS with explicit keys)
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.S3Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return NewS3Store(client, cfg.S3Bucket, cfg.S3Key), nil
}

// NewS3Store wraps an existing client
func NewS3Store(client S3API, bucket, key string) *S3Store {
	if key == "" {
		key = DefaultObjectKey
	}
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Load implements Store
func (s *S3Store) Load(ctx context.Context) ([]ModuleRecord, error) {
	ctx, span := tracer.Start(ctx, "S3Store.Load",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", s.key),
		),
	)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			span.SetStatus(codes.Ok, "no module list stored")
			return []ModuleRecord{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object")
		return nil, fmt.Errorf("failed to get module list from s3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read object")
		return nil, fmt.Errorf("failed to read module list: %w", err)
	}

	var modules []ModuleRecord
	if err := json.Unmarshal(data, &modules); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode object")
		return nil, fmt.Errorf("failed to unmarshal module list: %w", err)
	}

	span.SetAttributes(attribute.Int("modules.count", len(modules)))
	return modules, nil
}

// Save implements Store
func (s *S3Store) Save(ctx context.Context, modules []ModuleRecord) error {
	ctx, span := tracer.Start(ctx, "S3Store.Save",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", s.key),
			attribute.Int("modules.count", len(modules)),
		),
	)
	defer span.End()

	data, err := json.Marshal(modules)
	if err != nil {
		return fmt.Errorf("failed to marshal module list: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload module list to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "module list uploaded")
	return nil
}

// Close implements Store
func (s *S3Store) Close() error {
	return nil
}
