package s3Publisher

import (
	"bytes"
	"context"
	"fmt"
	"path"

	internalAws "github.com/Layr-Labs/merkle-distributor-go/internal/aws"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/publisher"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// IUploader is the part of *manager.Uploader used for publishing
type IUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// IDeleter is the part of *s3.Client used to withdraw artifacts
type IDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3PublisherConfig struct {
	Bucket string
	// Prefix is joined in front of every object key
	Prefix string
	Region string
}

// S3Publisher uploads artifacts to an S3 bucket
type S3Publisher struct {
	uploader IUploader
	deleter  IDeleter
	config   *S3PublisherConfig
	logger   *zap.Logger
}

var (
	_ publisher.IPublisher = (*S3Publisher)(nil)
	_ IUploader            = (*manager.Uploader)(nil)
	_ IDeleter             = (*s3.Client)(nil)
)

// NewS3PublisherFromEnvironment loads AWS credentials from the default chain
// and logs the identity uploads will be made with.
func NewS3PublisherFromEnvironment(ctx context.Context, cfg *S3PublisherConfig, logger *zap.Logger) (*S3Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 publisher config cannot be nil")
	}
	awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if err := internalAws.LogCallerIdentity(ctx, awsCfg, logger); err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	return NewS3Publisher(manager.NewUploader(client), client, cfg, logger)
}

func NewS3Publisher(uploader IUploader, deleter IDeleter, cfg *S3PublisherConfig, logger *zap.Logger) (*S3Publisher, error) {
	if uploader == nil {
		return nil, fmt.Errorf("s3 uploader cannot be nil")
	}
	if deleter == nil {
		return nil, fmt.Errorf("s3 deleter cannot be nil")
	}
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	return &S3Publisher{
		uploader: uploader,
		deleter:  deleter,
		config:   cfg,
		logger:   logger,
	}, nil
}

// ObjectKey is the key an artifact name is stored under
func (sp *S3Publisher) ObjectKey(name string) string {
	if sp.config.Prefix == "" {
		return name
	}
	return path.Join(sp.config.Prefix, name)
}

func (sp *S3Publisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := publisher.ValidateName(name); err != nil {
		return "", err
	}
	key := sp.ObjectKey(name)

	output, err := sp.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sp.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", name, sp.config.Bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", sp.config.Bucket, key)
	sp.logger.Sugar().Infow("Published artifact",
		"location", location,
		"url", output.Location,
		"etag", aws.ToString(output.ETag),
		"bytes", len(data),
	)
	return location, nil
}

// Remove deletes the object an artifact was published under. S3 reports
// success for keys that do not exist.
func (sp *S3Publisher) Remove(ctx context.Context, name string) error {
	if err := publisher.ValidateName(name); err != nil {
		return err
	}
	key := sp.ObjectKey(name)

	if _, err := sp.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sp.config.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", sp.config.Bucket, key, err)
	}

	sp.logger.Sugar().Infow("Removed artifact", "location", fmt.Sprintf("s3://%s/%s", sp.config.Bucket, key))
	return nil
}
