package s3

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/feichai0017/document-chunker/config"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type S3Storage struct {
	client     *s3.Client
	bucketName string
	logger     logger.Logger
}

// Store uploads reader under key.
func (s *S3Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   reader,
	})
	if err != nil {
		s.logger.Error("Failed to store file to S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return key, nil
}

func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.GetFrom(ctx, s.bucketName, key)
}

// GetFrom reads key from any bucket the credentials can access. It serves
// s3://bucket/key document sources.
func (s *S3Storage) GetFrom(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("Failed to get file from S3",
			logger.String("bucket", bucket),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return result.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("Failed to delete file from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *S3Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("Failed to list objects",
				logger.String("bucket", s.bucketName),
				logger.Error(err),
			)
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(threshold) {
				continue
			}
			if err := s.Delete(ctx, aws.ToString(obj.Key)); err != nil {
				continue
			}
			s.logger.Info("Deleted expired object",
				logger.String("key", aws.ToString(obj.Key)),
				logger.Time("lastModified", *obj.LastModified),
			)
		}
	}
	return nil
}

// NewS3Storage connects with static credentials and checks that the bucket
// exists.
func NewS3Storage(ctx context.Context, c *cfg.S3Config, log logger.Logger) (*S3Storage, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log.Info("S3 configuration",
		logger.String("bucket", c.BucketName),
		logger.String("region", c.Region),
		logger.String("endpoint", c.Endpoint),
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.BucketName)}); err != nil {
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}
	return NewWithClient(client, c.BucketName, log), nil
}

func NewWithClient(client *s3.Client, bucket string, log logger.Logger) *S3Storage {
	if log == nil {
		log = logger.NewNop()
	}
	return &S3Storage{client: client, bucketName: bucket, logger: log.Named("s3")}
}
