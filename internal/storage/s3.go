package storage

import (
	"bytes"
	"context"
	"log"

	"mnfit/studio-api/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3Archiver implements RetentionArchiver on an S3-compatible bucket.
type s3Archiver struct {
	client     *s3.Client
	bucketName string
	prefix     string
}

// NewS3Archiver creates the archive client. It returns (nil, nil) when no bucket is configured,
// which disables archiving.
func NewS3Archiver(ctx context.Context, cfg config.S3Config) (RetentionArchiver, error) {
	if cfg.BucketName == "" {
		log.Println("INFO: S3 bucket not configured, retention archive disabled")
		return nil, nil
	}

	// Custom resolver for S3-compatible endpoints (like MinIO, DigitalOcean Spaces)
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		// Fallback to default AWS endpoint resolution if no custom endpoint is set
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	opts := []func(*awsCfg.LoadOptions) error{
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithEndpointResolverWithOptions(customResolver),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsSDKConfig, err := awsCfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Printf("ERROR: Failed to load AWS SDK config for S3: %v", err)
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		o.UsePathStyle = true // Required by MinIO and most S3-compatible services
	})

	log.Printf("INFO: S3 retention archive initialized for endpoint: %s, bucket: %s", cfg.Endpoint, cfg.BucketName)

	return &s3Archiver{
		client:     s3Client,
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
	}, nil
}

// Archive uploads the batch as one JSON object.
func (s *s3Archiver) Archive(ctx context.Context, batch PurgeBatch) (string, error) {
	body, err := EncodeBatch(batch)
	if err != nil {
		return "", err
	}

	key := ArchiveKey(s.prefix, batch.PurgedAt, uuid.NewString())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Printf("ERROR: Failed to upload retention archive '%s' to bucket '%s': %v", key, s.bucketName, err)
		return "", err
	}

	log.Printf("INFO: Archived %d terms and %d bookings to '%s'", len(batch.Terms), len(batch.Bookings), key)
	return key, nil
}
