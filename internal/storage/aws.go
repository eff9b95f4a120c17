package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jdores/selfserve-egressip/internal/domain"
)

// ObjectPutter is the subset of *s3.Client used here.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads batches to an S3 bucket.
type S3Archiver struct {
	s3Client ObjectPutter
	bucket   string
	prefix   string
}

// NewS3Archiver loads AWS credentials from the default chain.
func NewS3Archiver(ctx context.Context, bucket, region, prefix, profile string) (*S3Archiver, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewS3ArchiverWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3ArchiverWithClient wires a pre-built client (tests, custom endpoints).
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{s3Client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads entries as one object.
func (a *S3Archiver) Archive(ctx context.Context, cutoff time.Time, entries []domain.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	key := objectKey(a.prefix, cutoff, entries)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3 bucket %s: %w", a.bucket, err)
	}
	return nil
}
