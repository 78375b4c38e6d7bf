// Package archive ships aged webhook events from the database to S3
// compatible object storage so the hot table stays small while the full
// delivery history remains queryable offline.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

// objectPutter is the slice of the S3 API the archiver uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver moves settled webhook events older than the retention window to
// object storage and marks the rows archived.
type Archiver struct {
	s3Client objectPutter
	repo     webhook.Repository
	config   *Config
	now      func() time.Time
}

// NewArchiver creates an archiver over the given repository. It builds the
// S3 client from the config and verifies bucket access.
func NewArchiver(cfg *Config, repo webhook.Repository) (*Archiver, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("event archiving is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services need path-style URLs.
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	a := &Archiver{s3Client: s3Client, repo: repo, config: cfg, now: time.Now}
	if err := a.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] initialized for bucket %s, retaining events %s", cfg.BucketName, cfg.RetainFor)
	return a, nil
}

func (a *Archiver) testConnection() error {
	client, ok := a.s3Client.(*s3.Client)
	if !ok {
		return nil
	}
	_, err := client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(a.config.BucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", a.config.BucketName, err)
	}
	return nil
}

// Run archives one batch of settled events past the retention window and
// reports how many were shipped. Callers loop until it returns 0.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.config.RetainFor)
	events, err := a.repo.ListArchivable(cutoff, a.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list archivable events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	archived := make([]uint, 0, len(events))
	for i := range events {
		event := &events[i]
		body, err := json.Marshal(event)
		if err != nil {
			log.Errorf("[Archive] marshal event %d: %v", event.ID, err)
			continue
		}

		key := a.config.ObjectKey(event.Service, event.ID, event.CreatedAt)
		_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.config.BucketName),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			// Leave the row unarchived; the next run retries it.
			log.Errorf("[Archive] upload event %d to %s: %v", event.ID, key, err)
			continue
		}
		archived = append(archived, event.ID)
	}

	if len(archived) > 0 {
		if err := a.repo.MarkArchived(archived); err != nil {
			return 0, fmt.Errorf("mark events archived: %w", err)
		}
	}
	log.Infof("[Archive] shipped %d of %d eligible events", len(archived), len(events))
	return len(archived), nil
}
