package archive

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
)

// Config holds webhook archive storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
	// RetainFor is how long processed events stay in the database before
	// they are shipped to object storage.
	RetainFor time.Duration
	BatchSize int
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	retainDays, err := strconv.Atoi(env.GetEnv("ARCHIVE_RETAIN_DAYS", "30"))
	if err != nil || retainDays <= 0 {
		retainDays = 30
	}
	batchSize, err := strconv.Atoi(env.GetEnv("ARCHIVE_BATCH_SIZE", "200"))
	if err != nil || batchSize <= 0 {
		batchSize = 200
	}

	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("ARCHIVE_ENABLED", "false") == "true",
		RetainFor:       time.Duration(retainDays) * 24 * time.Hour,
		BatchSize:       batchSize,
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if event archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates a standardized S3 object key for one webhook event.
func (c *Config) ObjectKey(service string, eventID uint, receivedAt time.Time) string {
	// Format: webhooks/<service>/YYYY/MM/<id>.json
	return fmt.Sprintf("webhooks/%s/%04d/%02d/%d.json", service, receivedAt.Year(), int(receivedAt.Month()), eventID)
}
