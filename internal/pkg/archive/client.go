package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// Client writes raw webhook payloads to S3 so provider events can be
// reconciled manually later. Archival is best-effort: the webhook pipeline
// never fails because the archive is down.
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new webhook archive client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("webhook archive is disabled")
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
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
			// S3-compatible stores (Backblaze, MinIO) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[Archive] Webhook archive initialized for bucket: %s", cfg.GetBucketName())
	return &Client{s3Client: s3Client, config: cfg}, nil
}

// StoreWebhookPayload uploads the exact raw bytes of one delivery.
func (c *Client) StoreWebhookPayload(ctx context.Context, provider, eventID string, payload []byte) error {
	key := c.config.GetObjectKey(provider, eventID, time.Now())

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.GetBucketName()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive webhook payload %s: %w", key, err)
	}
	return nil
}

// StoreAsync archives in the background and only logs failures. Used from
// the webhook hot path.
func (c *Client) StoreAsync(provider, eventID string, payload []byte) {
	buf := append([]byte(nil), payload...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.StoreWebhookPayload(ctx, provider, eventID, buf); err != nil {
			log.Warnf("[Archive] %v", err)
		}
	}()
}
