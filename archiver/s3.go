package archiver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds the configuration for the results export bucket.
type S3Config struct {
	Enabled   bool
	HostBase  string
	AccessKey string
	SecretKey string
	Space     string
	Bucket    string
}

// DefaultS3Config returns a new S3Config with default values.
func DefaultS3Config() *S3Config {
	return &S3Config{
		Enabled:  false,
		HostBase: "ams3.digitaloceanspaces.com",
		Space:    "sealedvote",
		Bucket:   "results",
	}
}

// s3Uploader handles archive uploads to S3 compatible object storage.
type s3Uploader struct {
	client *s3.Client
	config *S3Config
}

func newS3Uploader(cfg *S3Config) (*s3Uploader, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("s3 export not enabled")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}

	sdkConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // Session token not used with S3 compatible spaces
		)),
		config.WithRegion("us-east-1"), // required by the SDK, ignored by S3 compatible spaces
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.HostBase))
		o.UsePathStyle = true
	})

	return &s3Uploader{
		client: client,
		config: cfg,
	}, nil
}

// upload puts the object into the configured space and makes it publicly
// readable. Published results are public data.
func (u *s3Uploader) upload(ctx context.Context, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Space),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	_, err = u.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(u.config.Space),
		Key:    aws.String(key),
		ACL:    s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("failed to set ACL for object %s: %w", key, err)
	}
	return nil
}

// checkConnection lists a single object to verify the credentials and the
// endpoint before the event loop starts.
func (u *s3Uploader) checkConnection(ctx context.Context) error {
	_, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(u.config.Space),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("s3 connection test failed: %w", err)
	}
	return nil
}
