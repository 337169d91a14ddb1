package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MediaConfig carries the S3 settings for outbound media objects. Endpoint
// and the static key pair are optional: set them for MinIO-style deployments,
// leave them empty to use the ambient AWS credential chain.
type MediaConfig struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// MediaStore resolves media objects stored in S3: it presigns GET URLs so
// channel adapters can hand out a time-limited link instead of proxying
// bytes, and downloads object bytes for callers that need to decode media
// locally.
type MediaStore struct {
	bucket   string
	presign  *s3.PresignClient
	download *manager.Downloader
	validity time.Duration
}

func NewMediaStore(ctx context.Context, cfg MediaConfig) (*MediaStore, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &MediaStore{
		bucket:   cfg.Bucket,
		presign:  s3.NewPresignClient(client),
		download: manager.NewDownloader(client),
		validity: 15 * time.Minute,
	}, nil
}

// ResolveURL presigns an internal s3://bucket/key reference into a
// time-limited HTTPS URL. Any other URL is returned unchanged.
func (m *MediaStore) ResolveURL(ctx context.Context, rawURL string) (string, error) {
	bucket, key, ok := parseObjectURL(rawURL, m.bucket)
	if !ok {
		return rawURL, nil
	}
	req, err := m.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(m.validity))
	if err != nil {
		return "", fmt.Errorf("dispatch: presign %s: %w", rawURL, err)
	}
	return req.URL, nil
}

// Fetch downloads the object behind an s3://bucket/key reference.
func (m *MediaStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, ok := parseObjectURL(rawURL, m.bucket)
	if !ok {
		return nil, fmt.Errorf("dispatch: %s is not an object reference", rawURL)
	}
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := m.download.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("dispatch: download %s: %w", rawURL, err)
	}
	return buf.Bytes(), nil
}

// parseObjectURL splits s3://bucket/key into its parts; an empty bucket
// segment (s3:///key) falls back to defaultBucket.
func parseObjectURL(rawURL, defaultBucket string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(rawURL, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || key == "" {
		return "", "", false
	}
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" {
		return "", "", false
	}
	return bucket, key, true
}
