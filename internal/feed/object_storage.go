package feed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/elijahthis/crawl-accessory/internal/metrics"
)

const (
	SchemeOBS = "obs" // Huawei Cloud OBS
	SchemeOSS = "oss" // Aliyun OSS
	SchemeS3  = "s3"  // AWS S3 or MinIO

	defaultRegion = "us-east-1"
)

// ObjectStorage uploads feeds through the S3 compatible API that OBS, OSS
// and MinIO all expose.
type ObjectStorage struct {
	client  *s3.Client
	scheme  string
	bucket  string
	key     string
	metrics *metrics.PrometheusMetrics
}

func NewObjectStorage(ctx context.Context, target Target, creds Credentials, m *metrics.PrometheusMetrics) (*ObjectStorage, error) {
	accessKey := firstNonEmpty(target.AccessKey, creds.AccessKey)
	secretKey := firstNonEmpty(target.SecretKey, creds.SecretKey)

	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: missing access key or secret key for %s", ErrNotConfigured, target.Scheme)
	}
	if creds.Endpoint == "" && target.Scheme != SchemeS3 {
		return nil, fmt.Errorf("%w: missing endpoint for %s", ErrNotConfigured, target.Scheme)
	}
	if target.Bucket == "" || target.Key == "" {
		return nil, fmt.Errorf("%w: feed uri needs a bucket and a key", ErrNotConfigured)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(firstNonEmpty(creds.Region, defaultRegion)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s config: %v", ErrNotConfigured, target.Scheme, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
		}
		o.UsePathStyle = creds.PathStyle
		// OBS and OSS reject the flexible checksum trailers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &ObjectStorage{
		client:  client,
		scheme:  target.Scheme,
		bucket:  target.Bucket,
		key:     target.Key,
		metrics: m,
	}, nil
}

func (s *ObjectStorage) Store(ctx context.Context, r io.ReadSeeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   r,
	})
	s.metrics.ObserveFeedUpload(s.scheme, time.Since(start), err)

	if err != nil {
		return fmt.Errorf("store feed %s://%s/%s: %w", s.scheme, s.bucket, s.key, err)
	}

	log.Info().Str("scheme", s.scheme).Str("bucket", s.bucket).Str("key", s.key).Msg("Uploaded feed")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
