// Package archive writes refresh snapshots to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cartcost/backend/internal/domain"
)

// Config holds the archive bucket settings
type Config struct {
	Bucket string
	Region string
	// Endpoint enables a custom endpoint (MinIO, localstack)
	Endpoint        string
	PathStyle       bool
	Prefix          string
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// objectPutter is the slice of the S3 client the sink needs
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Snapshot is the archived document
type Snapshot struct {
	Report domain.RefreshReport `json:"report"`
	Prices []domain.PriceRecord `json:"prices"`
}

// S3Sink implements domain.RefreshSink by uploading one JSON snapshot per refresh run
type S3Sink struct {
	client objectPutter
	bucket string
	prefix string
}

// New creates an S3 sink from Config
func New(ctx context.Context, cfg Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: archive bucket required", domain.ErrInvalidRequest)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSink(client, cfg.Bucket, cfg.Prefix), nil
}

func newSink(client objectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey returns archive/<prefix>/<date>/<runID>.json for a run
func (s *S3Sink) ObjectKey(report domain.RefreshReport) string {
	day := report.StartedAt
	if day.IsZero() {
		day = time.Now()
	}
	return path.Join("archive", s.prefix, day.UTC().Format("2006-01-02"), report.RunID+".json")
}

// Publish implements domain.RefreshSink
func (s *S3Sink) Publish(ctx context.Context, report domain.RefreshReport, records []domain.PriceRecord) error {
	body, err := json.Marshal(Snapshot{Report: report, Prices: records})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := s.ObjectKey(report)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"run-id": report.RunID,
			"rows":   strconv.Itoa(len(records)),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
