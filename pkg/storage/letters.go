package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LetterStore archives generated cover letters and screening answers for
// later review. Writes are best effort; callers log and continue on error.
type LetterStore interface {
	// Store saves the artifact for a vacancy and returns a reference.
	Store(ctx context.Context, vacancyID string, body []byte) (string, error)
}

// S3LetterStore archives letters in S3-compatible storage.
type S3LetterStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3LetterStoreConfig holds S3 configuration.
type S3LetterStoreConfig struct {
	Bucket          string
	Prefix          string // e.g. "letters/"
	Region          string
	Endpoint        string // for MinIO/local S3
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3LetterStore creates an S3-backed letter store.
func NewS3LetterStore(cfg S3LetterStoreConfig) (*S3LetterStore, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	return &S3LetterStore{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Store uploads the artifact to S3 keyed by date and vacancy.
func (s *S3LetterStore) Store(ctx context.Context, vacancyID string, body []byte) (string, error) {
	key := fmt.Sprintf("%s%s/%s.txt", s.prefix, time.Now().UTC().Format("2006/01/02"), vacancyID)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload letter to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// LocalLetterStore archives letters on the local filesystem.
type LocalLetterStore struct {
	basePath string
}

// NewLocalLetterStore creates a filesystem letter store.
func NewLocalLetterStore(basePath string) (*LocalLetterStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create letters directory: %w", err)
	}
	return &LocalLetterStore{basePath: basePath}, nil
}

func (l *LocalLetterStore) Store(ctx context.Context, vacancyID string, body []byte) (string, error) {
	path := filepath.Join(l.basePath, vacancyID+".txt")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write letter: %w", err)
	}
	return path, nil
}
