package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config describes an S3-compatible bucket (AWS, MinIO, R2...).
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // empty for AWS
	AccessKey string
	SecretKey string
	// PublicBaseURL is where objects are served from; derived when empty.
	PublicBaseURL string
}

type S3 struct {
	api        objectAPI
	bucket     string
	publicBase string
}

var _ Store = (*S3)(nil)

func NewS3(ctx context.Context, c S3Config) (*S3, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{api: api, bucket: c.Bucket, publicBase: publicBase(c)}, nil
}

func publicBase(c S3Config) string {
	switch {
	case c.PublicBaseURL != "":
		return strings.TrimRight(c.PublicBaseURL, "/")
	case c.Endpoint != "":
		return strings.TrimRight(c.Endpoint, "/") + "/" + c.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, c.Region)
	}
}

func (s *S3) Upload(ctx context.Context, r io.Reader, size int64, contentType, key string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.publicBase+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
