package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures a S3 compatible bucket. Endpoint is needed for
// non AWS providers like Cloudflare R2 or MinIO.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// PutObjectAPI is the part of the s3 client used by S3Store
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes attachments to a bucket. The underlying client is safe for
// concurrent use.
type S3Store struct {
	bucket string
	prefix string
	client PutObjectAPI
}

// NewS3 creates a S3Store from the default aws credential chain, static
// credentials take precedence when set
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3WithClient(cfg.Bucket, cfg.Prefix, client), nil
}

// NewS3WithClient creates a S3Store with a custom client
func NewS3WithClient(bucket, prefix string, client PutObjectAPI) *S3Store {
	return &S3Store{
		bucket: bucket,
		prefix: prefix,
		client: client,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte) error {
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return fmt.Errorf("could not put %s into bucket %s: %w", key, s.bucket, err)
	}
	return nil
}

func (s *S3Store) String() string {
	return "s3://" + s.bucket
}
