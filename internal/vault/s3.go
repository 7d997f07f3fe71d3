package vault

import (
	"context"
	"fmt"
	"io"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Vault stores objects in an S3 bucket, or any S3-compatible service
// reachable at a custom endpoint.
type S3Vault struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Vault creates an S3 vault. Credentials come from cfg when set and
// from the default AWS chain otherwise.
func NewS3Vault(ctx context.Context, cfg config.StorageConfig) (*S3Vault, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Vault{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		publicURL: cfg.PublicURL,
	}, nil
}

// Upload stores the object with a multipart-capable uploader.
func (v *S3Vault) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	objKey := objectKey(v.prefix, key)
	out, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(objKey),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", classifyS3("s3 upload", err)
	}

	if v.publicURL != "" {
		return joinURL(v.publicURL, objKey), nil
	}
	return out.Location, nil
}

// ValidateSetup checks that the bucket exists and is accessible.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	_, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)})
	if err != nil {
		return classifyS3("s3 head bucket "+v.bucket, err)
	}
	return nil
}

// Compile-time check that S3Vault implements fieldsync.RemoteStorage interface
var _ fieldsync.RemoteStorage = (*S3Vault)(nil)
