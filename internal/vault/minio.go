package vault

import (
	"context"
	"fmt"
	"io"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioVault stores objects in a MinIO (or other S3-compatible) bucket.
// Useful for on-premise deployments next to the field crews' LAN.
type MinioVault struct {
	client    *minio.Client
	bucket    string
	prefix    string
	region    string
	publicURL string
}

// NewMinioVault creates a MinIO vault. Endpoint is host:port without scheme.
func NewMinioVault(cfg config.StorageConfig) (*MinioVault, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio vault requires endpoint to be set")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio vault requires bucket to be set")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &MinioVault{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		region:    cfg.Region,
		publicURL: cfg.PublicURL,
	}, nil
}

// Upload stores the object and returns its URL.
func (v *MinioVault) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	objKey := objectKey(v.prefix, key)
	info, err := v.client.PutObject(ctx, v.bucket, objKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", classifyMinio("minio upload", err)
	}
	if info.Size != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, uploaded %d", size, info.Size)
	}

	if v.publicURL != "" {
		return joinURL(v.publicURL, objKey), nil
	}
	return joinURL(v.client.EndpointURL().String(), v.bucket+"/"+objKey), nil
}

// ValidateSetup checks the bucket exists and creates it if missing.
func (v *MinioVault) ValidateSetup(ctx context.Context) error {
	exists, err := v.client.BucketExists(ctx, v.bucket)
	if err != nil {
		return classifyMinio("minio bucket exists", err)
	}
	if exists {
		return nil
	}

	if err := v.client.MakeBucket(ctx, v.bucket, minio.MakeBucketOptions{Region: v.region}); err != nil {
		return classifyMinio("minio make bucket "+v.bucket, err)
	}
	return nil
}

// Compile-time check that MinioVault implements fieldsync.RemoteStorage interface
var _ fieldsync.RemoteStorage = (*MinioVault)(nil)
