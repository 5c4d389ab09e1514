package artifact

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rananth45/wokwi-autoscript/internal/config"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3ConfigFrom maps the environment configuration onto S3Config.
func S3ConfigFrom(c config.ArtifactConfig) S3Config {
	return S3Config{
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		UseSSL:    c.UseSSL,
	}
}

// objectAPI is the part of *minio.Client the mirror uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Mirror uploads documents to an S3-compatible bucket (AWS S3, MinIO).
// Objects whose ETag already matches the content's MD5 are not uploaded
// again, so rerunning an unchanged scan costs one HEAD per document.
type S3Mirror struct {
	api    objectAPI
	bucket string
	region string

	mu    sync.Mutex
	ready bool
}

func NewS3Mirror(cfg S3Config) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	bucket := strings.TrimSpace(cfg.Bucket)
	region := strings.TrimSpace(cfg.Region)
	switch {
	case endpoint == "":
		return nil, fmt.Errorf("artifact: s3 endpoint is required")
	case access == "" || secret == "":
		return nil, fmt.Errorf("artifact: s3 access key and secret key are required")
	case bucket == "":
		return nil, fmt.Errorf("artifact: s3 bucket is required")
	}
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: s3 client: %w", err)
	}
	return &S3Mirror{api: client, bucket: bucket, region: region}, nil
}

// prepare creates the bucket on first use. A failure is retried on the next
// Put rather than remembered.
func (m *S3Mirror) prepare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}
	ok, err := m.api.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("artifact: bucket %s: %w", m.bucket, err)
	}
	if !ok {
		if err := m.api.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return fmt.Errorf("artifact: create bucket %s: %w", m.bucket, err)
		}
	}
	m.ready = true
	return nil
}

func (m *S3Mirror) Put(ctx context.Context, namespace, name string, content []byte) error {
	key, err := Key(namespace, name)
	if err != nil {
		return err
	}
	if err := m.prepare(ctx); err != nil {
		return err
	}
	sum := md5.Sum(content)
	etag := hex.EncodeToString(sum[:])
	// Any stat failure, missing object included, falls through to upload.
	if info, err := m.api.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err == nil && strings.Trim(info.ETag, `"`) == etag {
		return nil
	}
	_, err = m.api.PutObject(ctx, m.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType:    contentType(name),
		SendContentMd5: true,
	})
	if err != nil {
		return fmt.Errorf("artifact: put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}
