package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool
	KeyPrefix       string
}

// objectPutter is the subset of *minio.Client the writer needs.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectWriter stores snapshots in an S3-compatible bucket.
type ObjectWriter struct {
	client    objectPutter
	bucket    string
	keyPrefix string
	now       func() time.Time
}

func NewObjectWriter(ctx context.Context, cfg S3Config) (*ObjectWriter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("snapshot: s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot: s3 bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("snapshot: s3 credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("snapshot: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("snapshot: create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return newObjectWriter(client, cfg.Bucket, cfg.KeyPrefix, time.Now), nil
}

func newObjectWriter(client objectPutter, bucket, keyPrefix string, now func() time.Time) *ObjectWriter {
	return &ObjectWriter{
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		now:       now,
	}
}

func (w *ObjectWriter) Write(ctx context.Context, payload []byte, prefix string, page *int) (Ref, error) {
	body, err := formatPayload(payload)
	if err != nil {
		return Ref{}, err
	}

	at := w.now().UTC()
	name := ObjectName(prefix, page, at)
	key := path.Join(w.keyPrefix, name)

	info, err := w.client.PutObject(ctx, w.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return Ref{}, fmt.Errorf("snapshot: put %s/%s: %w", w.bucket, key, err)
	}

	return Ref{
		Name:      name,
		Location:  fmt.Sprintf("s3://%s/%s", w.bucket, info.Key),
		Prefix:    prefix,
		Page:      pageNumber(page),
		Size:      info.Size,
		WrittenAt: at,
	}, nil
}
