// Package storage archives rover map snapshots on S3-compatible storage.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/options"
)

// objectPutter is the subset of the minio client the archive writes through.
type objectPutter interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MapArchive stores MAP_DATA payloads as maps/{roverId}/{unix-ms}.json.
type MapArchive struct {
	client objectPutter
	bucket string
	region string
}

// NewMapArchive creates an archive backed by the configured S3 endpoint.
func NewMapArchive(opts *options.S3Options) (*MapArchive, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MapArchive{client: client, bucket: opts.BucketName, region: opts.Region}, nil
}

// CheckBucket creates the bucket when it does not exist yet.
func (a *MapArchive) CheckBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Info("Bucket does not exist, creating...", "bucket", a.bucket)
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// SaveMap writes one map snapshot and returns its object key.
func (a *MapArchive) SaveMap(ctx context.Context, roverID int64, at time.Time, data []byte) (string, error) {
	key := MapKey(roverID, at)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// MapKey returns the object key for a snapshot taken at the given time.
func MapKey(roverID int64, at time.Time) string {
	return fmt.Sprintf("maps/%d/%d.json", roverID, at.UnixMilli())
}
