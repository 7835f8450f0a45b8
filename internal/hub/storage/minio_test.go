package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	exists  bool
	made    bool
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeBucket) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeBucket) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made, f.exists = true, true
	return nil
}

func (f *fakeBucket) PutObject(_ context.Context, _, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = data
	f.types[key] = opts.ContentType
	return minio.UploadInfo{Key: key, Size: size}, nil
}

func TestMapKey(t *testing.T) {
	at := time.UnixMilli(1_700_000_123_456)
	assert.Equal(t, "maps/7/1700000123456.json", MapKey(7, at))
}

func TestSaveMap(t *testing.T) {
	fake := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	a := &MapArchive{client: fake, bucket: "rover-maps"}

	require.NoError(t, a.CheckBucket(context.Background()))
	assert.True(t, fake.made)

	at := time.UnixMilli(42)
	key, err := a.SaveMap(context.Background(), 3, at, []byte(`{"grid":[1,0]}`))
	require.NoError(t, err)
	assert.Equal(t, "maps/3/42.json", key)
	assert.JSONEq(t, `{"grid":[1,0]}`, string(fake.objects[key]))
	assert.Equal(t, "application/json", fake.types[key])
}
