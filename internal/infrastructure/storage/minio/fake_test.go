package minio

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// fakeAPI is an in-memory ObjectAPI.
type fakeAPI struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	gets    int
	listErr error
}

func newFakeAPI(buckets ...string) *fakeAPI {
	f := &fakeAPI{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		f.buckets[b] = make(map[string][]byte)
	}
	return f
}

func (f *fakeAPI) put(bucket, key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket][key] = []byte(content)
}

func etagOf(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func (f *fakeAPI) ListBuckets(context.Context) ([]minio.BucketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []minio.BucketInfo
	for b := range f.buckets {
		out = append(out, minio.BucketInfo{Name: b})
	}
	return out, nil
}

func (f *fakeAPI) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[bucket]
	return ok, nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = make(map[string][]byte)
	return nil
}

func (f *fakeAPI) object(bucket, key string) ([]byte, error) {
	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchBucket", BucketName: bucket}
	}
	data, ok := objs[key]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", BucketName: bucket, Key: key}
	}
	return data, nil
}

func (f *fakeAPI) StatObject(_ context.Context, bucket, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.object(bucket, key)
	if err != nil {
		return minio.ObjectInfo{}, err
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data)), ETag: etagOf(data)}, nil
}

func (f *fakeAPI) FGetObject(_ context.Context, bucket, key, filePath string, _ minio.GetObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, err := f.object(bucket, key)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0o644)
}

func (f *fakeAPI) FPutObject(_ context.Context, bucket, key, filePath string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket][key] = data
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data)), ETag: etagOf(data)}, nil
}

func (f *fakeAPI) ListObjects(_ context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.buckets[bucket] {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		data := f.buckets[bucket][k]
		ch <- minio.ObjectInfo{Key: k, Size: int64(len(data)), ETag: etagOf(data), LastModified: time.Unix(0, 0)}
	}
	close(ch)
	return ch
}
