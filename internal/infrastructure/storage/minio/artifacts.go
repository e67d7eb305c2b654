package minio

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// Scheme prefixes object references.
const Scheme = "s3://"

// etagSuffix names the sidecar file that records a cached object's ETag.
const etagSuffix = ".etag"

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "artifact object not found")

// ObjectRef addresses one object.
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) String() string {
	return Scheme + r.Bucket + "/" + r.Key
}

// ParseRef parses "s3://bucket/key".  A reference without a bucket
// ("s3:///key" or "s3://key") uses defaultBucket.
func ParseRef(ref, defaultBucket string) (ObjectRef, error) {
	if !strings.HasPrefix(ref, Scheme) {
		return ObjectRef{}, errors.InvalidParam("artifact reference must start with s3://").WithDetail(ref)
	}
	rest := strings.TrimPrefix(ref, Scheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found {
		bucket, key = "", rest
	}
	if bucket == "" {
		bucket = defaultBucket
	}
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if bucket == "" || key == "" || key == "." {
		return ObjectRef{}, errors.InvalidParam("artifact reference needs a bucket and a key").WithDetail(ref)
	}
	return ObjectRef{Bucket: bucket, Key: key}, nil
}

// ArtifactInfo describes a stored artifact.
type ArtifactInfo struct {
	Ref          string    `json:"ref"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// ArtifactStore downloads model artifacts into a local cache directory and
// uploads packed ones.  A cached file is reused while its ETag matches the
// remote object.
type ArtifactStore struct {
	client   *MinIOClient
	cacheDir string
	metrics  *prom.AnnotationMetrics
	logger   logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type ArtifactOption func(*ArtifactStore)

func WithArtifactMetrics(m *prom.AnnotationMetrics) ArtifactOption {
	return func(s *ArtifactStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithArtifactLogger(l logging.Logger) ArtifactOption {
	return func(s *ArtifactStore) { s.logger = l }
}

// NewArtifactStore creates a store caching into cacheDir.  An empty cacheDir
// uses a clinlink directory under the OS temp dir.
func NewArtifactStore(client *MinIOClient, cacheDir string, opts ...ArtifactOption) *ArtifactStore {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "clinlink-artifacts")
	}
	s := &ArtifactStore{
		client:   client,
		cacheDir: cacheDir,
		metrics:  prom.NewNopMetrics(),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("artifacts")
	return s
}

// LocalPath returns where ref is cached.
func (s *ArtifactStore) LocalPath(ref ObjectRef) string {
	return filepath.Join(s.cacheDir, ref.Bucket, filepath.FromSlash(ref.Key))
}

func (s *ArtifactStore) lockFor(p string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[p]
	if !ok {
		l = &sync.Mutex{}
		s.locks[p] = l
	}
	return l
}

// Resolve downloads ref unless an up-to-date copy is cached and returns the
// local file path.
func (s *ArtifactStore) Resolve(ctx context.Context, ref string) (string, error) {
	if s.client.isClosed() {
		return "", ErrMinIOClientClosed
	}
	obj, err := ParseRef(ref, s.client.DefaultBucket())
	if err != nil {
		return "", err
	}
	local := s.LocalPath(obj)

	l := s.lockFor(local)
	l.Lock()
	defer l.Unlock()

	info, err := s.client.client.StatObject(ctx, obj.Bucket, obj.Key, minio.StatObjectOptions{})
	if err != nil {
		return "", objectErr(err, errors.ErrCodeArtifactFetch, "failed to stat artifact", ref)
	}
	if cachedETag(local) == info.ETag && fileSize(local) == info.Size {
		s.logger.Debug("artifact cache hit", logging.String("ref", ref), logging.String("path", local))
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactFetch, "failed to create artifact cache dir").WithDetail(local)
	}
	start := time.Now()
	tmp := local + ".part"
	if err := s.client.client.FGetObject(ctx, obj.Bucket, obj.Key, tmp, minio.GetObjectOptions{}); err != nil {
		_ = os.Remove(tmp)
		return "", objectErr(err, errors.ErrCodeArtifactFetch, "failed to download artifact", ref)
	}
	if err := os.Rename(tmp, local); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactFetch, "failed to install artifact").WithDetail(local)
	}
	if err := os.WriteFile(local+etagSuffix, []byte(info.ETag), 0o644); err != nil {
		s.logger.Warn("failed to record artifact etag", logging.String("path", local), logging.Err(err))
	}

	elapsed := time.Since(start)
	s.metrics.ArtifactFetchDuration.WithLabelValues(path.Base(obj.Key)).Observe(elapsed.Seconds())
	s.logger.Info("artifact downloaded",
		logging.String("ref", ref),
		logging.String("path", local),
		logging.Int64("size", info.Size),
		logging.Duration("duration", elapsed))
	return local, nil
}

// Upload stores the file at localPath under ref and returns the object ETag.
func (s *ArtifactStore) Upload(ctx context.Context, localPath, ref string) (string, error) {
	if s.client.isClosed() {
		return "", ErrMinIOClientClosed
	}
	obj, err := ParseRef(ref, s.client.DefaultBucket())
	if err != nil {
		return "", err
	}
	if err := s.client.EnsureBucket(ctx, obj.Bucket); err != nil {
		return "", err
	}
	up, err := s.client.client.FPutObject(ctx, obj.Bucket, obj.Key, localPath, minio.PutObjectOptions{
		ContentType: contentType(obj.Key),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactUpload, "failed to upload artifact").WithDetail(ref)
	}
	s.logger.Info("artifact uploaded", logging.String("ref", obj.String()), logging.Int64("size", up.Size))
	return up.ETag, nil
}

// List returns the artifacts under the prefix reference, sorted by key.
func (s *ArtifactStore) List(ctx context.Context, prefixRef string) ([]ArtifactInfo, error) {
	bucket, prefix := s.client.DefaultBucket(), ""
	if prefixRef != "" {
		rest := strings.TrimPrefix(prefixRef, Scheme)
		b, p, _ := strings.Cut(rest, "/")
		if b != "" {
			bucket = b
		}
		prefix = p
	}
	var out []ArtifactInfo
	for o := range s.client.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if o.Err != nil {
			return nil, errors.Wrap(o.Err, errors.ErrCodeArtifactFetch, "failed to list artifacts").WithDetail(bucket)
		}
		out = append(out, ArtifactInfo{
			Ref:          ObjectRef{Bucket: bucket, Key: o.Key}.String(),
			Size:         o.Size,
			ETag:         o.ETag,
			LastModified: o.LastModified,
		})
	}
	return out, nil
}

func objectErr(err error, code errors.ErrorCode, msg, ref string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrObjectNotFound.WithCause(err).WithDetail(ref)
	}
	return errors.Wrap(err, code, msg).WithDetail(ref)
}

func cachedETag(local string) string {
	b, err := os.ReadFile(local + etagSuffix)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func fileSize(p string) int64 {
	fi, err := os.Stat(p)
	if err != nil {
		return -1
	}
	return fi.Size()
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

//Personal.AI order the ending
