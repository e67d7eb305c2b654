package annotation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
	"github.com/turtacn/ClinLink/internal/intelligence/vocabulary"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// ArtifactResolver turns a remote artifact reference into a local file path.
type ArtifactResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// IsRemote reports whether ref must go through an ArtifactResolver.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://")
}

type loadOptions struct {
	resolver ArtifactResolver
	engine   []EngineOption
	logger   logging.Logger
}

// LoadOption configures LoadEngine.
type LoadOption func(*loadOptions)

// WithResolver sets the resolver used for s3:// artifact paths.
func WithResolver(r ArtifactResolver) LoadOption {
	return func(o *loadOptions) { o.resolver = r }
}

// WithEngineOptions forwards opts to NewEngine.
func WithEngineOptions(opts ...EngineOption) LoadOption {
	return func(o *loadOptions) { o.engine = append(o.engine, opts...) }
}

func WithLoadLogger(l logging.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// LoadEngine reads the artifacts named in cfg.Artifacts and builds an Engine.
func LoadEngine(ctx context.Context, cfg *config.Config, opts ...LoadOption) (*Engine, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}
	logger := logging.OrNop(o.logger)

	if cfg.Artifacts.ConceptStorePath == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "artifacts.concept_store_path is required")
	}

	start := time.Now()
	cdbPath, err := resolve(ctx, o.resolver, cfg.Artifacts.ConceptStorePath)
	if err != nil {
		return nil, err
	}
	store, err := concept_store.LoadFile(cdbPath, cfg.General.Separator)
	if err != nil {
		return nil, err
	}

	vocabPath, err := resolve(ctx, o.resolver, cfg.Artifacts.VocabularyPath)
	if err != nil {
		return nil, err
	}
	var blockPath string
	if cfg.Artifacts.UseVectorBlock {
		if blockPath, err = resolve(ctx, o.resolver, cfg.Artifacts.VectorBlockPath); err != nil {
			return nil, err
		}
	}
	vocab, err := vocabulary.Open(vocabulary.Options{
		Path:           vocabPath,
		BlockPath:      blockPath,
		UseVectorBlock: cfg.Artifacts.UseVectorBlock,
		UseMmap:        cfg.Artifacts.UseMmap,
	})
	if err != nil {
		return nil, err
	}
	artifactID, err := digestFiles(cdbPath, vocabPath, blockPath)
	if err != nil {
		_ = vocab.Close()
		return nil, err
	}
	logger.Info("artifacts loaded",
		logging.String("concept_store", cfg.Artifacts.ConceptStorePath),
		logging.String("vocabulary", cfg.Artifacts.VocabularyPath),
		logging.String("artifact_id", artifactID),
		logging.Duration("duration", time.Since(start)))

	engineOpts := append([]EngineOption{WithLogger(logger), WithArtifactID(artifactID)}, o.engine...)
	engine, err := NewEngine(cfg, store, vocab, engineOpts...)
	if err != nil {
		_ = vocab.Close()
		return nil, err
	}
	return engine, nil
}

// digestFiles hashes the content of the named files in order.  Empty paths
// are skipped.
func digestFiles(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeArtifactFetch, "open artifact "+p)
		}
		_, err = io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeArtifactFetch, "read artifact "+p)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8]), nil
}

func resolve(ctx context.Context, r ArtifactResolver, ref string) (string, error) {
	if !IsRemote(ref) {
		return ref, nil
	}
	if r == nil {
		return "", errors.Newf(errors.ErrCodeArtifactFetch, "no object store configured for %s", ref)
	}
	return r.Resolve(ctx, ref)
}
