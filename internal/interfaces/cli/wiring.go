package cli

import (
	"context"

	"github.com/turtacn/ClinLink/internal/application/annotation"
	"github.com/turtacn/ClinLink/internal/config"
	redisinfra "github.com/turtacn/ClinLink/internal/infrastructure/database/redis"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	minioinfra "github.com/turtacn/ClinLink/internal/infrastructure/storage/minio"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// hasRemoteArtifacts reports whether any configured artifact lives in
// object storage.
func hasRemoteArtifacts(a config.ArtifactsConfig) bool {
	return annotation.IsRemote(a.ConceptStorePath) ||
		annotation.IsRemote(a.VocabularyPath) ||
		annotation.IsRemote(a.VectorBlockPath)
}

// openArtifactStore connects to MinIO using the minio section.
func openArtifactStore(cliCtx *CLIContext) (*minioinfra.ArtifactStore, error) {
	client, err := minioinfra.NewMinIOClient(cliCtx.Config.MinIO, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	return minioinfra.NewArtifactStore(client, cliCtx.Config.Artifacts.CacheDir,
		minioinfra.WithArtifactLogger(cliCtx.Logger)), nil
}

// loadEngine builds an engine from the configured artifacts, fetching
// s3:// references through MinIO first.
func loadEngine(ctx context.Context, cliCtx *CLIContext) (*annotation.Engine, error) {
	opts := []annotation.LoadOption{
		annotation.WithLoadLogger(cliCtx.Logger),
		annotation.WithEngineOptions(annotation.WithLogger(cliCtx.Logger)),
	}
	if hasRemoteArtifacts(cliCtx.Config.Artifacts) {
		store, err := openArtifactStore(cliCtx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, annotation.WithResolver(store))
	}
	return annotation.LoadEngine(ctx, cliCtx.Config, opts...)
}

// openCache connects the redis result cache.  It returns nil, nil when the
// cache is disabled.
func openCache(cliCtx *CLIContext) (redisinfra.Cache, func(), error) {
	cfg := cliCtx.Config.Redis
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	client, err := redisinfra.NewClient(cfg, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cacheOpts := []redisinfra.CacheOption{}
	if cfg.KeyPrefix != "" {
		cacheOpts = append(cacheOpts, redisinfra.WithPrefix(cfg.KeyPrefix))
	}
	if cfg.TTL > 0 {
		cacheOpts = append(cacheOpts, redisinfra.WithDefaultTTL(cfg.TTL))
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			cliCtx.Logger.Warn("redis close failed", logging.Err(err))
		}
	}
	return redisinfra.NewRedisCache(client, cliCtx.Logger, cacheOpts...), closeFn, nil
}

func requireCache(cliCtx *CLIContext) (redisinfra.Cache, func(), error) {
	c, closeFn, err := openCache(cliCtx)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, errors.New(errors.ErrCodeConfigInvalid, "redis is not enabled (redis.enabled=false)")
	}
	return c, closeFn, nil
}

//Personal.AI order the ending
