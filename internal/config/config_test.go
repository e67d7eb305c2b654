package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/config"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.General.SpellCheck)
	assert.Equal(t, "~", cfg.General.Separator)
	assert.Equal(t, config.ThresholdStatic, cfg.Linking.SimilarityThresholdType)
	assert.Equal(t, 27, cfg.Linking.ContextVectorSizes["xlong"])
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty separator", func(c *config.Config) { c.General.Separator = "" }, "general.separator"},
		{"spell limit", func(c *config.Config) { c.General.SpellCheckLenLimit = 0 }, "spell_check_len_limit"},
		{"min name len", func(c *config.Config) { c.NER.MinNameLen = 0 }, "ner.min_name_len"},
		{"negative skip", func(c *config.Config) { c.NER.MaxSkipTokens = -1 }, "ner.max_skip_tokens"},
		{"no windows", func(c *config.Config) { c.Linking.ContextVectorSizes = nil }, "context_vector_sizes"},
		{"negative window", func(c *config.Config) { c.Linking.ContextVectorSizes["short"] = -3 }, "context_vector_sizes.short"},
		{"weight missing", func(c *config.Config) { delete(c.Linking.ContextVectorWeights, "long") }, "context_vector_weights.long"},
		{"replacement range", func(c *config.Config) { c.Linking.RandomReplacementUnsupervised = 1.5 }, "random_replacement_unsupervised"},
		{"negative coef", func(c *config.Config) { c.Linking.PreferPrimaryName = -0.1 }, "preference"},
		{"block path", func(c *config.Config) {
			c.Artifacts.VocabularyPath = "vocab.json"
			c.Artifacts.UseVectorBlock = true
		}, "vector_block_path"},
		{"concurrency", func(c *config.Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"redis addr", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Validate_UnknownThresholdTypeAccepted(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Linking.SimilarityThresholdType = "adaptive"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ValidateWorker(t *testing.T) {
	cfg := config.DefaultConfig()
	err := cfg.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concept_store_path")

	cfg.Artifacts.ConceptStorePath = "cdb.json"
	assert.NoError(t, cfg.ValidateWorker())

	cfg.Kafka.Brokers = nil
	assert.Error(t, cfg.ValidateWorker())
}

func TestConfig_Fingerprint(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	b.Redis.Addr = "elsewhere:6379"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "infrastructure settings do not affect output")

	b.Linking.SimilarityThreshold = 0.5
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

//Personal.AI order the ending
