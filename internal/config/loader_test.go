package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
general:
  separator: "~"
  spell_check: false
  spell_check_len_limit: 6
preprocessing:
  words_to_skip: ["nos", "unspecified"]
ner:
  max_skip_tokens: 1
  try_reverse_word_order: true
linking:
  similarity_threshold: 0.3
  similarity_threshold_type: dynamic
  filters:
    exclude: ["C0000001"]
artifacts:
  concept_store_path: "s3://models/cdb.json"
  vocabulary_path: "/data/vocab.json"
log:
  level: debug
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.False(t, cfg.General.SpellCheck)
	assert.Equal(t, 6, cfg.General.SpellCheckLenLimit)
	assert.Equal(t, []string{"nos", "unspecified"}, cfg.Preprocessing.WordsToSkip)
	assert.Equal(t, 1, cfg.NER.MaxSkipTokens)
	assert.True(t, cfg.NER.TryReverseWordOrder)
	assert.Equal(t, 0.3, cfg.Linking.SimilarityThreshold)
	assert.Equal(t, ThresholdDynamic, cfg.Linking.SimilarityThresholdType)
	assert.Equal(t, []string{"C0000001"}, cfg.Linking.Filters.Exclude)
	assert.Equal(t, "s3://models/cdb.json", cfg.Artifacts.ConceptStorePath)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DefaultsForUnsetKeys(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultMinNameLen, cfg.NER.MinNameLen)
	assert.Equal(t, DefaultPreferPrimaryName, cfg.Linking.PreferPrimaryName)
	assert.Equal(t, 18, cfg.Linking.ContextVectorSizes["long"])
	assert.Equal(t, []string{".", ":"}, cfg.Preprocessing.KeepPunct)
	assert.Equal(t, DefaultKafkaBackoff, cfg.Kafka.RetryBackoff)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_ExplicitZeroSurvives(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, `
general:
  min_len_normalize: 0
worker:
  document_timeout: 0s
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.General.MinLenNormalize)
	assert.Zero(t, cfg.Worker.DocumentTimeout)

	cfg, err = Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, DefaultMinLenNormalize, cfg.General.MinLenNormalize)
	assert.Equal(t, DefaultDocumentTimeout, cfg.Worker.DocumentTimeout)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "general: ["))
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "ner:\n  min_name_len: -2\n"))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CLINLINK_LINKING_SIMILARITY_THRESHOLD", "0.6")
	t.Setenv("CLINLINK_GENERAL_SPELL_CHECK_DEEP", "true")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Linking.SimilarityThreshold)
	assert.True(t, cfg.General.SpellCheckDeep)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("CLINLINK_WORKER_CONCURRENCY", "12")
	t.Setenv("CLINLINK_WORKER_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Worker.ShutdownTimeout)
	assert.True(t, cfg.General.SpellCheck)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSeparator, cfg.General.Separator)

	cfg, err = LoadOrDefault(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMustLoad(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	assert.NotPanics(t, func() { MustLoad(path) })
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestWatch_InvokesOnChange(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	changed := make(chan *Config, 4)
	Watch(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, nil)

	// Give fsnotify a moment to register the watch before writing.
	time.Sleep(100 * time.Millisecond)
	updated := validConfigYAML + "\nworker:\n  concurrency: 9\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Worker.Concurrency == 9 {
				return
			}
		case <-deadline:
			t.Skip("no fsnotify event observed on this filesystem")
		}
	}
}

//Personal.AI order the ending
