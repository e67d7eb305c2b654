// Package config defines the configuration structures for ClinLink.  No I/O
// lives here, only plain data types, validation and the engine fingerprint.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Engine sections
// ─────────────────────────────────────────────────────────────────────────────

// GeneralConfig holds settings shared by every stage of the pipeline.
type GeneralConfig struct {
	// Separator joins name tokens in the concept store ("chest~pain").
	Separator          string `mapstructure:"separator" json:"separator"`
	SpellCheck         bool   `mapstructure:"spell_check" json:"spell_check"`
	SpellCheckDeep     bool   `mapstructure:"spell_check_deep" json:"spell_check_deep"`
	Diacritics         bool   `mapstructure:"diacritics" json:"diacritics"`
	SpellCheckLenLimit int    `mapstructure:"spell_check_len_limit" json:"spell_check_len_limit"`
	MinLenNormalize    int    `mapstructure:"min_len_normalize" json:"min_len_normalize"`
}

// PreprocessingConfig controls token tagging.
type PreprocessingConfig struct {
	WordsToSkip    []string `mapstructure:"words_to_skip" json:"words_to_skip"`
	KeepPunct      []string `mapstructure:"keep_punct" json:"keep_punct"`
	DoNotNormalize []string `mapstructure:"do_not_normalize" json:"do_not_normalize"`
	SkipStopwords  bool     `mapstructure:"skip_stopwords" json:"skip_stopwords"`
}

// NERConfig controls span detection.
type NERConfig struct {
	MinNameLen          int  `mapstructure:"min_name_len" json:"min_name_len"`
	MaxSkipTokens       int  `mapstructure:"max_skip_tokens" json:"max_skip_tokens"`
	TryReverseWordOrder bool `mapstructure:"try_reverse_word_order" json:"try_reverse_word_order"`
	CheckUpperCaseNames bool `mapstructure:"check_upper_case_names" json:"check_upper_case_names"`
	UpperCaseLimitLen   int  `mapstructure:"upper_case_limit_len" json:"upper_case_limit_len"`
}

// FilterConfig restricts the concepts a span may link to.  An empty Include
// list admits every concept.
type FilterConfig struct {
	Include []string `mapstructure:"include" json:"include"`
	Exclude []string `mapstructure:"exclude" json:"exclude"`
}

// Threshold policy names.
const (
	ThresholdStatic  = "static"
	ThresholdDynamic = "dynamic"
)

// LinkingConfig controls context scoring and disambiguation.
type LinkingConfig struct {
	// ContextVectorSizes maps a window kind to its token count.  A size of
	// zero disables the kind.
	ContextVectorSizes map[string]int `mapstructure:"context_vector_sizes" json:"context_vector_sizes"`

	// ContextVectorWeights maps a window kind to its similarity weight.
	ContextVectorWeights map[string]float64 `mapstructure:"context_vector_weights" json:"context_vector_weights"`

	TrainCountThreshold     int     `mapstructure:"train_count_threshold" json:"train_count_threshold"`
	SimilarityThreshold     float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	SimilarityThresholdType string  `mapstructure:"similarity_threshold_type" json:"similarity_threshold_type"`

	PreferPrimaryName      float64 `mapstructure:"prefer_primary_name" json:"prefer_primary_name"`
	PreferFrequentConcepts float64 `mapstructure:"prefer_frequent_concepts" json:"prefer_frequent_concepts"`

	ContextIgnoreCenterTokens     bool    `mapstructure:"context_ignore_center_tokens" json:"context_ignore_center_tokens"`
	RandomReplacementUnsupervised float64 `mapstructure:"random_replacement_unsupervised" json:"random_replacement_unsupervised"`

	DisambLengthLimit         int  `mapstructure:"disamb_length_limit" json:"disamb_length_limit"`
	AlwaysCalculateSimilarity bool `mapstructure:"always_calculate_similarity" json:"always_calculate_similarity"`

	Filters FilterConfig `mapstructure:"filters" json:"filters"`
}

// ArtifactsConfig locates the concept store and vocabulary.  Paths may be
// local files or s3://bucket/key references resolved through MinIO.
type ArtifactsConfig struct {
	ConceptStorePath string `mapstructure:"concept_store_path" json:"concept_store_path"`
	VocabularyPath   string `mapstructure:"vocabulary_path" json:"vocabulary_path"`
	VectorBlockPath  string `mapstructure:"vector_block_path" json:"vector_block_path"`
	UseVectorBlock   bool   `mapstructure:"use_vector_block" json:"use_vector_block"`
	UseMmap          bool   `mapstructure:"use_mmap" json:"use_mmap"`
	CacheDir         string `mapstructure:"cache_dir" json:"-"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure sections
// ─────────────────────────────────────────────────────────────────────────────

// RedisConfig holds Redis connection parameters for the annotation cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Mode         string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr         string        `mapstructure:"addr"`
	Addrs        []string      `mapstructure:"addrs"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// MinIOConfig holds S3-compatible object storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// KafkaConfig holds the worker's consumer and producer parameters.
type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	InputTopic        string        `mapstructure:"input_topic"`
	OutputTopic       string        `mapstructure:"output_topic"`
	DLQTopic          string        `mapstructure:"dlq_topic"`
	StartOffset       string        `mapstructure:"start_offset"` // "earliest" | "latest"
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	AutoCreateTopics  bool          `mapstructure:"auto_create_topics"`
	NumPartitions     int           `mapstructure:"num_partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
}

// WorkerConfig holds document-processing parameters.
type WorkerConfig struct {
	Concurrency        int           `mapstructure:"concurrency"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthAddr         string        `mapstructure:"health_addr"`
	SlowStageThreshold time.Duration `mapstructure:"slow_stage_threshold"`
	DocumentTimeout    time.Duration `mapstructure:"document_timeout"`
}

// MetricsConfig holds Prometheus collector parameters.
type MetricsConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	Namespace            string `mapstructure:"namespace"`
	Subsystem            string `mapstructure:"subsystem"`
	EnableGoMetrics      bool   `mapstructure:"enable_go_metrics"`
	EnableProcessMetrics bool   `mapstructure:"enable_process_metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration.  It is treated as immutable once loaded;
// a reload produces a new Config.
type Config struct {
	General       GeneralConfig       `mapstructure:"general"`
	Preprocessing PreprocessingConfig `mapstructure:"preprocessing"`
	NER           NERConfig           `mapstructure:"ner"`
	Linking       LinkingConfig       `mapstructure:"linking"`
	Artifacts     ArtifactsConfig     `mapstructure:"artifacts"`

	Log     logging.LogConfig `mapstructure:"log"`
	Redis   RedisConfig       `mapstructure:"redis"`
	MinIO   MinIOConfig       `mapstructure:"minio"`
	Kafka   KafkaConfig       `mapstructure:"kafka"`
	Worker  WorkerConfig      `mapstructure:"worker"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
}

// Fingerprint returns a short stable digest of every setting that can change
// annotation output.  Cached results are keyed by it.
func (c *Config) Fingerprint() string {
	payload, _ := json.Marshal(struct {
		General       GeneralConfig
		Preprocessing PreprocessingConfig
		NER           NERConfig
		Linking       LinkingConfig
		Artifacts     ArtifactsConfig
	}{c.General, c.Preprocessing, c.NER, c.Linking, c.Artifacts})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a fully populated Config and
// returns the first problem found.  An unknown similarity_threshold_type is
// accepted here; the linker warns and rejects at link time.
func (c *Config) Validate() error {
	// General
	if c.General.Separator == "" {
		return fmt.Errorf("config: general.separator is required")
	}
	if c.General.SpellCheckLenLimit < 1 {
		return fmt.Errorf("config: general.spell_check_len_limit must be ≥ 1, got %d", c.General.SpellCheckLenLimit)
	}
	if c.General.MinLenNormalize < 0 {
		return fmt.Errorf("config: general.min_len_normalize must be ≥ 0, got %d", c.General.MinLenNormalize)
	}

	// NER
	if c.NER.MinNameLen < 1 {
		return fmt.Errorf("config: ner.min_name_len must be ≥ 1, got %d", c.NER.MinNameLen)
	}
	if c.NER.MaxSkipTokens < 0 {
		return fmt.Errorf("config: ner.max_skip_tokens must be ≥ 0, got %d", c.NER.MaxSkipTokens)
	}

	// Linking
	if len(c.Linking.ContextVectorSizes) == 0 {
		return fmt.Errorf("config: linking.context_vector_sizes must define at least one window kind")
	}
	for kind, size := range c.Linking.ContextVectorSizes {
		if size < 0 {
			return fmt.Errorf("config: linking.context_vector_sizes.%s must be ≥ 0, got %d", kind, size)
		}
		if _, ok := c.Linking.ContextVectorWeights[kind]; !ok {
			return fmt.Errorf("config: linking.context_vector_weights.%s is missing", kind)
		}
	}
	if c.Linking.TrainCountThreshold < 0 {
		return fmt.Errorf("config: linking.train_count_threshold must be ≥ 0, got %d", c.Linking.TrainCountThreshold)
	}
	if p := c.Linking.RandomReplacementUnsupervised; p < 0 || p > 1 {
		return fmt.Errorf("config: linking.random_replacement_unsupervised must be in [0, 1], got %v", p)
	}
	if c.Linking.PreferPrimaryName < 0 || c.Linking.PreferFrequentConcepts < 0 {
		return fmt.Errorf("config: linking preference coefficients must be ≥ 0")
	}

	// Artifacts
	if c.Artifacts.UseVectorBlock && c.Artifacts.VocabularyPath != "" && c.Artifacts.VectorBlockPath == "" {
		return fmt.Errorf("config: artifacts.vector_block_path is required when use_vector_block is set")
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}

	// Log
	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// ValidateWorker adds the checks only the Kafka worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}
	if c.Artifacts.ConceptStorePath == "" {
		return fmt.Errorf("config: artifacts.concept_store_path is required")
	}
	return nil
}

//Personal.AI order the ending
