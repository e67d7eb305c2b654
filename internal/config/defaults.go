package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultSeparator          = "~"
	DefaultSpellCheckLenLimit = 7
	DefaultMinLenNormalize    = 5

	DefaultMinNameLen        = 3
	DefaultMaxSkipTokens     = 2
	DefaultUpperCaseLimitLen = 4

	DefaultTrainCountThreshold    = 1
	DefaultSimilarityThreshold    = 0.25
	DefaultSimilarityType         = ThresholdStatic
	DefaultPreferPrimaryName      = 0.35
	DefaultPreferFrequentConcepts = 0.35
	DefaultRandomReplacement      = 0.80
	DefaultDisambLengthLimit      = 3

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisMode      = "standalone"
	DefaultRedisKeyPrefix = "clinlink:"
	DefaultRedisTTL       = 24 * time.Hour

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "clinlink-worker"
	DefaultKafkaMaxRetries  = 3
	DefaultKafkaBackoff     = 500 * time.Millisecond
	DefaultKafkaStartOffset = "earliest"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "clinlink-artifacts"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency  = 4
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultHealthAddr         = ":8081"
	DefaultSlowStageThreshold = 500 * time.Millisecond
	DefaultDocumentTimeout    = 30 * time.Second

	DefaultMetricsNamespace = "clinlink"
)

// Topic names consumed and produced by the worker.
const (
	DefaultInputTopic  = "clinical.document.submitted"
	DefaultOutputTopic = "clinical.document.annotated"
	DefaultDLQTopic    = "clinical.document.submitted.dlq"
)

// DefaultContextVectorSizes returns a fresh copy of the default window sizes.
func DefaultContextVectorSizes() map[string]int {
	return map[string]int{"xlong": 27, "long": 18, "medium": 9, "short": 3}
}

// DefaultContextVectorWeights returns a fresh copy of the default weights.
func DefaultContextVectorWeights() map[string]float64 {
	return map[string]float64{"xlong": 0.1, "long": 0.4, "medium": 0.4, "short": 0.1}
}

// DefaultConfig returns a fully populated Config that passes Validate.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.General.SpellCheck = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableGoMetrics = true
	cfg.Metrics.EnableProcessMetrics = true
	cfg.Kafka.AutoCreateTopics = true
	// Values for which zero is a meaningful setting.
	cfg.NER.MaxSkipTokens = DefaultMaxSkipTokens
	cfg.Linking.TrainCountThreshold = DefaultTrainCountThreshold
	cfg.Linking.SimilarityThreshold = DefaultSimilarityThreshold
	cfg.Linking.PreferPrimaryName = DefaultPreferPrimaryName
	cfg.Linking.PreferFrequentConcepts = DefaultPreferFrequentConcepts
	cfg.Linking.RandomReplacementUnsupervised = DefaultRandomReplacement
	cfg.Linking.DisambLengthLimit = DefaultDisambLengthLimit
	cfg.General.MinLenNormalize = DefaultMinLenNormalize
	cfg.NER.UpperCaseLimitLen = DefaultUpperCaseLimitLen
	cfg.Redis.TTL = DefaultRedisTTL
	cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	cfg.Worker.SlowStageThreshold = DefaultSlowStageThreshold
	cfg.Worker.DocumentTimeout = DefaultDocumentTimeout
	ApplyDefaults(cfg)
	return cfg
}

// registerDefaults installs every default on v so that unset keys, including
// booleans whose default is true, resolve correctly and so that environment
// overrides are visible to Unmarshal.
func registerDefaults(v *viper.Viper) {
	// ── General ──────────────────────────────────────────────────────────────
	v.SetDefault("general.separator", DefaultSeparator)
	v.SetDefault("general.spell_check", true)
	v.SetDefault("general.spell_check_deep", false)
	v.SetDefault("general.diacritics", false)
	v.SetDefault("general.spell_check_len_limit", DefaultSpellCheckLenLimit)
	v.SetDefault("general.min_len_normalize", DefaultMinLenNormalize)

	// ── Preprocessing ────────────────────────────────────────────────────────
	v.SetDefault("preprocessing.words_to_skip", defaultWordsToSkip())
	v.SetDefault("preprocessing.keep_punct", defaultKeepPunct())
	v.SetDefault("preprocessing.do_not_normalize", defaultDoNotNormalize())
	v.SetDefault("preprocessing.skip_stopwords", false)

	// ── NER ──────────────────────────────────────────────────────────────────
	v.SetDefault("ner.min_name_len", DefaultMinNameLen)
	v.SetDefault("ner.max_skip_tokens", DefaultMaxSkipTokens)
	v.SetDefault("ner.try_reverse_word_order", false)
	v.SetDefault("ner.check_upper_case_names", false)
	v.SetDefault("ner.upper_case_limit_len", DefaultUpperCaseLimitLen)

	// ── Linking ──────────────────────────────────────────────────────────────
	for kind, size := range DefaultContextVectorSizes() {
		v.SetDefault("linking.context_vector_sizes."+kind, size)
	}
	for kind, w := range DefaultContextVectorWeights() {
		v.SetDefault("linking.context_vector_weights."+kind, w)
	}
	v.SetDefault("linking.train_count_threshold", DefaultTrainCountThreshold)
	v.SetDefault("linking.similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("linking.similarity_threshold_type", DefaultSimilarityType)
	v.SetDefault("linking.prefer_primary_name", DefaultPreferPrimaryName)
	v.SetDefault("linking.prefer_frequent_concepts", DefaultPreferFrequentConcepts)
	v.SetDefault("linking.context_ignore_center_tokens", false)
	v.SetDefault("linking.random_replacement_unsupervised", DefaultRandomReplacement)
	v.SetDefault("linking.disamb_length_limit", DefaultDisambLengthLimit)
	v.SetDefault("linking.always_calculate_similarity", false)
	v.SetDefault("linking.filters.include", []string{})
	v.SetDefault("linking.filters.exclude", []string{})

	// ── Artifacts ────────────────────────────────────────────────────────────
	v.SetDefault("artifacts.concept_store_path", "")
	v.SetDefault("artifacts.vocabulary_path", "")
	v.SetDefault("artifacts.vector_block_path", "")
	v.SetDefault("artifacts.use_vector_block", false)
	v.SetDefault("artifacts.use_mmap", false)
	v.SetDefault("artifacts.cache_dir", "")

	// ── Infrastructure ───────────────────────────────────────────────────────
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.mode", DefaultRedisMode)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)
	v.SetDefault("redis.ttl", DefaultRedisTTL)
	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", DefaultMinIOBucket)
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.input_topic", DefaultInputTopic)
	v.SetDefault("kafka.output_topic", DefaultOutputTopic)
	v.SetDefault("kafka.dlq_topic", DefaultDLQTopic)
	v.SetDefault("kafka.start_offset", DefaultKafkaStartOffset)
	v.SetDefault("kafka.max_retries", DefaultKafkaMaxRetries)
	v.SetDefault("kafka.retry_backoff", DefaultKafkaBackoff)
	v.SetDefault("kafka.auto_create_topics", true)
	v.SetDefault("kafka.num_partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("worker.concurrency", DefaultWorkerConcurrency)
	v.SetDefault("worker.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("worker.health_addr", DefaultHealthAddr)
	v.SetDefault("worker.slow_stage_threshold", DefaultSlowStageThreshold)
	v.SetDefault("worker.document_timeout", DefaultDocumentTimeout)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.enable_go_metrics", true)
	v.SetDefault("metrics.enable_process_metrics", true)
}

func defaultWordsToSkip() []string    { return []string{"nos"} }
func defaultKeepPunct() []string      { return []string{".", ":"} }
func defaultDoNotNormalize() []string { return []string{"VBD", "VBG", "VBN", "VBP", "JJS", "JJR"} }

// ApplyDefaults fills zero-value fields in cfg.  Fields already set are left
// unchanged.  Booleans and numbers for which zero is a valid setting cannot
// be told apart from an explicit zero here; their defaults come from
// registerDefaults or DefaultConfig.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── General ───────────────────────────────────────────────────────────────
	if cfg.General.Separator == "" {
		cfg.General.Separator = DefaultSeparator
	}
	if cfg.General.SpellCheckLenLimit == 0 {
		cfg.General.SpellCheckLenLimit = DefaultSpellCheckLenLimit
	}

	// ── Preprocessing ─────────────────────────────────────────────────────────
	if cfg.Preprocessing.WordsToSkip == nil {
		cfg.Preprocessing.WordsToSkip = defaultWordsToSkip()
	}
	if cfg.Preprocessing.KeepPunct == nil {
		cfg.Preprocessing.KeepPunct = defaultKeepPunct()
	}
	if cfg.Preprocessing.DoNotNormalize == nil {
		cfg.Preprocessing.DoNotNormalize = defaultDoNotNormalize()
	}

	// ── NER ───────────────────────────────────────────────────────────────────
	if cfg.NER.MinNameLen == 0 {
		cfg.NER.MinNameLen = DefaultMinNameLen
	}

	// ── Linking ───────────────────────────────────────────────────────────────
	if len(cfg.Linking.ContextVectorSizes) == 0 {
		cfg.Linking.ContextVectorSizes = DefaultContextVectorSizes()
	}
	if len(cfg.Linking.ContextVectorWeights) == 0 {
		cfg.Linking.ContextVectorWeights = DefaultContextVectorWeights()
	}
	if cfg.Linking.SimilarityThresholdType == "" {
		cfg.Linking.SimilarityThresholdType = DefaultSimilarityType
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.InputTopic == "" {
		cfg.Kafka.InputTopic = DefaultInputTopic
	}
	if cfg.Kafka.OutputTopic == "" {
		cfg.Kafka.OutputTopic = DefaultOutputTopic
	}
	if cfg.Kafka.DLQTopic == "" {
		cfg.Kafka.DLQTopic = DefaultDLQTopic
	}
	if cfg.Kafka.StartOffset == "" {
		cfg.Kafka.StartOffset = DefaultKafkaStartOffset
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaBackoff
	}
	if cfg.Kafka.NumPartitions == 0 {
		cfg.Kafka.NumPartitions = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.ShutdownTimeout == 0 {
		cfg.Worker.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Worker.HealthAddr == "" {
		cfg.Worker.HealthAddr = DefaultHealthAddr
	}

	// ── Log / Metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

//Personal.AI order the ending
