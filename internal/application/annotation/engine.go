// Package annotation wires the intelligence packages into the document
// pipeline (tokenise, detect, link) and exposes it to the CLI and the worker
// through a hot-swappable Service.
package annotation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinLink/internal/intelligence/clinical_ner"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_linker"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
	"github.com/turtacn/ClinLink/internal/intelligence/spell_checker"
	"github.com/turtacn/ClinLink/internal/intelligence/vocabulary"
	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

// Pipeline stage names used in logs and metrics.
const (
	StageTokenize = "tokenize"
	StageDetect   = "detect"
	StageLink     = "link"
)

// Annotation is the full output of one engine run.  Offsets refer to Text,
// the NFC-normalised input.
type Annotation struct {
	Text        string
	Tokens      []clinical_ner.Token
	Spans       []clinical_ner.Span
	Entities    []concept_linker.LinkedEntity
	Corrections int
}

// Engine is an immutable annotation pipeline over one concept store and
// vocabulary.  Documents may be annotated concurrently.
type Engine struct {
	cfg         *config.Config
	store       *concept_store.Store
	vocab       *vocabulary.Vocabulary
	corrector   *spell_checker.Corrector
	processor   *clinical_ner.Processor
	detector    *clinical_ner.Detector
	linker      *concept_linker.Linker
	fingerprint string
	configFP    string

	metrics *prom.AnnotationMetrics
	logger  logging.Logger
}

type engineOptions struct {
	frontEnd clinical_ner.FrontEnd
	metrics  *prom.AnnotationMetrics
	logger   logging.Logger
	random   func() float64
	artifact string
}

// EngineOption configures NewEngine.
type EngineOption func(*engineOptions)

func WithFrontEnd(fe clinical_ner.FrontEnd) EngineOption {
	return func(o *engineOptions) { o.frontEnd = fe }
}

func WithMetrics(m *prom.AnnotationMetrics) EngineOption {
	return func(o *engineOptions) { o.metrics = m }
}

func WithLogger(l logging.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

// WithRandom fixes the context model's random source.
func WithRandom(fn func() float64) EngineOption {
	return func(o *engineOptions) { o.random = fn }
}

// WithArtifactID names the content of the artifacts the engine was built
// from.  Engines without one get a fingerprint unique to the instance.
func WithArtifactID(id string) EngineOption {
	return func(o *engineOptions) { o.artifact = id }
}

// NewEngine assembles an Engine from loaded artifacts.  The engine takes
// ownership of vocab and closes it in Close.
func NewEngine(cfg *config.Config, store *concept_store.Store, vocab *vocabulary.Vocabulary, opts ...EngineOption) (*Engine, error) {
	if cfg == nil || store == nil {
		return nil, errors.InvalidParam("engine requires a configuration and a concept store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid engine configuration")
	}
	if vocab == nil {
		vocab = vocabulary.Empty()
	}
	if dim := store.VectorDim(); dim > 0 && vocab.Dim() > 0 && dim != vocab.Dim() {
		return nil, errors.Newf(errors.ErrCodeDimensionMismatch,
			"concept store vectors have dimension %d, vocabulary has %d", dim, vocab.Dim())
	}

	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	logger := logging.OrNop(o.logger).Named("engine")
	metrics := o.metrics
	if metrics == nil {
		metrics = prom.NewNopMetrics()
	}

	corrector := spell_checker.NewCorrector(knownWords(vocab, store), spell_checker.Options{
		Deep:       cfg.General.SpellCheckDeep,
		Diacritics: cfg.General.Diacritics,
	})

	var modelOpts []concept_linker.ModelOption
	if o.random != nil {
		modelOpts = append(modelOpts, concept_linker.WithRandom(o.random))
	}
	model := concept_linker.NewContextModel(store, vocab, cfg.Linking, modelOpts...)

	artifact := o.artifact
	if artifact == "" {
		artifact = uuid.NewString()
	}
	configFP := cfg.Fingerprint()

	e := &Engine{
		cfg:         cfg,
		store:       store,
		vocab:       vocab,
		corrector:   corrector,
		processor:   clinical_ner.NewProcessor(cfg, o.frontEnd, corrector, logger.Named("processor")),
		detector:    clinical_ner.NewDetector(store, cfg.NER),
		linker:      concept_linker.NewLinker(store, model, cfg.Linking, logger.Named("linker")),
		fingerprint: engineFingerprint(configFP, artifact),
		configFP:    configFP,
		metrics:     metrics,
		logger:      logger,
	}

	st := store.Stats()
	logger.Info("engine ready",
		logging.String("fingerprint", e.fingerprint),
		logging.Int("names", st.Names),
		logging.Int("concepts", st.Concepts),
		logging.Int("trained_concepts", st.TrainedConcepts),
		logging.Int("vocabulary_words", vocab.Len()),
		logging.Int("vector_dim", vocab.Dim()))
	return e, nil
}

// knownWords merges the vocabulary frequencies with the concept store's name
// word counts.  Vocabulary counts win where both know a word.
func knownWords(vocab *vocabulary.Vocabulary, store *concept_store.Store) map[string]uint64 {
	known := vocab.Frequencies()
	for w, c := range store.NameWordCounts() {
		if _, ok := known[w]; !ok {
			known[w] = c
		}
	}
	return known
}

func engineFingerprint(configFP, artifact string) string {
	sum := sha256.Sum256([]byte(configFP + "\x00" + artifact))
	return hex.EncodeToString(sum[:8])
}

// Fingerprint identifies the configuration and artifact content the engine
// was built from.  Cached results are keyed by it.
func (e *Engine) Fingerprint() string { return e.fingerprint }

// ConfigFingerprint is the fingerprint of the engine's configuration alone.
func (e *Engine) ConfigFingerprint() string { return e.configFP }

func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) Store() *concept_store.Store { return e.store }

func (e *Engine) Vocabulary() *vocabulary.Vocabulary { return e.vocab }

// Corrector exposes the engine's spell corrector.
func (e *Engine) Corrector() *spell_checker.Corrector { return e.corrector }

// Close releases the vocabulary backing.
func (e *Engine) Close() error {
	return e.vocab.Close()
}

// Annotate runs the pipeline over text.  Context cancellation is honoured
// between stages.
func (e *Engine) Annotate(ctx context.Context, text string) (*Annotation, error) {
	slow := e.cfg.Worker.SlowStageThreshold
	a := &Annotation{}

	start := time.Now()
	a.Text = e.processor.Normalize(text)
	a.Tokens = e.processor.Process(a.Text)
	for _, t := range a.Tokens {
		if t.Corrected {
			a.Corrections++
		}
	}
	e.stageDone(StageTokenize, start, slow, logging.Int("tokens", len(a.Tokens)))
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	start = time.Now()
	a.Spans = e.detector.Detect(a.Tokens)
	e.stageDone(StageDetect, start, slow, logging.Int("spans", len(a.Spans)))
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	start = time.Now()
	a.Entities = make([]concept_linker.LinkedEntity, 0, len(a.Spans))
	for _, span := range a.Spans {
		ent := e.linker.Link(a.Tokens, span)
		e.metrics.LinkOutcomesTotal.WithLabelValues(ent.Outcome.String()).Inc()
		if !ent.Outcome.Accepted() {
			e.logger.Debug("span rejected",
				logging.String("name", span.Name),
				logging.String("outcome", ent.Outcome.String()),
				logging.Float64("similarity", ent.Similarity))
			continue
		}
		ent.Text = a.Text[ent.Start:ent.End]
		a.Entities = append(a.Entities, ent)
	}
	e.stageDone(StageLink, start, slow, logging.Int("entities", len(a.Entities)))

	e.metrics.SpansTotal.WithLabelValues().Add(float64(len(a.Spans)))
	e.metrics.SpellCorrectionsTotal.WithLabelValues().Add(float64(a.Corrections))
	return a, nil
}

func (e *Engine) stageDone(stage string, start time.Time, slow time.Duration, fields ...logging.Field) {
	prom.RecordStage(e.metrics, stage, time.Since(start))
	logging.LogStageDuration(e.logger, stage, start, slow, fields...)
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCanceled, "annotation canceled")
	}
	return nil
}

// Result converts a to the transport representation.  Preferred names and
// type IDs are taken from the concept store when present.
func (e *Engine) Result(id common.ID, a *Annotation) *common.AnnotationResult {
	res := &common.AnnotationResult{
		DocumentID:        id,
		Entities:          make([]common.Entity, 0, len(a.Entities)),
		TokenCount:        len(a.Tokens),
		SpanCount:         len(a.Spans),
		Corrections:       a.Corrections,
		EngineFingerprint: e.fingerprint,
		AnnotatedAt:       common.NewTimestamp(),
	}
	for _, le := range a.Entities {
		ent := common.Entity{
			CUI:        le.CUI,
			Name:       le.Span.Name,
			Text:       le.Text,
			Start:      le.Start,
			End:        le.End,
			TokenStart: le.Span.Start,
			TokenEnd:   le.Span.End,
			Similarity: le.Similarity,
			Outcome:    le.Outcome.String(),
		}
		if info, ok := e.store.Info(le.CUI); ok {
			ent.PreferredName = info.PreferredName
			ent.TypeIDs = info.TypeIDs
		}
		res.Entities = append(res.Entities, ent)
	}
	return res
}
