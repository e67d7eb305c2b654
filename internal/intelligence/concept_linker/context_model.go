// Package concept_linker scores detected spans against the learned context
// vectors of their candidate concepts and decides which concept, if any, a
// span links to.
package concept_linker

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/intelligence/clinical_ner"
	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
)

// NoSimilarity is returned for concepts without enough training to score.
const NoSimilarity = -1.0

// VectorLookup resolves word embeddings.  *vocabulary.Vocabulary satisfies
// it.
type VectorLookup interface {
	Vector(word string) (common.Vector, bool)
}

type window struct {
	kind   string
	size   int
	weight float64
}

// ContextModel builds multi-window context vectors around spans and scores
// them against concept vectors.  It holds no mutable state apart from the
// random source and is safe for concurrent use when that source is.
type ContextModel struct {
	store   *concept_store.Store
	vocab   VectorLookup
	windows []window

	trainCountThreshold uint64
	ignoreCenter        bool
	replacement         float64
	random              func() float64
}

// ModelOption configures a ContextModel.
type ModelOption func(*ContextModel)

// WithRandom replaces the uniform [0,1) source used for center-token
// replacement.
func WithRandom(fn func() float64) ModelOption {
	return func(m *ContextModel) {
		if fn != nil {
			m.random = fn
		}
	}
}

// NewContextModel returns a ContextModel for the linking section of a
// configuration.  Window kinds with a non-positive size are disabled.
func NewContextModel(store *concept_store.Store, vocab VectorLookup, cfg config.LinkingConfig, opts ...ModelOption) *ContextModel {
	m := &ContextModel{
		store:        store,
		vocab:        vocab,
		ignoreCenter: cfg.ContextIgnoreCenterTokens,
		replacement:  cfg.RandomReplacementUnsupervised,
		random:       rand.Float64,
	}
	if cfg.TrainCountThreshold > 0 {
		m.trainCountThreshold = uint64(cfg.TrainCountThreshold)
	}
	for kind, size := range cfg.ContextVectorSizes {
		if size <= 0 {
			continue
		}
		m.windows = append(m.windows, window{kind: kind, size: size, weight: cfg.ContextVectorWeights[kind]})
	}
	sort.Slice(m.windows, func(i, j int) bool { return m.windows[i].kind < m.windows[j].kind })
	for _, o := range opts {
		o(m)
	}
	return m
}

// Kinds returns the enabled window kinds in sorted order.
func (m *ContextModel) Kinds() []string {
	out := make([]string, len(m.windows))
	for i, w := range m.windows {
		out[i] = w.kind
	}
	return out
}

func qualifies(t clinical_ner.Token) bool {
	return !t.IsSkip && !t.IsPunct && !t.IsDigit && !t.IsStop
}

// ContextVectors returns one vector per window kind for span.  When target is
// non-empty the center tokens may be replaced by one of the target's names.
// Kinds for which no token has a vector are absent from the result.
func (m *ContextModel) ContextVectors(tokens []clinical_ner.Token, span clinical_ner.Span, target string) map[string]common.Vector {
	center := m.centerVector(tokens, span, target)

	out := make(map[string]common.Vector, len(m.windows))
	for _, w := range m.windows {
		left := m.sideVector(tokens, span.Start-1, -1, w.size)
		right := m.sideVector(tokens, span.End, 1, w.size)
		if v := common.Sum(left, center, right); v != nil {
			out[w.kind] = v
		}
	}
	return out
}

// sideVector averages up to size qualifying tokens walking from index from
// in direction dir, each weighted by the store's decay at its step.
func (m *ContextModel) sideVector(tokens []clinical_ner.Token, from, dir, size int) common.Vector {
	var acc common.Accumulator
	step := 0
	for i := from; i >= 0 && i < len(tokens) && step < size; i += dir {
		t := tokens[i]
		if !qualifies(t) {
			continue
		}
		if v, ok := m.vocab.Vector(t.Lower); ok {
			acc.Add(v, m.store.Decay(step))
		}
		step++
	}
	return acc.Mean()
}

func (m *ContextModel) centerVector(tokens []clinical_ner.Token, span clinical_ner.Span, target string) common.Vector {
	if m.ignoreCenter {
		return nil
	}
	var acc common.Accumulator
	if words, ok := m.replacementWords(target); ok {
		for _, w := range words {
			if v, found := m.vocab.Vector(w); found {
				acc.Add(v, 1)
			}
		}
		return acc.Mean()
	}
	for i := span.Start; i < span.End && i < len(tokens); i++ {
		t := tokens[i]
		if !qualifies(t) {
			continue
		}
		if v, ok := m.vocab.Vector(t.Lower); ok {
			acc.Add(v, 1)
		}
	}
	return acc.Mean()
}

func (m *ContextModel) replacementWords(target string) ([]string, bool) {
	if target == "" || m.random() <= m.replacement {
		return nil, false
	}
	names := m.store.Names(target)
	if len(names) == 0 {
		return nil, false
	}
	name := names[int(m.random()*float64(len(names)))%len(names)]
	return strings.Split(name, m.store.Separator()), true
}

// Similarity scores cui against precomputed context vectors.  It returns
// NoSimilarity when the concept is under-trained or has no vectors.
func (m *ContextModel) Similarity(cui string, ctx map[string]common.Vector) float64 {
	if m.store.TrainCount(cui) < m.trainCountThreshold {
		return NoSimilarity
	}
	stored := m.store.ContextVectors(cui)
	if len(stored) == 0 {
		return NoSimilarity
	}
	var sim float64
	for _, w := range m.windows {
		cv, ok := ctx[w.kind]
		if !ok {
			continue
		}
		sv, ok := stored[w.kind]
		if !ok {
			continue
		}
		sim += w.weight * common.Cosine(cv, sv)
	}
	return sim
}

// SpanSimilarity builds the span's context and scores cui against it.
func (m *ContextModel) SpanSimilarity(cui string, tokens []clinical_ner.Token, span clinical_ner.Span) float64 {
	return m.Similarity(cui, m.ContextVectors(tokens, span, ""))
}
