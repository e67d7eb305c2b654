// Package vocabulary provides the word → (vector, frequency) table the
// context model and spell corrector read.  The word index always lives in
// memory; the vectors sit behind a VectorStore that is either a plain slice
// or a fixed-width block file, optionally memory-mapped.
package vocabulary

import (
	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// VectorStore holds vectors addressed by a dense index.
type VectorStore interface {
	// Vector returns a copy of the vector at index, false when out of range.
	Vector(index int) (common.Vector, bool)
	Dim() int
	Len() int
	Close() error
}

// ---------------------------------------------------------------------------
// Vocabulary
// ---------------------------------------------------------------------------

// noVector marks a word that has a frequency but no embedding.
const noVector = -1

type entry struct {
	index int
	freq  uint64
}

// Vocabulary is read-only after construction and safe for concurrent use.
type Vocabulary struct {
	words map[string]entry
	store VectorStore
}

// Vector returns the embedding of word.  Unknown words and words without an
// embedding yield false.
func (v *Vocabulary) Vector(word string) (common.Vector, bool) {
	e, ok := v.words[word]
	if !ok || e.index == noVector {
		return nil, false
	}
	return v.store.Vector(e.index)
}

// Frequency returns the corpus frequency of word, 0 if unknown.
func (v *Vocabulary) Frequency(word string) uint64 {
	return v.words[word].freq
}

// Contains reports whether word is in the table.
func (v *Vocabulary) Contains(word string) bool {
	_, ok := v.words[word]
	return ok
}

// Frequencies returns a copy of the frequency table.
func (v *Vocabulary) Frequencies() map[string]uint64 {
	out := make(map[string]uint64, len(v.words))
	for w, e := range v.words {
		out[w] = e.freq
	}
	return out
}

// Len returns the number of words.
func (v *Vocabulary) Len() int { return len(v.words) }

// Dim returns the vector dimension, 0 for a frequency-only vocabulary.
func (v *Vocabulary) Dim() int { return v.store.Dim() }

// Close releases the vector backing.  The Vocabulary must not be used
// afterwards.
func (v *Vocabulary) Close() error { return v.store.Close() }

// Empty returns a vocabulary with no words.
func Empty() *Vocabulary {
	return &Vocabulary{words: map[string]entry{}, store: &memoryStore{}}
}

// FromMaps builds an in-memory Vocabulary.  Every vector must share one
// dimension.  Words missing from freqs get frequency zero.
func FromMaps(vectors map[string]common.Vector, freqs map[string]uint64) (*Vocabulary, error) {
	ms := &memoryStore{}
	words := make(map[string]entry, len(freqs)+len(vectors))
	for w, f := range freqs {
		words[w] = entry{index: noVector, freq: f}
	}
	for _, w := range sortedWords(vectors) {
		vec := vectors[w]
		if vec == nil {
			continue
		}
		if ms.dim == 0 {
			ms.dim = len(vec)
		}
		if len(vec) != ms.dim {
			return nil, errors.FormatError(errors.ErrCodeDimensionMismatch, "vocabulary vector dimension mismatch").
				WithDetail(w)
		}
		e := words[w]
		e.index = len(ms.vectors)
		words[w] = e
		ms.vectors = append(ms.vectors, vec.Clone())
	}
	return &Vocabulary{words: words, store: ms}, nil
}

// ---------------------------------------------------------------------------
// memoryStore
// ---------------------------------------------------------------------------

type memoryStore struct {
	vectors []common.Vector
	dim     int
}

func (m *memoryStore) Vector(index int) (common.Vector, bool) {
	if index < 0 || index >= len(m.vectors) {
		return nil, false
	}
	return m.vectors[index].Clone(), true
}

func (m *memoryStore) Dim() int     { return m.dim }
func (m *memoryStore) Len() int     { return len(m.vectors) }
func (m *memoryStore) Close() error { return nil }
