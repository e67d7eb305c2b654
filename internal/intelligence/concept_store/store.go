// Package concept_store implements the read-only concept database: the
// name → concept index, the prefix fragment index used for span growth, and
// each concept's learned context vectors and training statistics.
//
// A Store is immutable once built or loaded and is safe for concurrent use
// without locking.
package concept_store

import (
	"sort"
	"strings"

	"github.com/turtacn/ClinLink/internal/intelligence/common"
)

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status describes how a name relates to one of its concepts.
type Status string

const (
	StatusPrimary         Status = "P"
	StatusPrimaryDisputed Status = "PD"
	StatusAutomatic       Status = "A"
	StatusNegative        Status = "N"
)

// IsPrimary reports whether s is P or PD.
func (s Status) IsPrimary() bool {
	return s == StatusPrimary || s == StatusPrimaryDisputed
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPrimary, StatusPrimaryDisputed, StatusAutomatic, StatusNegative:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Decay
// ---------------------------------------------------------------------------

// DecayParams define the context weight at distance step from a span:
// max(Floor, 1 - step²·Factor).
type DecayParams struct {
	Floor  float64 `json:"floor"`
	Factor float64 `json:"factor"`
}

// DefaultDecay returns the standard context decay.
func DefaultDecay() DecayParams {
	return DecayParams{Floor: 0.1, Factor: 0.0004}
}

// Weight returns the decay weight for step (0 is the nearest token).
func (d DecayParams) Weight(step int) float64 {
	w := 1 - float64(step*step)*d.Factor
	if w < d.Floor {
		return d.Floor
	}
	return w
}

// ConceptInfo is optional descriptive metadata for a concept.
type ConceptInfo struct {
	PreferredName string   `json:"preferred_name,omitempty"`
	TypeIDs       []string `json:"type_ids,omitempty"`
}

// Stats summarises a Store.
type Stats struct {
	Names           int `json:"names"`
	Concepts        int `json:"concepts"`
	Fragments       int `json:"fragments"`
	TrainedConcepts int `json:"trained_concepts"`
	VectorDim       int `json:"vector_dim"`
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store is the immutable concept database.
type Store struct {
	separator      string
	nameToConcepts map[string][]string
	conceptToNames map[string][]string
	nameStatus     map[string]map[string]Status
	vectors        map[string]map[string]common.Vector
	trainCount     map[string]uint64
	avgConfidence  map[string]float64
	fragments      map[string]struct{}
	info           map[string]ConceptInfo
	decay          DecayParams
	dim            int

	// nameWords counts how many names each separator token appears in.
	nameWords map[string]uint64
}

// Separator returns the token separator used in names.
func (s *Store) Separator() string { return s.separator }

// Candidates returns the concepts a full name may denote, sorted ascending.
// Unknown names yield nil.  The returned slice must not be modified.
func (s *Store) Candidates(name string) []string {
	return s.nameToConcepts[name]
}

// IsName reports whether name is a complete concept name.
func (s *Store) IsName(name string) bool {
	_, ok := s.nameToConcepts[name]
	return ok
}

// IsFragment reports whether name is a prefix of some concept name, or a
// full name.
func (s *Store) IsFragment(name string) bool {
	if _, ok := s.fragments[name]; ok {
		return true
	}
	return s.IsName(name)
}

// Status returns the status of name for cui.  Pairs with no recorded status
// are Automatic.
func (s *Store) Status(name, cui string) Status {
	if st, ok := s.nameStatus[name][cui]; ok {
		return st
	}
	return StatusAutomatic
}

// Names returns the names of cui, sorted.  The slice must not be modified.
func (s *Store) Names(cui string) []string {
	return s.conceptToNames[cui]
}

// ContextVectors returns the learned vectors of cui keyed by window kind, or
// nil when the concept was never trained.  The map must not be modified.
func (s *Store) ContextVectors(cui string) map[string]common.Vector {
	return s.vectors[cui]
}

// TrainCount returns how many training examples shaped cui's vectors.
func (s *Store) TrainCount(cui string) uint64 { return s.trainCount[cui] }

// AvgConfidence returns the mean training confidence of cui, 0 if unknown.
func (s *Store) AvgConfidence(cui string) float64 { return s.avgConfidence[cui] }

// Info returns descriptive metadata for cui.
func (s *Store) Info(cui string) (ConceptInfo, bool) {
	ci, ok := s.info[cui]
	return ci, ok
}

// Decay returns the context weight for a token step positions from a span.
func (s *Store) Decay(step int) float64 { return s.decay.Weight(step) }

// DecayParams returns the decay configuration.
func (s *Store) DecayParams() DecayParams { return s.decay }

// VectorDim returns the dimension of the context vectors, 0 if none.
func (s *Store) VectorDim() int { return s.dim }

// NameWordCounts returns a copy of the per-token name counts.  The spell
// corrector uses them as a fallback frequency table.
func (s *Store) NameWordCounts() map[string]uint64 {
	out := make(map[string]uint64, len(s.nameWords))
	for w, c := range s.nameWords {
		out[w] = c
	}
	return out
}

// Concepts returns every concept identifier, sorted.
func (s *Store) Concepts() []string {
	out := make([]string, 0, len(s.conceptToNames))
	for cui := range s.conceptToNames {
		out = append(out, cui)
	}
	sort.Strings(out)
	return out
}

// Stats summarises the store.
func (s *Store) Stats() Stats {
	trained := 0
	for cui := range s.vectors {
		if s.trainCount[cui] > 0 {
			trained++
		}
	}
	return Stats{
		Names:           len(s.nameToConcepts),
		Concepts:        len(s.conceptToNames),
		Fragments:       len(s.fragments),
		TrainedConcepts: trained,
		VectorDim:       s.dim,
	}
}

// finalize derives the secondary indexes after the primary maps are set.
func (s *Store) finalize() {
	s.nameWords = make(map[string]uint64)
	for name := range s.nameToConcepts {
		for _, w := range strings.Split(name, s.separator) {
			if w != "" {
				s.nameWords[w]++
			}
		}
	}
	s.dim = 0
	for _, kinds := range s.vectors {
		for _, v := range kinds {
			if len(v) > 0 {
				s.dim = len(v)
				return
			}
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
