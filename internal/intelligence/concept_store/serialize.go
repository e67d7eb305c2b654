package concept_store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// requiredKeys must be present and non-null in a serialized store.
var requiredKeys = []string{
	"name_to_concepts",
	"concept_to_names",
	"name_status",
	"concept_context_vectors",
	"concept_train_count",
	"concept_avg_confidence",
	"name_fragments",
}

// document is the on-disk JSON layout.
type document struct {
	Separator             string                          `json:"separator,omitempty"`
	NameToConcepts        map[string][]string             `json:"name_to_concepts"`
	ConceptToNames        map[string][]string             `json:"concept_to_names"`
	NameStatus            map[string]map[string]Status    `json:"name_status"`
	ConceptContextVectors map[string]map[string][]float32 `json:"concept_context_vectors"`
	ConceptTrainCount     map[string]uint64               `json:"concept_train_count"`
	ConceptAvgConfidence  map[string]float64              `json:"concept_avg_confidence"`
	NameFragments         []string                        `json:"name_fragments"`
	Decay                 *DecayParams                    `json:"decay,omitempty"`
	ConceptInfo           map[string]ConceptInfo          `json:"concept_info,omitempty"`
}

func formatErr(msg string) *errors.AppError {
	return errors.FormatError(errors.ErrCodeConceptStoreFormat, msg)
}

// Load parses a serialized store.  Missing required keys, malformed JSON and
// broken invariants all fail with a concept store FormatError; nothing is
// partially loaded.  defaultSeparator is used when the document carries none.
func Load(r io.Reader, defaultSeparator string) (*Store, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConceptStoreIO, "read concept store")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, formatErr("concept store is not a JSON object").WithCause(err)
	}
	for _, k := range requiredKeys {
		v, ok := keys[k]
		if !ok || string(v) == "null" {
			return nil, formatErr("missing required key").WithDetail(k)
		}
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, formatErr("malformed concept store").WithCause(err)
	}
	return fromDocument(&doc, defaultSeparator)
}

// LoadFile opens path and calls Load.
func LoadFile(path, defaultSeparator string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConceptStoreIO, "open concept store").WithDetail(path)
	}
	defer f.Close()
	return Load(bufio.NewReader(f), defaultSeparator)
}

func fromDocument(doc *document, defaultSeparator string) (*Store, error) {
	sep := doc.Separator
	if sep == "" {
		sep = defaultSeparator
	}
	if sep == "" {
		return nil, formatErr("no name separator configured")
	}

	s := &Store{
		separator:      sep,
		nameToConcepts: make(map[string][]string, len(doc.NameToConcepts)),
		conceptToNames: make(map[string][]string, len(doc.ConceptToNames)),
		nameStatus:     make(map[string]map[string]Status, len(doc.NameStatus)),
		vectors:        make(map[string]map[string]common.Vector, len(doc.ConceptContextVectors)),
		trainCount:     doc.ConceptTrainCount,
		avgConfidence:  doc.ConceptAvgConfidence,
		fragments:      make(map[string]struct{}, len(doc.NameFragments)),
		info:           doc.ConceptInfo,
		decay:          DefaultDecay(),
	}
	if doc.Decay != nil {
		s.decay = *doc.Decay
	}
	if s.info == nil {
		s.info = map[string]ConceptInfo{}
	}

	for name, cuis := range doc.NameToConcepts {
		s.nameToConcepts[name] = sortedUnique(cuis)
	}
	for cui, names := range doc.ConceptToNames {
		s.conceptToNames[cui] = sortedUnique(names)
	}
	for name, byCUI := range doc.NameStatus {
		m := make(map[string]Status, len(byCUI))
		for cui, st := range byCUI {
			if !st.Valid() {
				return nil, formatErr("invalid name status").WithDetail(fmt.Sprintf("%s/%s=%q", name, cui, st))
			}
			m[cui] = st
		}
		s.nameStatus[name] = m
	}
	for _, f := range doc.NameFragments {
		s.fragments[f] = struct{}{}
	}

	dim := 0
	for cui, kinds := range doc.ConceptContextVectors {
		if _, ok := s.conceptToNames[cui]; !ok {
			return nil, formatErr("context vectors for unnamed concept").WithDetail(cui)
		}
		m := make(map[string]common.Vector, len(kinds))
		for kind, v := range kinds {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, errors.FormatError(errors.ErrCodeDimensionMismatch, "context vector dimension mismatch").
					WithDetail(fmt.Sprintf("%s/%s: want %d, got %d", cui, kind, dim, len(v)))
			}
			m[kind] = common.Vector(v)
		}
		s.vectors[cui] = m
	}
	for cui := range s.trainCount {
		if _, ok := s.conceptToNames[cui]; !ok {
			return nil, formatErr("train count for unnamed concept").WithDetail(cui)
		}
	}

	s.finalize()
	return s, nil
}

// Save writes the store in the format Load reads.  Output is deterministic.
func (s *Store) Save(w io.Writer) error {
	doc := document{
		Separator:             s.separator,
		NameToConcepts:        s.nameToConcepts,
		ConceptToNames:        s.conceptToNames,
		NameStatus:            s.nameStatus,
		ConceptContextVectors: make(map[string]map[string][]float32, len(s.vectors)),
		ConceptTrainCount:     s.trainCount,
		ConceptAvgConfidence:  s.avgConfidence,
		NameFragments:         sortedKeys(s.fragments),
		Decay:                 &s.decay,
	}
	if len(s.info) > 0 {
		doc.ConceptInfo = s.info
	}
	for cui, kinds := range s.vectors {
		m := make(map[string][]float32, len(kinds))
		for kind, v := range kinds {
			m[kind] = []float32(v)
		}
		doc.ConceptContextVectors[cui] = m
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeConceptStoreIO, "encode concept store")
	}
	return nil
}

// SaveFile writes the store to path, replacing any existing file.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConceptStoreIO, "create concept store").WithDetail(path)
	}
	bw := bufio.NewWriter(f)
	if err := s.Save(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeConceptStoreIO, "flush concept store").WithDetail(path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConceptStoreIO, "close concept store")
	}
	return nil
}

func sortedUnique(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, v := range in {
		set[v] = struct{}{}
	}
	return sortedKeys(set)
}
