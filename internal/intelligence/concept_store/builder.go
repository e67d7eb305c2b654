package concept_store

import (
	"sort"
	"strings"

	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// Builder assembles a Store offline.  It is not safe for concurrent use.
type Builder struct {
	separator      string
	nameToConcepts map[string]map[string]struct{}
	conceptToNames map[string]map[string]struct{}
	nameStatus     map[string]map[string]Status
	vectors        map[string]map[string]common.Vector
	trainCount     map[string]uint64
	avgConfidence  map[string]float64
	fragments      map[string]struct{}
	info           map[string]ConceptInfo
	decay          DecayParams
}

// NewBuilder returns an empty Builder joining name tokens with separator.
func NewBuilder(separator string) *Builder {
	return &Builder{
		separator:      separator,
		nameToConcepts: make(map[string]map[string]struct{}),
		conceptToNames: make(map[string]map[string]struct{}),
		nameStatus:     make(map[string]map[string]Status),
		vectors:        make(map[string]map[string]common.Vector),
		trainCount:     make(map[string]uint64),
		avgConfidence:  make(map[string]float64),
		fragments:      make(map[string]struct{}),
		info:           make(map[string]ConceptInfo),
		decay:          DefaultDecay(),
	}
}

// AddName registers the name formed by joining tokens as a name of cui and
// indexes every token prefix as a fragment.  A primary status replaces an
// earlier non-primary one for the same pair; otherwise the first status wins.
func (b *Builder) AddName(cui string, tokens []string, status Status) (string, error) {
	cui = strings.TrimSpace(cui)
	if cui == "" {
		return "", errors.InvalidParam("concept id is empty")
	}
	if len(tokens) == 0 {
		return "", errors.New(errors.ErrCodeNameInvalid, "name has no tokens").WithDetail(cui)
	}
	if status == "" {
		status = StatusAutomatic
	}
	if !status.Valid() {
		return "", errors.InvalidParam("unknown name status").WithDetail(string(status))
	}

	name := strings.Join(tokens, b.separator)
	addToSet(b.nameToConcepts, name, cui)
	addToSet(b.conceptToNames, cui, name)

	byCUI, ok := b.nameStatus[name]
	if !ok {
		byCUI = make(map[string]Status)
		b.nameStatus[name] = byCUI
	}
	if prev, seen := byCUI[cui]; !seen || (status.IsPrimary() && !prev.IsPrimary()) {
		byCUI[cui] = status
	}

	for i := 1; i <= len(tokens); i++ {
		b.fragments[strings.Join(tokens[:i], b.separator)] = struct{}{}
	}
	return name, nil
}

// SetInfo attaches descriptive metadata to cui.
func (b *Builder) SetInfo(cui string, info ConceptInfo) {
	b.info[cui] = info
}

// SetTraining records learned context vectors and statistics for a concept
// that already has at least one name.
func (b *Builder) SetTraining(cui string, vectors map[string]common.Vector, trainCount uint64, avgConfidence float64) error {
	if _, ok := b.conceptToNames[cui]; !ok {
		return errors.InvalidParam("training data for concept without names").WithDetail(cui)
	}
	if len(vectors) > 0 {
		m := make(map[string]common.Vector, len(vectors))
		for kind, v := range vectors {
			m[kind] = v.Clone()
		}
		b.vectors[cui] = m
	}
	b.trainCount[cui] = trainCount
	b.avgConfidence[cui] = avgConfidence
	return nil
}

// SetDecay overrides the default context decay.
func (b *Builder) SetDecay(d DecayParams) {
	b.decay = d
}

// Build validates and freezes the accumulated data into a Store.  The Store
// takes ownership of the data, so the Builder must not be used afterwards.
func (b *Builder) Build() (*Store, error) {
	doc := &document{
		Separator:             b.separator,
		NameToConcepts:        flatten(b.nameToConcepts),
		ConceptToNames:        flatten(b.conceptToNames),
		NameStatus:            b.nameStatus,
		ConceptContextVectors: make(map[string]map[string][]float32, len(b.vectors)),
		ConceptTrainCount:     b.trainCount,
		ConceptAvgConfidence:  b.avgConfidence,
		NameFragments:         sortedKeys(b.fragments),
		Decay:                 &b.decay,
		ConceptInfo:           b.info,
	}
	for cui, kinds := range b.vectors {
		m := make(map[string][]float32, len(kinds))
		for kind, v := range kinds {
			m[kind] = []float32(v)
		}
		doc.ConceptContextVectors[cui] = m
	}
	return fromDocument(doc, b.separator)
}

func addToSet(m map[string]map[string]struct{}, key, val string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[val] = struct{}{}
}

func flatten(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		out[k] = vals
	}
	return out
}
