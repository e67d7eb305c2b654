package concept_store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/pkg/errors"
)

func buildTestStore(t *testing.T) *Store {
	t.Helper()
	b := NewBuilder("~")
	_, err := b.AddName("C1", []string{"chest", "pain"}, StatusPrimary)
	require.NoError(t, err)
	_, err = b.AddName("C2", []string{"cold"}, StatusAutomatic)
	require.NoError(t, err)
	_, err = b.AddName("C3", []string{"cold"}, StatusPrimaryDisputed)
	require.NoError(t, err)
	_, err = b.AddName("C3", []string{"common", "cold"}, StatusPrimary)
	require.NoError(t, err)
	b.SetInfo("C1", ConceptInfo{PreferredName: "Chest pain", TypeIDs: []string{"T184"}})
	require.NoError(t, b.SetTraining("C2", map[string]common.Vector{
		"short": {1, 0, 0},
		"long":  {0, 1, 0},
	}, 40, 0.8))
	require.NoError(t, b.SetTraining("C3", map[string]common.Vector{"short": {0, 0, 1}}, 3, 0.5))
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestStore_Lookups(t *testing.T) {
	s := buildTestStore(t)

	assert.Equal(t, []string{"C1"}, s.Candidates("chest~pain"))
	assert.Equal(t, []string{"C2", "C3"}, s.Candidates("cold"))
	assert.Empty(t, s.Candidates("unknown"))

	assert.True(t, s.IsName("chest~pain"))
	assert.False(t, s.IsName("chest"))
	assert.True(t, s.IsFragment("chest"))
	assert.True(t, s.IsFragment("common"))
	assert.True(t, s.IsFragment("cold"))
	assert.False(t, s.IsFragment("pain"))

	assert.Equal(t, StatusPrimary, s.Status("chest~pain", "C1"))
	assert.Equal(t, StatusPrimaryDisputed, s.Status("cold", "C3"))
	assert.Equal(t, StatusAutomatic, s.Status("cold", "C9"))

	assert.Equal(t, []string{"cold", "common~cold"}, s.Names("C3"))
	assert.Equal(t, uint64(40), s.TrainCount("C2"))
	assert.Equal(t, uint64(0), s.TrainCount("C1"))
	assert.Equal(t, 0.8, s.AvgConfidence("C2"))
	assert.Nil(t, s.ContextVectors("C1"))
	assert.Len(t, s.ContextVectors("C2"), 2)
	assert.Equal(t, 3, s.VectorDim())

	info, ok := s.Info("C1")
	require.True(t, ok)
	assert.Equal(t, "Chest pain", info.PreferredName)
}

func TestStore_NameWordCounts(t *testing.T) {
	s := buildTestStore(t)
	counts := s.NameWordCounts()
	assert.Equal(t, uint64(2), counts["cold"])
	assert.Equal(t, uint64(1), counts["chest"])
	counts["cold"] = 99
	assert.Equal(t, uint64(2), s.NameWordCounts()["cold"])
}

func TestStore_Stats(t *testing.T) {
	st := buildTestStore(t).Stats()
	assert.Equal(t, 3, st.Names)
	assert.Equal(t, 3, st.Concepts)
	assert.Equal(t, 2, st.TrainedConcepts)
	assert.Equal(t, 3, st.VectorDim)
	assert.Equal(t, 5, st.Fragments)
}

func TestDecay(t *testing.T) {
	d := DefaultDecay()
	assert.Equal(t, 1.0, d.Weight(0))
	assert.InDelta(t, 1-0.0004, d.Weight(1), 1e-12)
	assert.Equal(t, 0.1, d.Weight(100))
	assert.True(t, d.Weight(2) < d.Weight(1))
}

func TestBuilder_StatusPrecedence(t *testing.T) {
	b := NewBuilder("~")
	_, _ = b.AddName("C1", []string{"mi"}, StatusAutomatic)
	_, _ = b.AddName("C1", []string{"mi"}, StatusPrimary)
	_, _ = b.AddName("C1", []string{"mi"}, StatusNegative)
	s, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, StatusPrimary, s.Status("mi", "C1"))
}

func TestBuilder_Errors(t *testing.T) {
	b := NewBuilder("~")
	_, err := b.AddName("", []string{"x"}, StatusPrimary)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = b.AddName("C1", nil, StatusPrimary)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNameInvalid))

	_, err = b.AddName("C1", []string{"x"}, Status("Z"))
	assert.Error(t, err)

	err = b.SetTraining("C404", nil, 1, 1)
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := buildTestStore(t)

	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf))

	loaded, err := Load(&buf, "")
	require.NoError(t, err)

	assert.Equal(t, s.nameToConcepts, loaded.nameToConcepts)
	assert.Equal(t, s.vectors, loaded.vectors)
	assert.Equal(t, s.conceptToNames, loaded.conceptToNames)
	assert.Equal(t, s.nameStatus, loaded.nameStatus)
	assert.Equal(t, s.fragments, loaded.fragments)
	assert.Equal(t, s.trainCount, loaded.trainCount)
	assert.Equal(t, s.decay, loaded.decay)
	assert.Equal(t, "~", loaded.Separator())
}

func TestSaveFile_LoadFile(t *testing.T) {
	s := buildTestStore(t)
	path := t.TempDir() + "/cdb.json"
	require.NoError(t, s.SaveFile(path))

	loaded, err := LoadFile(path, "~")
	require.NoError(t, err)
	assert.Equal(t, s.Stats(), loaded.Stats())

	_, err = LoadFile(t.TempDir()+"/missing.json", "~")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConceptStoreIO))
}

const minimalDoc = `{
 "name_to_concepts": {"chest~pain": ["C1"]},
 "concept_to_names": {"C1": ["chest~pain"]},
 "name_status": {"chest~pain": {"C1": "P"}},
 "concept_context_vectors": {},
 "concept_train_count": {},
 "concept_avg_confidence": {},
 "name_fragments": ["chest", "chest~pain"]
}`

func TestLoad_Minimal(t *testing.T) {
	s, err := Load(strings.NewReader(minimalDoc), "~")
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, s.Candidates("chest~pain"))
	assert.Equal(t, DefaultDecay(), s.DecayParams())
}

func TestLoad_FormatErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{"name_to_concepts":`},
		{"array", `[]`},
		{"missing key", strings.Replace(minimalDoc, `"name_fragments": ["chest", "chest~pain"]`, `"other": []`, 1)},
		{"null key", strings.Replace(minimalDoc, `"concept_train_count": {}`, `"concept_train_count": null`, 1)},
		{"wrong type", strings.Replace(minimalDoc, `"concept_train_count": {}`, `"concept_train_count": {"C1": "many"}`, 1)},
		{"bad status", strings.Replace(minimalDoc, `{"C1": "P"}`, `{"C1": "X"}`, 1)},
		{"vectors for unnamed concept", strings.Replace(minimalDoc, `"concept_context_vectors": {}`, `"concept_context_vectors": {"C9": {"short": [1,2]}}`, 1)},
		{"train count for unnamed concept", strings.Replace(minimalDoc, `"concept_train_count": {}`, `"concept_train_count": {"C9": 3}`, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Load(strings.NewReader(tc.doc), "~")
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.IsFormatError(err), "got %v", err)
		})
	}
}

func TestLoad_DimensionMismatch(t *testing.T) {
	doc := strings.Replace(minimalDoc, `"concept_context_vectors": {}`,
		`"concept_context_vectors": {"C1": {"short": [1,2], "long": [1,2,3]}}`, 1)
	_, err := Load(strings.NewReader(doc), "~")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDimensionMismatch))
}

func TestLoad_RequiresSeparator(t *testing.T) {
	_, err := Load(strings.NewReader(minimalDoc), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConceptStoreFormat))
}
