package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
	"github.com/turtacn/ClinLink/internal/intelligence/spell_checker"
	"github.com/turtacn/ClinLink/internal/intelligence/vocabulary"
	"github.com/turtacn/ClinLink/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/testutil"
	"github.com/turtacn/ClinLink/pkg/client"
	"github.com/turtacn/ClinLink/pkg/errors"
	types "github.com/turtacn/ClinLink/pkg/types/common"
)

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

// writeFixture writes a small concept store and a config file pointing at it.
func writeFixture(t *testing.T) (cfgPath, cdbPath string) {
	t.Helper()
	dir := t.TempDir()

	b := concept_store.NewBuilder("~")
	_, err := b.AddName("C0015967", []string{"fever"}, concept_store.StatusPrimary)
	require.NoError(t, err)
	_, err = b.AddName("C0008031", []string{"chest", "pain"}, concept_store.StatusPrimary)
	require.NoError(t, err)
	b.SetInfo("C0015967", concept_store.ConceptInfo{PreferredName: "Fever", TypeIDs: []string{"T184"}})
	store, err := b.Build()
	require.NoError(t, err)

	cdbPath = filepath.Join(dir, "cdb.json")
	require.NoError(t, store.SaveFile(cdbPath))

	cfgPath = filepath.Join(dir, "clinlink.yaml")
	content := "artifacts:\n  concept_store_path: " + cdbPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath, cdbPath
}

// ─────────────────────────────────────────────────────────────────────────────
// Root command
// ─────────────────────────────────────────────────────────────────────────────

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "clinlink", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"annotate", "correct", "cdb", "vocab", "artifacts", "cache", "submit", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	pf := NewRootCommand().PersistentFlags()

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"config", "c", ""},
		{"log-level", "", "warn"},
		{"output", "o", FormatText},
		{"verbose", "v", "false"},
		{"no-color", "", "false"},
		{"timeout", "", "5m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := pf.Lookup(tt.name)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clinlink "+Version)
	assert.Contains(t, out, GitCommit)
}

func TestPersistentPreRun_InvalidOutputFormat(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	_, err := executeCommand(t, "", "--config", cfgPath, "-o", "xml", "annotate", "fever")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPersistentPreRun_MissingConfigFile(t *testing.T) {
	_, err := executeCommand(t, "", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "annotate", "fever")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestGetCLIContext_Missing(t *testing.T) {
	_, err := GetCLIContext(&cobra.Command{})
	require.Error(t, err)
}

func TestInitLogger_UnknownLevelFallsBack(t *testing.T) {
	l, err := initLogger(&RootOptions{LogLevel: "chatty"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

// ─────────────────────────────────────────────────────────────────────────────
// Output helpers
// ─────────────────────────────────────────────────────────────────────────────

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"CUI", "Name"}, [][]string{{"C0015967", "fever"}, {"C0008031"}})
	assert.Contains(t, out, "CUI")
	assert.Contains(t, out, "C0015967")
	assert.Contains(t, out, "fever")
	assert.Contains(t, out, "C0008031")
	assert.Empty(t, FormatTable(nil, nil))
}

func TestPrintResult_WithoutContextUsesJSON(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, PrintResult(cmd, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}

func TestPrintTable_FallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, "plain"))
	assert.Equal(t, "plain\n", buf.String())
}

// ─────────────────────────────────────────────────────────────────────────────
// annotate
// ─────────────────────────────────────────────────────────────────────────────

func TestAnnotate_JSONSingleDocument(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out, err := executeCommand(t, "", "--config", cfgPath, "-o", "json", "annotate", "--id", "doc-1", "patient", "has", "fever")
	require.NoError(t, err)

	var res types.AnnotationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, types.ID("doc-1"), res.DocumentID)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "C0015967", res.Entities[0].CUI)
	assert.Equal(t, "Fever", res.Entities[0].PreferredName)
	assert.Equal(t, "fever", res.Entities[0].Text)
	assert.NotEmpty(t, res.EngineFingerprint)
}

func TestAnnotate_LinesFromStdin(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out, err := executeCommand(t, "fever\n\nchest pain\n", "--config", cfgPath, "-o", "json", "annotate", "--lines", "-f", "-")
	require.NoError(t, err)

	var res annotateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Results, 2)
	assert.Equal(t, []string{"C0015967"}, res.Results[0].CUIs())
	assert.Equal(t, []string{"C0008031"}, res.Results[1].CUIs())
}

func TestAnnotate_TableOutput(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out, err := executeCommand(t, "", "--config", cfgPath, "-o", "table", "annotate", "fever")
	require.NoError(t, err)
	assert.Contains(t, out, "Preferred")
	assert.Contains(t, out, "C0015967")
}

func TestAnnotate_CacheRequiresNoRedisWhenDisabled(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out, err := executeCommand(t, "", "--config", cfgPath, "annotate", "--cache", "fever")
	require.NoError(t, err)
	assert.Contains(t, out, "C0015967")
}

func TestReadDocuments(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(""))

	t.Run("args joined", func(t *testing.T) {
		docs, err := readDocuments(cmd, []string{"chest", "pain"}, &annotateOptions{docID: "x"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "chest pain", docs[0].Text)
		assert.Equal(t, types.ID("x"), docs[0].ID)
	})

	t.Run("file and args conflict", func(t *testing.T) {
		_, err := readDocuments(cmd, []string{"a"}, &annotateOptions{file: "notes.txt"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := readDocuments(cmd, []string{"  "}, &annotateOptions{})
		assert.True(t, errors.IsCode(err, errors.ErrCodeDocumentEmpty))
	})

	t.Run("id with lines", func(t *testing.T) {
		_, err := readDocuments(cmd, []string{"a"}, &annotateOptions{lines: true, docID: "x"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("file lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("one\n\ntwo\n"), 0o644))
		docs, err := readDocuments(cmd, nil, &annotateOptions{file: path, lines: true})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "two", docs[1].Text)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readDocuments(cmd, nil, &annotateOptions{file: filepath.Join(t.TempDir(), "nope")})
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})
}

func TestAnnotateOutput_Rendering(t *testing.T) {
	o := &annotateOutput{Results: []*types.AnnotationResult{{
		DocumentID: "0123456789abcdef",
		Entities: []types.Entity{{
			CUI: "C0015967", Name: "fever", Text: "fever", Start: 4, End: 9, Similarity: 1, Outcome: "accepted",
		}},
		TokenCount: 2, SpanCount: 1, Cached: true,
	}}}

	rows := o.TableRows()
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"01234567", "4-9", "fever", "C0015967", "", "1.000", "accepted"}, rows[0])

	text := o.String()
	assert.Contains(t, text, "1 entities")
	assert.Contains(t, text, "[cached]")
	assert.Contains(t, text, `"fever" -> C0015967 fever`)
}

// ─────────────────────────────────────────────────────────────────────────────
// correct
// ─────────────────────────────────────────────────────────────────────────────

func TestCorrectWords(t *testing.T) {
	c := spell_checker.NewCorrector(map[string]uint64{"fever": 10, "fervor": 2, "pain": 5}, spell_checker.Options{})
	out := correctWords(c, []string{"Fever", "fevr", "qqqqqq"}, 1)
	require.Len(t, out.Words, 3)

	assert.True(t, out.Words[0].Known)
	assert.False(t, out.Words[0].Changed)
	assert.Equal(t, "fever", out.Words[0].Correction)
	assert.Empty(t, out.Words[0].Suggestions)

	assert.False(t, out.Words[1].Known)
	assert.True(t, out.Words[1].Changed)
	assert.Equal(t, "fever", out.Words[1].Correction)
	assert.LessOrEqual(t, len(out.Words[1].Suggestions), 1)

	assert.False(t, out.Words[2].Changed)
	assert.Equal(t, "qqqqqq", out.Words[2].Correction)

	text := out.String()
	assert.Contains(t, text, "Fever: ok")
	assert.Contains(t, text, "fevr -> fever")
	assert.Contains(t, text, "qqqqqq: no correction")
}

func TestCorrectCommand(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out, err := executeCommand(t, "", "--config", cfgPath, "-o", "json", "correct", "fevr")
	require.NoError(t, err)

	var res correctOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Words, 1)
	assert.Equal(t, "fever", res.Words[0].Correction)
}

// ─────────────────────────────────────────────────────────────────────────────
// cdb
// ─────────────────────────────────────────────────────────────────────────────

func TestBuildStore(t *testing.T) {
	csv := `cui,name,status,preferred
# comment
C0015967,Fever,P,Fever
C0015967,pyrexia
C0008031,chest pain,,Chest Pain
`
	store, err := buildStore(strings.NewReader(csv), config.DefaultConfig(), testutil.NewMockLogger())
	require.NoError(t, err)

	st := store.Stats()
	assert.Equal(t, 2, st.Concepts)
	assert.Equal(t, 3, st.Names)
	assert.Equal(t, []string{"C0015967"}, store.Candidates("fever"))
	assert.Equal(t, concept_store.StatusPrimary, store.Status("fever", "C0015967"))
	assert.Equal(t, concept_store.StatusAutomatic, store.Status("pyrexia", "C0015967"))

	info, ok := store.Info("C0008031")
	require.True(t, ok)
	assert.Equal(t, "Chest Pain", info.PreferredName)
}

func TestBuildStore_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := testutil.NewMockLogger()

	_, err := buildStore(strings.NewReader("cui,name\n"), cfg, logger)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = buildStore(strings.NewReader("C001\n"), cfg, logger)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = buildStore(strings.NewReader("C001,\"unterminated\n"), cfg, logger)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestCDBBuildAndInspect(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "names.csv")
	outPath := filepath.Join(dir, "built.json")
	require.NoError(t, os.WriteFile(in, []byte("C0020538,hypertension,P,Hypertension\n"), 0o644))

	_, err := executeCommand(t, "", "--config", cfgPath, "cdb", "build", "-i", in, "--out", outPath)
	require.NoError(t, err)

	out, err := executeCommand(t, "", "--config", cfgPath, "-o", "json", "cdb", "inspect", "--store", outPath)
	require.NoError(t, err)
	var stats concept_store.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Concepts)

	out, err = executeCommand(t, "", "--config", cfgPath, "-o", "json", "cdb", "inspect", "--store", outPath, "--name", "Hypertension")
	require.NoError(t, err)
	var lookup nameLookup
	require.NoError(t, json.Unmarshal([]byte(out), &lookup))
	require.Len(t, lookup.Concepts, 1)
	assert.Equal(t, "C0020538", lookup.Concepts[0].CUI)
	assert.Equal(t, "P", lookup.Concepts[0].Status)
	assert.Equal(t, "Hypertension", lookup.Concepts[0].PreferredName)
}

func TestNameLookup_StringNoConcepts(t *testing.T) {
	l := &nameLookup{Query: "x", Name: "x"}
	assert.Equal(t, "x: no concepts", l.String())
}

// ─────────────────────────────────────────────────────────────────────────────
// vocab
// ─────────────────────────────────────────────────────────────────────────────

func TestPackVocabulary(t *testing.T) {
	dir := t.TempDir()
	v, err := vocabulary.FromMaps(map[string]common.Vector{
		"fever": {1, 0},
		"pain":  {0, 1},
	}, map[string]uint64{"fever": 10, "pain": 4, "the": 100})
	require.NoError(t, err)

	table := filepath.Join(dir, "vocab.json")
	f, err := os.Create(table)
	require.NoError(t, err)
	require.NoError(t, v.SaveTable(f))
	require.NoError(t, f.Close())

	index := filepath.Join(dir, "vocab.idx")
	block := filepath.Join(dir, "vocab.blk")
	out, err := packVocabulary(table, index, block)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Words)
	assert.Equal(t, 2, out.Dim)

	packed, err := vocabulary.Open(vocabulary.Options{Path: index, BlockPath: block, UseVectorBlock: true})
	require.NoError(t, err)
	defer packed.Close()
	assert.Equal(t, 3, packed.Len())
	assert.Equal(t, 2, packed.Dim())
}

func TestPackVocabulary_MissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := packVocabulary(filepath.Join(dir, "none"), filepath.Join(dir, "i"), filepath.Join(dir, "b"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

// ─────────────────────────────────────────────────────────────────────────────
// cache and artifacts
// ─────────────────────────────────────────────────────────────────────────────

func TestCachePurge_RequiresRedis(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	_, err := executeCommand(t, "", "--config", cfgPath, "cache", "purge")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestHasRemoteArtifacts(t *testing.T) {
	assert.False(t, hasRemoteArtifacts(config.ArtifactsConfig{ConceptStorePath: "/tmp/cdb.json"}))
	assert.True(t, hasRemoteArtifacts(config.ArtifactsConfig{ConceptStorePath: "/tmp/cdb.json", VocabularyPath: "s3://m/v"}))
	assert.True(t, hasRemoteArtifacts(config.ArtifactsConfig{VectorBlockPath: "s3://m/b"}))
}

func TestListOutput_Rendering(t *testing.T) {
	assert.Equal(t, "no artifacts", (&listOutput{}).String())
	assert.Len(t, (&listOutput{}).TableHeaders(), 4)
}// ─────────────────────────────────────────────────────────────────────────────
// submit
// ─────────────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	topics []string
	keys   []string
	types  []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key, eventType string, _ interface{}) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.types = append(p.types, eventType)
	return nil
}

func stubSubmitClient(t *testing.T, p *recordingPublisher) {
	t.Helper()
	orig := newSubmitClient
	newSubmitClient = func(cfg config.KafkaConfig, logger logging.Logger) (*client.Client, error) {
		return client.NewClient(p, cfg.InputTopic, client.WithLogger(logger))
	}
	t.Cleanup(func() { newSubmitClient = orig })
}

func TestSubmitCommand_Lines(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	p := &recordingPublisher{}
	stubSubmitClient(t, p)

	out, err := executeCommand(t, "fever\n\nchest pain\n", "--config", cfgPath, "-o", "json", "submit", "--file", "-", "--lines")
	require.NoError(t, err)

	var got submitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, config.DefaultInputTopic, got.Topic)
	require.Len(t, got.IDs, 2)
	assert.Equal(t, []string{config.DefaultInputTopic, config.DefaultInputTopic}, p.topics)
	assert.Equal(t, []string{kafka.EventDocumentSubmitted, kafka.EventDocumentSubmitted}, p.types)
	assert.Equal(t, string(got.IDs[0]), p.keys[0])
}

func TestSubmitCommand_WithID(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	p := &recordingPublisher{}
	stubSubmitClient(t, p)

	out, err := executeCommand(t, "", "--config", cfgPath, "submit", "--id", "note-17", "denies", "chest", "pain")
	require.NoError(t, err)
	assert.Contains(t, out, "submitted 1 documents")
	assert.Contains(t, out, "note-17")
	assert.Equal(t, []string{"note-17"}, p.keys)
}

func TestSubmitCommand_EmptyInput(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	p := &recordingPublisher{}
	stubSubmitClient(t, p)

	_, err := executeCommand(t, "", "--config", cfgPath, "submit")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDocumentEmpty))
	assert.Empty(t, p.keys)
}

func TestSubmitOutput_Table(t *testing.T) {
	o := &submitOutput{Topic: "t", IDs: []types.ID{"a", "b"}}
	assert.Equal(t, []string{"Document", "Topic"}, o.TableHeaders())
	assert.Equal(t, [][]string{{"a", "t"}, {"b", "t"}}, o.TableRows())
}


