package vocabulary

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// Options select a vocabulary layout and backing.
type Options struct {
	// Path is the table file, or the index file when UseVectorBlock is set.
	Path string
	// BlockPath is the fixed-width vector block of the split layout.
	BlockPath      string
	UseVectorBlock bool
	UseMmap        bool
}

// Open loads a vocabulary according to opts.  An empty Path yields an empty
// vocabulary.
func Open(opts Options) (*Vocabulary, error) {
	if opts.Path == "" {
		return Empty(), nil
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "open vocabulary").WithDetail(opts.Path)
	}
	defer f.Close()

	if !opts.UseVectorBlock {
		return LoadTable(bufio.NewReader(f))
	}
	return LoadSplit(bufio.NewReader(f), opts.BlockPath, opts.UseMmap)
}

func vocabFormatErr(msg string) *errors.AppError {
	return errors.FormatError(errors.ErrCodeVocabularyFormat, msg)
}

// ---------------------------------------------------------------------------
// Table layout: {"word": {"vector": [..] | null, "frequency": n}}
// ---------------------------------------------------------------------------

type tableEntry struct {
	Vector    []float32 `json:"vector"`
	Frequency *uint64   `json:"frequency"`
}

// LoadTable parses the single-table layout into an in-memory vocabulary.
func LoadTable(r io.Reader) (*Vocabulary, error) {
	var table map[string]tableEntry
	if err := json.NewDecoder(r).Decode(&table); err != nil {
		return nil, vocabFormatErr("malformed vocabulary table").WithCause(err)
	}
	vectors := make(map[string]common.Vector, len(table))
	freqs := make(map[string]uint64, len(table))
	for w, e := range table {
		if e.Frequency == nil {
			return nil, vocabFormatErr("vocabulary entry without frequency").WithDetail(w)
		}
		freqs[w] = *e.Frequency
		if e.Vector != nil {
			vectors[w] = common.Vector(e.Vector)
		}
	}
	return FromMaps(vectors, freqs)
}

// SaveTable writes v in the single-table layout.
func (v *Vocabulary) SaveTable(w io.Writer) error {
	table := make(map[string]tableEntry, len(v.words))
	for word, e := range v.words {
		freq := e.freq
		te := tableEntry{Frequency: &freq}
		if vec, ok := v.Vector(word); ok {
			te.Vector = []float32(vec)
		}
		table[word] = te
	}
	if err := json.NewEncoder(w).Encode(table); err != nil {
		return errors.Wrap(err, errors.ErrCodeVocabularyIO, "encode vocabulary table")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Split layout: index JSON plus a vector block
// ---------------------------------------------------------------------------

type indexEntry struct {
	Index     int    `json:"index"`
	Frequency uint64 `json:"frequency"`
}

type indexDoc struct {
	Dim   *int                  `json:"dim"`
	Words map[string]indexEntry `json:"words"`
}

// LoadSplit parses an index document and opens its vector block.
func LoadSplit(index io.Reader, blockPath string, useMmap bool) (*Vocabulary, error) {
	var doc indexDoc
	if err := json.NewDecoder(index).Decode(&doc); err != nil {
		return nil, vocabFormatErr("malformed vocabulary index").WithCause(err)
	}
	if doc.Dim == nil {
		return nil, vocabFormatErr("missing required key").WithDetail("dim")
	}
	if doc.Words == nil {
		return nil, vocabFormatErr("missing required key").WithDetail("words")
	}

	store, err := OpenBlock(blockPath, useMmap)
	if err != nil {
		return nil, err
	}
	if store.Len() > 0 && store.Dim() != *doc.Dim {
		_ = store.Close()
		return nil, errors.FormatError(errors.ErrCodeDimensionMismatch, "index dimension differs from vector block")
	}

	words := make(map[string]entry, len(doc.Words))
	for w, e := range doc.Words {
		if e.Index < noVector || e.Index >= store.Len() {
			_ = store.Close()
			return nil, vocabFormatErr("vector index out of range").WithDetail(w)
		}
		words[w] = entry{index: e.Index, freq: e.Frequency}
	}
	return &Vocabulary{words: words, store: store}, nil
}

// WriteSplit writes v in the split layout: the index document to index and
// the vectors, densely renumbered in word order, to block.
func (v *Vocabulary) WriteSplit(index, block io.Writer) error {
	words := make([]string, 0, len(v.words))
	for w := range v.words {
		words = append(words, w)
	}
	sort.Strings(words)

	doc := indexDoc{Words: make(map[string]indexEntry, len(words))}
	dim := v.Dim()
	doc.Dim = &dim
	var vectors []common.Vector
	for _, w := range words {
		e := v.words[w]
		ie := indexEntry{Index: noVector, Frequency: e.freq}
		if vec, ok := v.Vector(w); ok {
			ie.Index = len(vectors)
			vectors = append(vectors, vec)
		}
		doc.Words[w] = ie
	}

	if err := WriteBlock(block, dim, vectors); err != nil {
		return err
	}
	if err := json.NewEncoder(index).Encode(&doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeVocabularyIO, "encode vocabulary index")
	}
	return nil
}

func sortedWords(m map[string]common.Vector) []string {
	out := make([]string, 0, len(m))
	for w := range m {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
