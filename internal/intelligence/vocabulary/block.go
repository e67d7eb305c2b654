package vocabulary

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// Block file layout, little-endian:
//
//	magic   [4]byte "CLVB"
//	version uint32
//	dim     uint32
//	_       uint32
//	count   uint64
//	data    count·dim float32
const (
	blockMagic   = "CLVB"
	blockVersion = 1
)

type blockHeader struct {
	Magic    [4]byte
	Version  uint32
	Dim      uint32
	Reserved uint32
	Count    uint64
}

var headerSize = binary.Size(blockHeader{})

// blockStore serves vectors from a raw block, either mapped or read into
// the heap.
type blockStore struct {
	data  []byte
	mm    mmap.MMap
	dim   int
	count int
}

// OpenBlock opens the vector block at path.  With useMmap the file is mapped
// read-only once; otherwise it is read fully into memory.
func OpenBlock(path string, useMmap bool) (VectorStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "open vector block").WithDetail(path)
	}
	defer f.Close()

	bs := &blockStore{}
	if useMmap {
		mm, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "mmap vector block").WithDetail(path)
		}
		bs.mm = mm
		bs.data = mm
	} else {
		data, err := io.ReadAll(bufio.NewReader(f))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "read vector block").WithDetail(path)
		}
		bs.data = data
	}

	if err := bs.parseHeader(); err != nil {
		_ = bs.Close()
		return nil, err
	}
	return bs, nil
}

func (b *blockStore) parseHeader() error {
	if len(b.data) < headerSize {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "vector block shorter than header")
	}
	var h blockHeader
	if err := binary.Read(bytes.NewReader(b.data[:headerSize]), binary.LittleEndian, &h); err != nil {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "unreadable vector block header").WithCause(err)
	}
	if string(h.Magic[:]) != blockMagic {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "bad vector block magic").WithDetail(string(h.Magic[:]))
	}
	if h.Version != blockVersion {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "unsupported vector block version").
			WithDetail(fmt.Sprintf("%d", h.Version))
	}
	if h.Dim == 0 && h.Count > 0 {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "vector block has vectors but no dimension")
	}
	// The size check below must not wrap.
	if h.Dim != 0 && h.Count > (uint64(math.MaxInt)-uint64(headerSize))/(4*uint64(h.Dim)) {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "vector block header count out of range").
			WithDetail(fmt.Sprintf("count %d, dim %d", h.Count, h.Dim))
	}
	want := uint64(headerSize) + h.Count*uint64(h.Dim)*4
	if uint64(len(b.data)) != want {
		return errors.FormatError(errors.ErrCodeVectorBlockFormat, "vector block size does not match header").
			WithDetail(fmt.Sprintf("want %d bytes, got %d", want, len(b.data)))
	}
	b.dim = int(h.Dim)
	b.count = int(h.Count)
	return nil
}

func (b *blockStore) Vector(index int) (common.Vector, bool) {
	if index < 0 || index >= b.count || b.dim == 0 {
		return nil, false
	}
	off := headerSize + index*b.dim*4
	out := make(common.Vector, b.dim)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b.data[off+i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, true
}

func (b *blockStore) Dim() int { return b.dim }
func (b *blockStore) Len() int { return b.count }

func (b *blockStore) Close() error {
	b.data = nil
	if b.mm != nil {
		mm := b.mm
		b.mm = nil
		if err := mm.Unmap(); err != nil {
			return errors.Wrap(err, errors.ErrCodeVocabularyIO, "unmap vector block")
		}
	}
	return nil
}

// WriteBlock writes vectors in block layout.  Every vector must have length
// dim.
func WriteBlock(w io.Writer, dim int, vectors []common.Vector) error {
	h := blockHeader{Version: blockVersion, Dim: uint32(dim), Count: uint64(len(vectors))}
	copy(h.Magic[:], blockMagic)

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(err, errors.ErrCodeVocabularyIO, "write vector block header")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return errors.FormatError(errors.ErrCodeDimensionMismatch, "vector length differs from block dimension").
				WithDetail(fmt.Sprintf("index %d: want %d, got %d", i, dim, len(v)))
		}
		if err := binary.Write(bw, binary.LittleEndian, []float32(v)); err != nil {
			return errors.Wrap(err, errors.ErrCodeVocabularyIO, "write vector block data")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrCodeVocabularyIO, "flush vector block")
	}
	return nil
}
