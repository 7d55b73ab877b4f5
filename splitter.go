package kcomp

import (
	"errors"
	"io"
	"iter"

	"github.com/buildbarn/go-cdc"
)

// Block is a contiguous slice of the input. Blocks of one input carry
// consecutive indices starting at zero and never overlap.
type Block struct {
	Index int
	Data  []byte
}

// Splitter partitions a stream into blocks in a single pass.
type Splitter struct {
	next  func() ([]byte, error)
	index int
	done  bool
}

// NewSplitter returns a splitter cutting r every blockSize bytes. Only the
// final block may be shorter.
func NewSplitter(r io.Reader, blockSize int) *Splitter {
	return &Splitter{
		next: func() ([]byte, error) {
			buf := make([]byte, blockSize)
			n, err := io.ReadFull(r, buf)
			switch {
			case err == nil:
				return buf, nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				return buf[:n], nil
			default:
				return nil, err
			}
		},
	}
}

// NewContentDefinedSplitter returns a splitter that places boundaries
// with the MaxCDC chunker. Blocks are between blockSize/4 and blockSize
// bytes, except that the final block may be shorter.
func NewContentDefinedSplitter(r io.Reader, blockSize int) *Splitter {
	minSize := max(blockSize/4, 1)
	chunker := cdc.NewMaxContentDefinedChunker(
		r,
		/* bufferSizeBytes = */ max(2*blockSize, minSize+blockSize),
		minSize,
		blockSize,
	)
	return &Splitter{
		next: func() ([]byte, error) {
			chunk, err := chunker.ReadNextChunk()
			if err != nil {
				return nil, err
			}
			// The chunk aliases the chunker's buffer.
			return append([]byte(nil), chunk...), nil
		},
	}
}

// Next returns the next block, or io.EOF once the input is exhausted.
func (s *Splitter) Next() (Block, error) {
	for !s.done {
		data, err := s.next()
		if err != nil {
			s.done = true
			return Block{}, err
		}
		if len(data) == 0 {
			continue
		}
		b := Block{Index: s.index, Data: data}
		s.index++
		return b, nil
	}
	return Block{}, io.EOF
}

// Blocks yields the fixed-size partition of data. The yielded slices alias
// data.
func Blocks(data []byte, blockSize int) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for i, off := 0, 0; off < len(data); i, off = i+1, off+blockSize {
			if !yield(i, data[off:min(off+blockSize, len(data))]) {
				return
			}
		}
	}
}

// BlockCount returns the number of fixed-size blocks covering n bytes.
func BlockCount(n int64, blockSize int) int64 {
	return (n + int64(blockSize) - 1) / int64(blockSize)
}
