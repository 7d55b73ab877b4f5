package kcomp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Container layout, all integers little-endian:
//
//	magic        [4]byte "KCMP"
//	version      uint16
//	block_size   uint32
//	block_count  uint32
//	total_length uint64
//
// followed by block_count records of
//
//	index        uint32
//	tag          uint8
//	orig_len     uint32
//	comp_len     uint32
//	checksum     uint32  CRC-32C of the original bytes
//	payload      [comp_len]byte
const (
	Version             = 1
	ContainerHeaderSize = 22
	BlockHeaderSize     = 17
)

// Magic identifies a container.
var Magic = [4]byte{'K', 'C', 'M', 'P'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the block checksum stored in containers.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Header is the fixed container preamble.
type Header struct {
	Version     uint16
	BlockSize   uint32
	BlockCount  uint32
	TotalLength uint64
}

// EncodedBlock is one block record of a container.
type EncodedBlock struct {
	Index          uint32
	Algorithm      Algorithm
	OriginalLength uint32
	Checksum       uint32
	Payload        []byte
}

func appendHeader(dst []byte, h Header) []byte {
	dst = append(dst, Magic[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, h.Version)
	dst = binary.LittleEndian.AppendUint32(dst, h.BlockSize)
	dst = binary.LittleEndian.AppendUint32(dst, h.BlockCount)
	return binary.LittleEndian.AppendUint64(dst, h.TotalLength)
}

func appendBlockHeader(dst []byte, b *EncodedBlock) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, b.Index)
	dst = append(dst, byte(b.Algorithm))
	dst = binary.LittleEndian.AppendUint32(dst, b.OriginalLength)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b.Payload)))
	return binary.LittleEndian.AppendUint32(dst, b.Checksum)
}

// writeBlock writes the record header and payload of b.
func writeBlock(w io.Writer, b *EncodedBlock) (int64, error) {
	var hdr [BlockHeaderSize]byte
	if _, err := w.Write(appendBlockHeader(hdr[:0], b)); err != nil {
		return 0, err
	}
	if _, err := w.Write(b.Payload); err != nil {
		return BlockHeaderSize, err
	}
	return BlockHeaderSize + int64(len(b.Payload)), nil
}

func readHeader(r io.Reader) (Header, error) {
	var buf [ContainerHeaderSize]byte
	n, err := io.ReadFull(r, buf[:])
	if m := min(n, len(Magic)); !bytes.Equal(buf[:m], Magic[:m]) {
		return Header{}, &FormatError{Offset: 0, Reason: fmt.Sprintf("bad magic %q", buf[:m])}
	}
	if err != nil {
		if n == 0 && err == io.EOF {
			return Header{}, &FormatError{Offset: 0, Reason: "empty input"}
		}
		return Header{}, truncated(err, int64(n), "container header")
	}
	h := Header{
		Version:     binary.LittleEndian.Uint16(buf[4:]),
		BlockSize:   binary.LittleEndian.Uint32(buf[6:]),
		BlockCount:  binary.LittleEndian.Uint32(buf[10:]),
		TotalLength: binary.LittleEndian.Uint64(buf[14:]),
	}
	if h.Version != Version {
		return Header{}, &FormatError{Offset: 4, Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}
	if h.BlockSize == 0 || h.BlockSize > MaxBlockSize {
		return Header{}, &FormatError{Offset: 6, Reason: fmt.Sprintf("block size %d out of range", h.BlockSize)}
	}
	count, total := uint64(h.BlockCount), h.TotalLength
	switch {
	case (count == 0) != (total == 0):
		return Header{}, &FormatError{Offset: 10, Reason: fmt.Sprintf("%d blocks for %d bytes", count, total)}
	case count > total:
		return Header{}, &FormatError{Offset: 10, Reason: fmt.Sprintf("%d blocks cannot hold only %d bytes", count, total)}
	case count < (total+uint64(h.BlockSize)-1)/uint64(h.BlockSize):
		return Header{}, &FormatError{Offset: 10, Reason: fmt.Sprintf("%d blocks of at most %d bytes cannot hold %d bytes", count, h.BlockSize, total)}
	}
	return h, nil
}

// containerReader walks the block records of a container, validating
// every field before trusting it.
type containerReader struct {
	r        io.Reader
	header   Header
	offset   int64
	next     uint32
	produced uint64

	// skipPayloads discards payload bytes instead of returning them.
	skipPayloads bool
}

func newContainerReader(r io.Reader) (*containerReader, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	return &containerReader{r: r, header: h, offset: ContainerHeaderSize}, nil
}

// Next returns the next block record, or io.EOF after the last one once
// the totals and the end of input have been verified.
func (cr *containerReader) Next() (EncodedBlock, error) {
	if cr.next == cr.header.BlockCount {
		return EncodedBlock{}, cr.finish()
	}

	start := cr.offset
	var buf [BlockHeaderSize]byte
	if _, err := io.ReadFull(cr.r, buf[:]); err != nil {
		return EncodedBlock{}, truncated(err, start, fmt.Sprintf("header of block %d", cr.next))
	}
	cr.offset += BlockHeaderSize

	b := EncodedBlock{
		Index:          binary.LittleEndian.Uint32(buf[0:]),
		Algorithm:      Algorithm(buf[4]),
		OriginalLength: binary.LittleEndian.Uint32(buf[5:]),
		Checksum:       binary.LittleEndian.Uint32(buf[13:]),
	}
	compLen := binary.LittleEndian.Uint32(buf[9:])
	fail := func(reason string, args ...any) (EncodedBlock, error) {
		return EncodedBlock{}, &FormatError{Offset: start, Reason: fmt.Sprintf("block %d: ", cr.next) + fmt.Sprintf(reason, args...)}
	}
	switch {
	case b.Index != cr.next:
		return fail("index %d out of order", b.Index)
	case !b.Algorithm.Valid():
		return fail("unknown algorithm tag %d", uint8(b.Algorithm))
	case b.OriginalLength == 0 || b.OriginalLength > cr.header.BlockSize:
		return fail("original length %d outside [1, %d]", b.OriginalLength, cr.header.BlockSize)
	case compLen > b.OriginalLength:
		return fail("compressed length %d exceeds original length %d", compLen, b.OriginalLength)
	case b.Algorithm == AlgorithmStore && compLen != b.OriginalLength:
		return fail("stored block with compressed length %d != %d", compLen, b.OriginalLength)
	case cr.produced+uint64(b.OriginalLength) > cr.header.TotalLength:
		return fail("blocks exceed declared total of %d bytes", cr.header.TotalLength)
	}

	// Payloads are copied incrementally so a lying length only costs as
	// much memory as the bytes actually present.
	var err error
	if cr.skipPayloads {
		_, err = io.CopyN(io.Discard, cr.r, int64(compLen))
	} else {
		var payload bytes.Buffer
		_, err = io.CopyN(&payload, cr.r, int64(compLen))
		b.Payload = payload.Bytes()
		if b.Payload == nil {
			b.Payload = []byte{}
		}
	}
	if err != nil {
		return EncodedBlock{}, truncated(err, cr.offset, fmt.Sprintf("payload of block %d", cr.next))
	}
	cr.offset += int64(compLen)
	cr.next++
	cr.produced += uint64(b.OriginalLength)
	return b, nil
}

func (cr *containerReader) finish() error {
	if cr.produced != cr.header.TotalLength {
		return &FormatError{Offset: cr.offset, Reason: fmt.Sprintf("blocks hold %d bytes, header declares %d", cr.produced, cr.header.TotalLength)}
	}
	var probe [1]byte
	n, err := io.ReadFull(cr.r, probe[:])
	if n > 0 {
		return &FormatError{Offset: cr.offset, Reason: "trailing bytes after last block"}
	}
	if err != io.EOF {
		return err
	}
	return io.EOF
}

// BlockInfo describes one block record without its payload.
type BlockInfo struct {
	Index            int
	Algorithm        Algorithm
	OriginalLength   int
	CompressedLength int
	Checksum         uint32
	Offset           int64 // offset of the record header
}

// ContainerInfo is the result of Inspect.
type ContainerInfo struct {
	Header
	Blocks []BlockInfo
	Size   int64 // container size in bytes
}

// CompressionRatio returns container size over original size.
func (ci *ContainerInfo) CompressionRatio() float64 {
	return GetCompressionRatio(int64(ci.TotalLength), ci.Size)
}

// AlgorithmCounts returns how many blocks use each algorithm.
func (ci *ContainerInfo) AlgorithmCounts() map[Algorithm]int {
	counts := make(map[Algorithm]int)
	for _, b := range ci.Blocks {
		counts[b.Algorithm]++
	}
	return counts
}

// Inspect validates the structure of a container and reports its metadata.
// Payloads are skipped, so checksums are not verified.
func Inspect(r io.Reader) (*ContainerInfo, error) {
	cr, err := newContainerReader(r)
	if err != nil {
		return nil, err
	}
	cr.skipPayloads = true
	info := &ContainerInfo{Header: cr.header, Blocks: make([]BlockInfo, 0, min(cr.header.BlockCount, 1<<16))}
	for {
		offset := cr.offset
		b, err := cr.Next()
		if err == io.EOF {
			info.Size = cr.offset
			return info, nil
		}
		if err != nil {
			return nil, err
		}
		info.Blocks = append(info.Blocks, BlockInfo{
			Index:            int(b.Index),
			Algorithm:        b.Algorithm,
			OriginalLength:   int(b.OriginalLength),
			CompressedLength: int(cr.offset - offset - BlockHeaderSize),
			Checksum:         b.Checksum,
			Offset:           offset,
		})
	}
}
