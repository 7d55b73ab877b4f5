package kcomp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/icza/bitio"
)

// Huffman payload layout:
//
//	mode = 0x00 (table)
//	bitmap[32]        bit s set if byte value s occurs
//	lengths           4-bit code length per present value, ascending value
//	                  order, high nibble first, zero-padded
//	bitstream         canonical codes, most significant bit first,
//	                  zero-padded to a byte boundary
//
//	mode = 0x01 (single value)
//	value             the only byte value in the block
//	count             uvarint repeat count
const (
	huffmanModeTable  = 0x00
	huffmanModeSingle = 0x01

	huffmanMaxCodeLength = 15
	huffmanBitmapSize    = 256 / 8
)

var (
	errHuffmanOversubscribed = errors.New("code lengths are over-subscribed")
	errHuffmanIncomplete     = errors.New("code lengths are incomplete")
)

func encodeHuffman(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	var freq [256]int
	for _, b := range src {
		freq[b]++
	}
	distinct, only := 0, byte(0)
	for s, f := range freq {
		if f > 0 {
			distinct++
			only = byte(s)
		}
	}
	if distinct == 1 {
		dst := []byte{huffmanModeSingle, only}
		return binary.AppendUvarint(dst, uint64(len(src))), nil
	}

	lengths := huffmanCodeLengths(&freq, huffmanMaxCodeLength)
	codes, err := canonicalCodes(&lengths)
	if err != nil {
		return nil, fmt.Errorf("huffman table for %d symbols: %w", distinct, err)
	}

	var buf bytes.Buffer
	buf.Grow(1 + huffmanBitmapSize + (distinct+1)/2 + len(src))
	buf.WriteByte(huffmanModeTable)
	var bitmap [huffmanBitmapSize]byte
	for s, l := range lengths {
		if l > 0 {
			bitmap[s>>3] |= 1 << (s & 7)
		}
	}
	buf.Write(bitmap[:])
	var pending byte
	half := false
	for _, l := range lengths {
		if l == 0 {
			continue
		}
		if half {
			buf.WriteByte(pending | l)
		} else {
			pending = l << 4
		}
		half = !half
	}
	if half {
		buf.WriteByte(pending)
	}

	w := bitio.NewWriter(&buf)
	for _, b := range src {
		if err := w.WriteBits(uint64(codes[b]), lengths[b]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeHuffman(src []byte, originalLength int) ([]byte, error) {
	if originalLength == 0 {
		if len(src) != 0 {
			return nil, corruptf("huffman payload for an empty block is %d bytes", len(src))
		}
		return []byte{}, nil
	}
	if len(src) == 0 {
		return nil, corruptf("empty huffman payload")
	}

	switch src[0] {
	case huffmanModeSingle:
		if len(src) < 3 {
			return nil, corruptf("short single-value huffman payload")
		}
		count, n := binary.Uvarint(src[2:])
		if n <= 0 || 2+n != len(src) {
			return nil, corruptf("malformed huffman repeat count")
		}
		if count != uint64(originalLength) {
			return nil, corruptf("huffman repeat count %d, expected %d", count, originalLength)
		}
		return bytes.Repeat(src[1:2], originalLength), nil
	case huffmanModeTable:
	default:
		return nil, corruptf("unknown huffman mode 0x%02x", src[0])
	}

	rest := src[1:]
	if len(rest) < huffmanBitmapSize {
		return nil, corruptf("truncated huffman symbol bitmap")
	}
	bitmap := rest[:huffmanBitmapSize]
	rest = rest[huffmanBitmapSize:]
	symbols := make([]int, 0, 256)
	for s := 0; s < 256; s++ {
		if bitmap[s>>3]&(1<<(s&7)) != 0 {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) < 2 {
		return nil, corruptf("huffman table lists %d symbols", len(symbols))
	}
	tableSize := (len(symbols) + 1) / 2
	if len(rest) < tableSize {
		return nil, corruptf("truncated huffman code lengths")
	}
	var lengths [256]uint8
	for i, s := range symbols {
		l := rest[i/2] >> 4
		if i%2 == 1 {
			l = rest[i/2] & 0x0f
		}
		if l == 0 {
			return nil, corruptf("zero code length for present symbol %d", s)
		}
		lengths[s] = l
	}
	if len(symbols)%2 == 1 && rest[tableSize-1]&0x0f != 0 {
		return nil, corruptf("non-zero padding in huffman code lengths")
	}
	rest = rest[tableSize:]

	dec, err := newHuffmanDecoder(&lengths)
	if err != nil {
		return nil, corruptf("cannot rebuild huffman table: %v", err)
	}

	dst := make([]byte, originalLength)
	r := bitio.NewReader(bytes.NewReader(rest))
	consumed := 0
	for i := range dst {
		code, first, index := 0, 0, 0
		for length := 1; ; length++ {
			if length > huffmanMaxCodeLength {
				return nil, corruptf("invalid huffman code at symbol %d", i)
			}
			bit, err := r.ReadBool()
			if err != nil {
				return nil, corruptf("huffman bitstream ends after %d of %d symbols", i, originalLength)
			}
			consumed++
			if bit {
				code |= 1
			}
			count := dec.count[length]
			if code-count < first {
				dst[i] = dec.symbols[index+code-first]
				break
			}
			index += count
			first = (first + count) << 1
			code <<= 1
		}
	}

	padding := len(rest)*8 - consumed
	if padding >= 8 {
		return nil, corruptf("%d trailing bytes after huffman bitstream", padding/8)
	}
	if padding > 0 {
		bits, err := r.ReadBits(uint8(padding))
		if err != nil || bits != 0 {
			return nil, corruptf("non-zero padding after huffman bitstream")
		}
	}
	return dst, nil
}

// huffmanCodeLengths returns a code length for every byte value with a
// non-zero frequency, no longer than limit. Weights are halved until the
// tree fits.
func huffmanCodeLengths(freq *[256]int, limit int) [256]uint8 {
	weights := *freq
	for {
		lengths := huffmanTreeDepths(&weights)
		longest := uint8(0)
		for _, l := range lengths {
			longest = max(longest, l)
		}
		if int(longest) <= limit {
			equalizeTies(freq, &lengths)
			return lengths
		}
		for s, w := range weights {
			if w > 0 {
				weights[s] = w>>1 | 1
			}
		}
	}
}

// huffmanTreeDepths builds a Huffman tree with the two-queue method and
// returns the depth of every leaf. Leaves are ordered by weight, then by
// descending byte value, so higher values are merged first on ties.
func huffmanTreeDepths(weights *[256]int) [256]uint8 {
	type node struct {
		weight      int
		left, right int
		symbol      int
	}
	var depths [256]uint8
	nodes := make([]node, 0, 2*256)
	for s, w := range weights {
		if w > 0 {
			nodes = append(nodes, node{weight: w, left: -1, right: -1, symbol: s})
		}
	}
	leaves := len(nodes)
	switch leaves {
	case 0:
		return depths
	case 1:
		depths[nodes[0].symbol] = 1
		return depths
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].weight != nodes[j].weight {
			return nodes[i].weight < nodes[j].weight
		}
		return nodes[i].symbol > nodes[j].symbol
	})

	nextLeaf, nextInternal := 0, leaves
	pick := func() int {
		if nextLeaf < leaves && (nextInternal >= len(nodes) || nodes[nextLeaf].weight <= nodes[nextInternal].weight) {
			nextLeaf++
			return nextLeaf - 1
		}
		nextInternal++
		return nextInternal - 1
	}
	for merges := 1; merges < leaves; merges++ {
		a := pick()
		b := pick()
		nodes = append(nodes, node{weight: nodes[a].weight + nodes[b].weight, left: a, right: b})
	}

	// Children always precede their parent, so one backwards pass
	// assigns every depth.
	nodeDepth := make([]uint8, len(nodes))
	for i := len(nodes) - 1; i >= leaves; i-- {
		nodeDepth[nodes[i].left] = nodeDepth[i] + 1
		nodeDepth[nodes[i].right] = nodeDepth[i] + 1
	}
	for i := 0; i < leaves; i++ {
		depths[nodes[i].symbol] = nodeDepth[i]
	}
	return depths
}

// equalizeTies reassigns lengths among symbols of equal frequency so that
// lower byte values never get longer codes. The multiset of lengths per
// frequency is unchanged, so the code stays complete and optimal.
func equalizeTies(freq *[256]int, lengths *[256]uint8) {
	groups := make(map[int][]int)
	for s, f := range freq {
		if f > 0 {
			groups[f] = append(groups[f], s)
		}
	}
	for _, symbols := range groups {
		if len(symbols) < 2 {
			continue
		}
		ls := make([]int, len(symbols))
		for i, s := range symbols {
			ls[i] = int(lengths[s])
		}
		sort.Ints(ls)
		for i, s := range symbols {
			lengths[s] = uint8(ls[i])
		}
	}
}

// countLengths tallies code lengths and checks the Kraft equality.
func countLengths(lengths *[256]uint8) ([huffmanMaxCodeLength + 1]int, error) {
	var count [huffmanMaxCodeLength + 1]int
	for _, l := range lengths {
		if l > huffmanMaxCodeLength {
			return count, fmt.Errorf("code length %d exceeds %d", l, huffmanMaxCodeLength)
		}
		if l > 0 {
			count[l]++
		}
	}
	left := 1
	for l := 1; l <= huffmanMaxCodeLength; l++ {
		left <<= 1
		left -= count[l]
		if left < 0 {
			return count, errHuffmanOversubscribed
		}
	}
	if left != 0 {
		return count, errHuffmanIncomplete
	}
	return count, nil
}

// canonicalCodes assigns consecutive codes to symbols ordered by
// (length, value).
func canonicalCodes(lengths *[256]uint8) ([256]uint32, error) {
	var codes [256]uint32
	count, err := countLengths(lengths)
	if err != nil {
		return codes, err
	}
	var next [huffmanMaxCodeLength + 1]uint32
	code := uint32(0)
	for l := 1; l <= huffmanMaxCodeLength; l++ {
		code = (code + uint32(count[l-1])) << 1
		next[l] = code
	}
	for s, l := range lengths {
		if l > 0 {
			codes[s] = next[l]
			next[l]++
		}
	}
	return codes, nil
}

type huffmanDecoder struct {
	count   [huffmanMaxCodeLength + 1]int
	symbols []byte // ordered by (length, value)
}

func newHuffmanDecoder(lengths *[256]uint8) (*huffmanDecoder, error) {
	count, err := countLengths(lengths)
	if err != nil {
		return nil, err
	}
	d := &huffmanDecoder{count: count, symbols: make([]byte, 0, 256)}
	for l := uint8(1); l <= huffmanMaxCodeLength; l++ {
		for s, sl := range lengths {
			if sl == l {
				d.symbols = append(d.symbols, byte(s))
			}
		}
	}
	return d, nil
}
