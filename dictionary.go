package kcomp

import (
	"encoding/binary"
)

// Dictionary payloads are a sequence of LZ77 sequences:
//
//	token      literal count (high nibble), match length - 3 (low nibble)
//	[ext]      literal count extension if the high nibble is 15
//	literals
//	[ext]      match length extension if the low nibble is 15
//	distance   uint16 little-endian, 1..window
//
// Extensions are runs of 255 bytes terminated by a byte below 255. The last
// sequence may stop after its literals, in which case its match nibble is 0.
const (
	dictWindowSize = 32 * 1024
	dictMinMatch   = 3
	dictMaxMatch   = 64 * 1024
	dictHashBits   = 15
	dictChainDepth = 32
)

func dictHash(b []byte) uint32 {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return (v * 2654435761) >> (32 - dictHashBits)
}

func encodeDictionary(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, 0, len(src)/2+16)
	head := make([]int32, 1<<dictHashBits)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, len(src))
	insert := func(i int) {
		h := dictHash(src[i:])
		prev[i] = head[h]
		head[h] = int32(i)
	}

	anchor, i := 0, 0
	for i+dictMinMatch <= len(src) {
		limit := min(dictMaxMatch, len(src)-i)
		bestLen, bestDist := 0, 0
		candidate := head[dictHash(src[i:])]
		for depth := 0; candidate >= 0 && depth < dictChainDepth; depth++ {
			dist := i - int(candidate)
			if dist > dictWindowSize {
				break
			}
			l := 0
			for l < limit && src[int(candidate)+l] == src[i+l] {
				l++
			}
			if l > bestLen {
				bestLen, bestDist = l, dist
				if l == limit {
					break
				}
			}
			candidate = prev[candidate]
		}

		if bestLen < dictMinMatch {
			insert(i)
			i++
			continue
		}
		dst = appendSequence(dst, src[anchor:i], bestLen, bestDist)
		for end := i + bestLen; i < end; i++ {
			if i+dictMinMatch <= len(src) {
				insert(i)
			}
		}
		anchor = i
	}
	if anchor < len(src) {
		dst = appendSequence(dst, src[anchor:], 0, 0)
	}
	return dst
}

// appendSequence appends one sequence. A zero matchLength writes the
// literal-only tail sequence.
func appendSequence(dst, literals []byte, matchLength, distance int) []byte {
	litNibble := min(len(literals), 15)
	matchNibble := 0
	if matchLength > 0 {
		matchNibble = min(matchLength-dictMinMatch, 15)
	}
	dst = append(dst, byte(litNibble<<4|matchNibble))
	if litNibble == 15 {
		dst = appendExtension(dst, len(literals)-15)
	}
	dst = append(dst, literals...)
	if matchLength == 0 {
		return dst
	}
	if matchNibble == 15 {
		dst = appendExtension(dst, matchLength-dictMinMatch-15)
	}
	return binary.LittleEndian.AppendUint16(dst, uint16(distance))
}

func appendExtension(dst []byte, n int) []byte {
	for n >= 255 {
		dst = append(dst, 255)
		n -= 255
	}
	return append(dst, byte(n))
}

// readExtension returns the extension value at src[pos:] and the position
// after it. Values above bound are rejected before they can overflow.
func readExtension(src []byte, pos, bound int) (int, int, error) {
	n := 0
	for {
		if pos >= len(src) {
			return 0, 0, corruptf("truncated length extension")
		}
		b := src[pos]
		pos++
		n += int(b)
		if n > bound {
			return 0, 0, corruptf("length extension exceeds block")
		}
		if b != 255 {
			return n, pos, nil
		}
	}
}

func decodeDictionary(src []byte, originalLength int) ([]byte, error) {
	dst := make([]byte, 0, originalLength)
	pos := 0
	for pos < len(src) {
		token := src[pos]
		pos++

		litLen := int(token >> 4)
		if litLen == 15 {
			ext, next, err := readExtension(src, pos, originalLength)
			if err != nil {
				return nil, err
			}
			litLen += ext
			pos = next
		}
		if litLen > len(src)-pos {
			return nil, corruptf("truncated literals at offset %d", pos)
		}
		if litLen > originalLength-len(dst) {
			return nil, corruptf("literals overrun block by %d bytes", litLen-(originalLength-len(dst)))
		}
		dst = append(dst, src[pos:pos+litLen]...)
		pos += litLen
		if pos == len(src) {
			if token&0x0f != 0 {
				return nil, corruptf("stream ends inside a match")
			}
			break
		}

		matchLen := int(token&0x0f) + dictMinMatch
		if token&0x0f == 15 {
			ext, next, err := readExtension(src, pos, originalLength)
			if err != nil {
				return nil, err
			}
			matchLen += ext
			pos = next
		}
		if len(src)-pos < 2 {
			return nil, corruptf("truncated match distance at offset %d", pos)
		}
		dist := int(binary.LittleEndian.Uint16(src[pos:]))
		pos += 2
		if dist == 0 || dist > len(dst) {
			return nil, corruptf("match distance %d with %d bytes of history", dist, len(dst))
		}
		if matchLen > originalLength-len(dst) {
			return nil, corruptf("match overruns block")
		}
		// Matches may overlap their own output.
		start := len(dst) - dist
		for k := 0; k < matchLen; k++ {
			dst = append(dst, dst[start+k])
		}
	}
	if len(dst) != originalLength {
		return nil, corruptf("decoded %d bytes, expected %d", len(dst), originalLength)
	}
	return dst, nil
}
