package kcomp

// maxRun is the longest run a single RLE pair can describe.
const maxRun = 255

// encodeRLE emits (value, run) pairs. Runs longer than maxRun are split.
func encodeRLE(src []byte) []byte {
	dst := make([]byte, 0, len(src)/2+2)
	for i := 0; i < len(src); {
		v := src[i]
		j := i + 1
		for j < len(src) && src[j] == v && j-i < maxRun {
			j++
		}
		dst = append(dst, v, byte(j-i))
		i = j
	}
	return dst
}

func decodeRLE(src []byte, originalLength int) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, corruptf("rle payload has odd length %d", len(src))
	}
	dst := make([]byte, 0, originalLength)
	for i := 0; i < len(src); i += 2 {
		v, run := src[i], int(src[i+1])
		if run == 0 {
			return nil, corruptf("zero-length run at offset %d", i)
		}
		if len(dst)+run > originalLength {
			return nil, corruptf("runs expand beyond %d bytes", originalLength)
		}
		for k := 0; k < run; k++ {
			dst = append(dst, v)
		}
	}
	if len(dst) != originalLength {
		return nil, corruptf("runs expand to %d bytes, expected %d", len(dst), originalLength)
	}
	return dst, nil
}
