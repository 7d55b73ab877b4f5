package kcomp

func encodeStore(src []byte) []byte {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

func decodeStore(src []byte, originalLength int) ([]byte, error) {
	if len(src) != originalLength {
		return nil, corruptf("stored payload is %d bytes, expected %d", len(src), originalLength)
	}
	return encodeStore(src), nil
}
