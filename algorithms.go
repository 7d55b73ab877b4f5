package kcomp

import "fmt"

// EncodeBlock encodes data with algo. Level applies to the library-backed
// codecs; 0 selects their default. An empty block always encodes to an
// empty payload.
//
// ErrIncompressible means the codec declined the input; callers store the
// block instead.
func EncodeBlock(data []byte, algo Algorithm, level int) ([]byte, error) {
	if len(data) == 0 && algo.Valid() {
		return []byte{}, nil
	}
	switch algo {
	case AlgorithmStore:
		return encodeStore(data), nil
	case AlgorithmRLE:
		return encodeRLE(data), nil
	case AlgorithmHuffman:
		return encodeHuffman(data)
	case AlgorithmDictionary:
		return encodeDictionary(data), nil
	case AlgorithmLZ4:
		return encodeLZ4(data, level)
	case AlgorithmZstd:
		return encodeZstd(data, level)
	case AlgorithmSnappy:
		return encodeSnappy(data), nil
	case AlgorithmBrotli:
		return encodeBrotli(data, level)
	case AlgorithmLZMA:
		return encodeLZMA(data)
	case AlgorithmGzip:
		return encodeGzip(data, level)
	case AlgorithmS2:
		return encodeS2(data, level), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, algo)
	}
}

// DecodeBlock reverses EncodeBlock. The result is exactly originalLength
// bytes; anything else is reported as corruption.
func DecodeBlock(payload []byte, algo Algorithm, originalLength int) ([]byte, error) {
	if !algo.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, algo)
	}
	if originalLength == 0 {
		if len(payload) != 0 {
			return nil, corruptf("%d byte payload for an empty block", len(payload))
		}
		return []byte{}, nil
	}
	switch algo {
	case AlgorithmStore:
		return decodeStore(payload, originalLength)
	case AlgorithmRLE:
		return decodeRLE(payload, originalLength)
	case AlgorithmHuffman:
		return decodeHuffman(payload, originalLength)
	case AlgorithmDictionary:
		return decodeDictionary(payload, originalLength)
	case AlgorithmLZ4:
		return decodeLZ4(payload, originalLength)
	case AlgorithmZstd:
		return decodeZstd(payload, originalLength)
	case AlgorithmSnappy:
		return decodeSnappy(payload, originalLength)
	case AlgorithmBrotli:
		return decodeBrotli(payload, originalLength)
	case AlgorithmLZMA:
		return decodeLZMA(payload, originalLength)
	case AlgorithmGzip:
		return decodeGzip(payload, originalLength)
	default:
		return decodeS2(payload, originalLength)
	}
}
