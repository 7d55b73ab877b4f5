package kcomp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func codecInputs() map[string][]byte {
	distinct := make([]byte, 256)
	for i := range distinct {
		distinct[i] = byte(i)
	}
	return map[string][]byte{
		"SingleByte":     {0x7f},
		"AllZero":        make([]byte, 10000),
		"AllDistinct":    distinct,
		"Repetitive":     generateHighlyCompressibleData(50000),
		"SemiRepetitive": generateTestData(70000),
		"Random":         generateIncompressibleData(20000, 1),
		"Mixed":          generateMixedData(40000),
		"LongRuns":       bytes.Repeat(append(bytes.Repeat([]byte{'a'}, 300), 'b'), 40),
	}
}

func TestAllAlgorithms(t *testing.T) {
	for _, algo := range AllAlgorithms {
		for name, data := range codecInputs() {
			t.Run(algo.String()+"/"+name, func(t *testing.T) {
				payload, err := EncodeBlock(data, algo, 0)
				if errors.Is(err, ErrIncompressible) {
					return
				}
				require.NoError(t, err)

				decoded, err := DecodeBlock(payload, algo, len(data))
				require.NoError(t, err)
				require.Equal(t, data, decoded)
			})
		}
	}
}

func TestAlgorithmLevels(t *testing.T) {
	data := generateTestData(30000)
	for _, algo := range []Algorithm{AlgorithmLZ4, AlgorithmZstd, AlgorithmBrotli, AlgorithmGzip, AlgorithmS2} {
		for _, level := range []int{1, 2, 3, 9, 22} {
			payload, err := EncodeBlock(data, algo, level)
			require.NoError(t, err, "%v level %d", algo, level)
			decoded, err := DecodeBlock(payload, algo, len(data))
			require.NoError(t, err, "%v level %d", algo, level)
			require.Equal(t, data, decoded)
		}
	}
}

func TestEmptyBlock(t *testing.T) {
	for _, algo := range AllAlgorithms {
		payload, err := EncodeBlock(nil, algo, 0)
		require.NoError(t, err)
		require.Empty(t, payload)

		decoded, err := DecodeBlock(nil, algo, 0)
		require.NoError(t, err)
		require.Equal(t, []byte{}, decoded)

		_, err = DecodeBlock([]byte{1}, algo, 0)
		require.Error(t, err, algo.String())
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := EncodeBlock([]byte("abc"), Algorithm(99), 0)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = DecodeBlock([]byte("abc"), Algorithm(99), 3)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	data := generateHighlyCompressibleData(5000)
	for _, algo := range AllAlgorithms {
		t.Run(algo.String(), func(t *testing.T) {
			payload, err := EncodeBlock(data, algo, 0)
			if errors.Is(err, ErrIncompressible) {
				return
			}
			require.NoError(t, err)

			for _, n := range []int{len(data) - 1, len(data) + 1} {
				decoded, err := DecodeBlock(payload, algo, n)
				if algo == AlgorithmHuffman && err == nil {
					// Zero padding can spell out one more all-zero code.
					require.Len(t, decoded, n)
					continue
				}
				require.Error(t, err, "length %d", n)
			}
		})
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	data := generateTestData(5000)
	for _, algo := range AllAlgorithms {
		t.Run(algo.String(), func(t *testing.T) {
			payload, err := EncodeBlock(data, algo, 0)
			if errors.Is(err, ErrIncompressible) {
				return
			}
			require.NoError(t, err)

			for _, n := range []int{0, 1, len(payload) / 2, len(payload) - 1} {
				decoded, err := DecodeBlock(payload[:n], algo, len(data))
				if err == nil {
					// Only acceptable if the truncated stream still
					// reproduces the input exactly.
					require.Equal(t, data, decoded)
				}
			}
		})
	}
}

func TestRLE(t *testing.T) {
	t.Run("SplitsLongRuns", func(t *testing.T) {
		payload := encodeRLE(bytes.Repeat([]byte{9}, 600))
		require.Equal(t, []byte{9, 255, 9, 255, 9, 90}, payload)
	})

	t.Run("Alternating", func(t *testing.T) {
		require.Equal(t, []byte{'a', 1, 'b', 1, 'a', 2}, encodeRLE([]byte("abaa")))
	})

	for name, tc := range map[string]struct {
		payload []byte
		n       int
	}{
		"OddLength":  {[]byte{1, 2, 3}, 2},
		"ZeroRun":    {[]byte{1, 0, 1, 1}, 1},
		"Overrun":    {[]byte{1, 5}, 4},
		"Underrun":   {[]byte{1, 3}, 4},
		"OverrunMid": {[]byte{1, 3, 2, 3}, 4},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeRLE(tc.payload, tc.n)
			require.Error(t, err)
		})
	}
}

func TestStore(t *testing.T) {
	data := []byte("stored")
	payload := encodeStore(data)
	payload[0] = 'S'
	require.Equal(t, []byte("stored"), data)

	_, err := decodeStore(data, len(data)+1)
	require.Error(t, err)
}
