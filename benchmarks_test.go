package kcomp

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/seehuhn/mt19937"
)

// Benchmark data generators
func generateTestData(size int) []byte {
	// Generate semi-compressible data (mix of patterns and random)
	data := make([]byte, size)
	for i := range data {
		if i%4 == 0 {
			data[i] = byte(i % 256)
		} else {
			data[i] = byte(i % 64) // More repetitive for better compression
		}
	}
	return data
}

func generateHighlyCompressibleData(size int) []byte {
	data := make([]byte, size)
	pattern := []byte("The quick brown fox jumps over the lazy dog. ")
	for i := range data {
		data[i] = pattern[i%len(pattern)]
	}
	return data
}

// generateIncompressibleData returns the first size bytes of a Mersenne
// Twister seeded with seed.
func generateIncompressibleData(size int, seed int64) []byte {
	twister := mt19937.New()
	twister.Seed(seed)
	data := make([]byte, size)
	if _, err := io.ReadFull(twister, data); err != nil {
		panic(err)
	}
	return data
}

// generateMixedData alternates runs, text and random stretches so that
// every adaptive branch is taken.
func generateMixedData(size int) []byte {
	data := make([]byte, 0, size)
	random := generateIncompressibleData(size, 7)
	text := generateHighlyCompressibleData(size)
	for len(data) < size {
		n := min(4096, size-len(data))
		switch (len(data) / 4096) % 4 {
		case 0:
			data = append(data, bytes.Repeat([]byte{byte(len(data) >> 12)}, n)...)
		case 1:
			data = append(data, text[:n]...)
		case 2:
			data = append(data, random[len(data):len(data)+n]...)
		default:
			data = append(data, generateTestData(n)...)
		}
	}
	return data
}

func benchmarkCompress(b *testing.B, config *Config, data []byte) {
	e, err := New(config)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.SetBytes(int64(len(data)))

	for i := 0; i < b.N; i++ {
		if err := e.Compress(context.Background(), io.Discard, bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkDecompress(b *testing.B, config *Config, data []byte) {
	container, err := CompressBytes(data, config)
	if err != nil {
		b.Fatal(err)
	}
	e, err := New(config)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.SetBytes(int64(len(data)))

	for i := 0; i < b.N; i++ {
		if err := e.Decompress(context.Background(), io.Discard, bytes.NewReader(container)); err != nil {
			b.Fatal(err)
		}
	}
}

func fixedConfig(algo Algorithm) *Config {
	c := DefaultConfig()
	c.Strategy = StrategyFixed
	c.Algorithm = algo
	return c
}

func BenchmarkAdaptiveCompressMixed1MB(b *testing.B) {
	benchmarkCompress(b, DefaultConfig(), generateMixedData(1<<20))
}

func BenchmarkAdaptiveCompressRandom1MB(b *testing.B) {
	benchmarkCompress(b, DefaultConfig(), generateIncompressibleData(1<<20, 0))
}

func BenchmarkAdaptiveDecompressMixed1MB(b *testing.B) {
	benchmarkDecompress(b, DefaultConfig(), generateMixedData(1<<20))
}

func BenchmarkExhaustiveCompressMixed1MB(b *testing.B) {
	benchmarkCompress(b, CompatibleConfig(), generateMixedData(1<<20))
}

func BenchmarkContentDefinedCompressMixed1MB(b *testing.B) {
	c := DefaultConfig()
	c.Splitting = SplitContentDefined
	benchmarkCompress(b, c, generateMixedData(1<<20))
}

func BenchmarkRLECompress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmRLE), bytes.Repeat([]byte{0x41}, 1<<20))
}

func BenchmarkHuffmanCompress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmHuffman), generateTestData(1<<20))
}

func BenchmarkHuffmanDecompress1MB(b *testing.B) {
	benchmarkDecompress(b, fixedConfig(AlgorithmHuffman), generateTestData(1<<20))
}

func BenchmarkDictionaryCompress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmDictionary), generateHighlyCompressibleData(1<<20))
}

func BenchmarkDictionaryDecompress1MB(b *testing.B) {
	benchmarkDecompress(b, fixedConfig(AlgorithmDictionary), generateHighlyCompressibleData(1<<20))
}

func BenchmarkLZ4Compress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmLZ4), generateTestData(1<<20))
}

func BenchmarkZstdCompress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmZstd), generateTestData(1<<20))
}

func BenchmarkSnappyCompress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmSnappy), generateTestData(1<<20))
}

func BenchmarkS2Compress1MB(b *testing.B) {
	benchmarkCompress(b, fixedConfig(AlgorithmS2), generateTestData(1<<20))
}

func BenchmarkAnalyze64KB(b *testing.B) {
	data := generateMixedData(64 * 1024)
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		Analyze(data, DefaultThresholds().MinRunLength)
	}
}
