package kcomp

import (
	"bytes"
	"context"
)

// Preset configurations for common use cases

// FastestConfig returns a configuration optimized for speed
func FastestConfig() *Config {
	c := DefaultConfig()
	c.Strategy = StrategyFixed
	c.Algorithm = AlgorithmLZ4
	return c
}

// BestCompressionConfig returns a configuration that tries every codec on
// every block and keeps the smallest result
func BestCompressionConfig() *Config {
	c := DefaultConfig()
	c.BlockSize = 256 * 1024
	c.Strategy = StrategyExhaustive
	c.Candidates = append([]Algorithm(nil), AllAlgorithms...)
	return c
}

// CompatibleConfig returns a configuration that only emits the codecs
// implemented by this package, picking the smallest per block
func CompatibleConfig() *Config {
	c := DefaultConfig()
	c.Strategy = StrategyExhaustive
	c.Candidates = append([]Algorithm(nil), CoreAlgorithms...)
	return c
}

// LowCPUConfig returns a configuration optimized for low CPU usage
func LowCPUConfig() *Config {
	c := DefaultConfig()
	c.BlockSize = 32 * 1024
	c.Strategy = StrategyFixed
	c.Algorithm = AlgorithmSnappy
	return c
}

// ArchivalConfig returns a configuration for write-once data where ratio
// matters far more than time
func ArchivalConfig() *Config {
	c := DefaultConfig()
	c.BlockSize = 1024 * 1024
	c.Strategy = StrategyExhaustive
	c.Candidates = append(append([]Algorithm(nil), CoreAlgorithms...), AlgorithmLZMA, AlgorithmBrotli, AlgorithmZstd)
	c.Level = 11
	return c
}

// NewWithFastestConfig creates an engine optimized for speed
func NewWithFastestConfig() (*Engine, error) {
	return New(FastestConfig())
}

// NewWithBestCompression creates an engine optimized for compression ratio
func NewWithBestCompression() (*Engine, error) {
	return New(BestCompressionConfig())
}

// CompressBytes compresses data into a container. A nil config selects
// DefaultConfig.
func CompressBytes(data []byte, config *Config) ([]byte, error) {
	e, err := New(config)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := e.Compress(context.Background(), &buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressBytes decodes a container. On error no partial output is
// returned.
func DecompressBytes(data []byte) ([]byte, error) {
	e, err := New(nil)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := e.Decompress(context.Background(), &buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

// GetCompressionRatio calculates the compression ratio for given original and compressed sizes
// Returns a value between 0 and 1, where lower is better
// E.g., 0.5 means the compressed size is 50% of the original
func GetCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 0
	}
	return float64(compressedSize) / float64(originalSize)
}

// GetCompressionPercentage calculates the compression percentage
// Returns the percentage of space saved (0-100)
// E.g., 50 means 50% space savings
func GetCompressionPercentage(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 0
	}
	return (1 - float64(compressedSize)/float64(originalSize)) * 100
}
