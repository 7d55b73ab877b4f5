package kcomp

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// BenchmarkResult is the outcome of compressing one input under one
// configuration.
type BenchmarkResult struct {
	Name               string
	CompressedSize     int64
	Ratio              float64 // container size over input size
	CompressDuration   time.Duration
	DecompressDuration time.Duration
	AlgorithmCounts    map[Algorithm]int
}

// Benchmark compresses data once with base and once per algorithm with
// StrategyFixed, timing both directions. Every run must round trip; a
// mismatch is reported as ErrCodecInternal.
func Benchmark(ctx context.Context, data []byte, base *Config, algorithms []Algorithm) ([]BenchmarkResult, error) {
	if base == nil {
		base = DefaultConfig()
	}
	type benchmarkRun struct {
		name   string
		config Config
	}
	runs := []benchmarkRun{{name: base.Strategy.String(), config: *base}}
	for _, algo := range algorithms {
		c := *base
		c.Strategy = StrategyFixed
		c.Algorithm = algo
		runs = append(runs, benchmarkRun{name: algo.String(), config: c})
	}

	results := make([]BenchmarkResult, 0, len(runs))
	for _, run := range runs {
		r, err := benchmarkOne(ctx, data, run.name, &run.config)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func benchmarkOne(ctx context.Context, data []byte, name string, config *Config) (BenchmarkResult, error) {
	e, err := New(config)
	if err != nil {
		return BenchmarkResult{}, err
	}

	var container bytes.Buffer
	started := time.Now()
	if err := e.Compress(ctx, &container, bytes.NewReader(data)); err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", name, err)
	}
	compressed := time.Since(started)

	info, err := Inspect(bytes.NewReader(container.Bytes()))
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", name, err)
	}

	var back bytes.Buffer
	back.Grow(len(data))
	started = time.Now()
	if err := e.Decompress(ctx, &back, bytes.NewReader(container.Bytes())); err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", name, err)
	}
	decompressed := time.Since(started)
	if !bytes.Equal(back.Bytes(), data) {
		return BenchmarkResult{}, fmt.Errorf("%w: %s did not round trip", ErrCodecInternal, name)
	}

	return BenchmarkResult{
		Name:               name,
		CompressedSize:     int64(container.Len()),
		Ratio:              GetCompressionRatio(int64(len(data)), int64(container.Len())),
		CompressDuration:   compressed,
		DecompressDuration: decompressed,
		AlgorithmCounts:    info.AlgorithmCounts(),
	}, nil
}
