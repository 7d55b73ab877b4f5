package kcomp

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Algorithm identifies the codec that encoded a block. The numeric values
// are persisted in containers and must never be reassigned.
type Algorithm uint8

const (
	AlgorithmStore      Algorithm = 0
	AlgorithmRLE        Algorithm = 1
	AlgorithmHuffman    Algorithm = 2
	AlgorithmDictionary Algorithm = 3

	// Library-backed codecs. They are only emitted when a config names
	// them, but every decoder understands them.
	AlgorithmLZ4    Algorithm = 16
	AlgorithmZstd   Algorithm = 17
	AlgorithmSnappy Algorithm = 18
	AlgorithmBrotli Algorithm = 19
	AlgorithmLZMA   Algorithm = 20
	AlgorithmGzip   Algorithm = 21
	AlgorithmS2     Algorithm = 22
)

// CoreAlgorithms are the codecs implemented by this package.
var CoreAlgorithms = []Algorithm{
	AlgorithmStore,
	AlgorithmRLE,
	AlgorithmHuffman,
	AlgorithmDictionary,
}

// AllAlgorithms lists every algorithm a container may carry.
var AllAlgorithms = []Algorithm{
	AlgorithmStore,
	AlgorithmRLE,
	AlgorithmHuffman,
	AlgorithmDictionary,
	AlgorithmLZ4,
	AlgorithmZstd,
	AlgorithmSnappy,
	AlgorithmBrotli,
	AlgorithmLZMA,
	AlgorithmGzip,
	AlgorithmS2,
}

var algorithmNames = map[Algorithm]string{
	AlgorithmStore:      "store",
	AlgorithmRLE:        "rle",
	AlgorithmHuffman:    "huffman",
	AlgorithmDictionary: "dictionary",
	AlgorithmLZ4:        "lz4",
	AlgorithmZstd:       "zstd",
	AlgorithmSnappy:     "snappy",
	AlgorithmBrotli:     "brotli",
	AlgorithmLZMA:       "lzma",
	AlgorithmGzip:       "gzip",
	AlgorithmS2:         "s2",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	_, ok := algorithmNames[a]
	return ok
}

// ParseAlgorithm returns the algorithm with the given name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for algo, n := range algorithmNames {
		if n == name {
			return algo, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

// Strategy controls how the algorithm for a block is chosen.
type Strategy int

const (
	// StrategyAdaptive picks a codec from the block's entropy and run
	// structure without trying the alternatives.
	StrategyAdaptive Strategy = iota
	// StrategyExhaustive encodes the block with every candidate and keeps
	// the smallest result.
	StrategyExhaustive
	// StrategyFixed always uses Config.Algorithm.
	StrategyFixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyAdaptive:
		return "adaptive"
	case StrategyExhaustive:
		return "exhaustive"
	case StrategyFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategyAdaptive, StrategyExhaustive, StrategyFixed} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, name)
}

// Splitting controls where block boundaries fall.
type Splitting int

const (
	// SplitFixed cuts the input every BlockSize bytes.
	SplitFixed Splitting = iota
	// SplitContentDefined places boundaries based on content, producing
	// blocks between BlockSize/4 and BlockSize bytes.
	SplitContentDefined
)

const (
	DefaultBlockSize = 64 * 1024
	MinBlockSize     = 16
	MaxBlockSize     = 64 * 1024 * 1024

	// minContentDefinedBlockSize keeps the chunker's minimum chunk size
	// meaningful.
	minContentDefinedBlockSize = 1024
)

// Thresholds tune the adaptive selector.
type Thresholds struct {
	// RunFraction is the fraction of bytes inside runs above which RLE is
	// preferred.
	RunFraction float64
	// MinRunLength is the shortest run counted towards RunFraction.
	MinRunLength int
	// DictionaryEntropy is the entropy (bits/byte) below which the
	// dictionary codec is preferred.
	DictionaryEntropy float64
	// HuffmanEntropy is the entropy below which Huffman is preferred.
	// Blocks at or above it are stored.
	HuffmanEntropy float64
}

// DefaultThresholds returns the default selector thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RunFraction:       0.3,
		MinRunLength:      4,
		DictionaryEntropy: 4.5,
		HuffmanEntropy:    7.0,
	}
}

// Config holds compression engine configuration
type Config struct {
	// Nominal block size (default: 64KB)
	BlockSize int

	// Number of blocks encoded or decoded concurrently (default: GOMAXPROCS)
	Workers int

	// Upper bound on blocks read but not yet written (default: 4*Workers)
	MaxPendingBlocks int

	// Block boundary placement (default: SplitFixed)
	Splitting Splitting

	// Algorithm selection (default: StrategyAdaptive)
	Strategy Strategy

	// Algorithm used by StrategyFixed
	Algorithm Algorithm

	// Algorithms tried by StrategyExhaustive (default: CoreAlgorithms)
	Candidates []Algorithm

	// Compression level for zstd, brotli and gzip (0: library default)
	Level int

	// Adaptive selector tuning
	Thresholds Thresholds

	// Logger for per-block and per-run diagnostics (default: no-op)
	Logger *zap.Logger
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	workers := runtime.GOMAXPROCS(0)
	return &Config{
		BlockSize:        DefaultBlockSize,
		Workers:          workers,
		MaxPendingBlocks: 4 * workers,
		Splitting:        SplitFixed,
		Strategy:         StrategyAdaptive,
		Candidates:       append([]Algorithm(nil), CoreAlgorithms...),
		Thresholds:       DefaultThresholds(),
	}
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BlockSize == 0 {
		c.BlockSize = d.BlockSize
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.MaxPendingBlocks == 0 {
		c.MaxPendingBlocks = 4 * c.Workers
	}
	if len(c.Candidates) == 0 {
		c.Candidates = d.Candidates
	}
	c.Candidates = append([]Algorithm(nil), c.Candidates...)
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	if c.Thresholds.MinRunLength == 0 {
		c.Thresholds.MinRunLength = d.Thresholds.MinRunLength
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Validate checks that all values are in range. Zero values are accepted
// and mean "use the default".
func (c *Config) Validate() error {
	if c.BlockSize != 0 && (c.BlockSize < MinBlockSize || c.BlockSize > MaxBlockSize) {
		return fmt.Errorf("%w: block size %d outside [%d, %d]", ErrInvalidConfig, c.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative worker count %d", ErrInvalidConfig, c.Workers)
	}
	if c.MaxPendingBlocks < 0 {
		return fmt.Errorf("%w: negative pending block limit %d", ErrInvalidConfig, c.MaxPendingBlocks)
	}
	switch c.Splitting {
	case SplitFixed:
	case SplitContentDefined:
		if c.BlockSize != 0 && c.BlockSize < minContentDefinedBlockSize {
			return fmt.Errorf("%w: content-defined splitting needs a block size of at least %d", ErrInvalidConfig, minContentDefinedBlockSize)
		}
	default:
		return fmt.Errorf("%w: unknown splitting mode %d", ErrInvalidConfig, c.Splitting)
	}
	switch c.Strategy {
	case StrategyAdaptive:
	case StrategyExhaustive:
		for _, algo := range c.Candidates {
			if !algo.Valid() {
				return fmt.Errorf("%w: candidate %v", ErrUnsupportedAlgorithm, algo)
			}
		}
	case StrategyFixed:
		if !c.Algorithm.Valid() {
			return fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, c.Algorithm)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %d", ErrInvalidConfig, c.Strategy)
	}
	t := c.Thresholds
	if t.RunFraction < 0 || t.RunFraction > 1 {
		return fmt.Errorf("%w: run fraction %v outside [0, 1]", ErrInvalidConfig, t.RunFraction)
	}
	if t.MinRunLength < 0 {
		return fmt.Errorf("%w: negative minimum run length", ErrInvalidConfig)
	}
	if t.DictionaryEntropy < 0 || t.HuffmanEntropy > 8 || t.DictionaryEntropy > t.HuffmanEntropy {
		return fmt.Errorf("%w: entropy thresholds must satisfy 0 <= dictionary (%v) <= huffman (%v) <= 8",
			ErrInvalidConfig, t.DictionaryEntropy, t.HuffmanEntropy)
	}
	return nil
}

// Stats holds cumulative engine statistics
type Stats struct {
	ContainersCompressed   int64
	ContainersDecompressed int64

	BlocksCompressed   int64
	BlocksDecompressed int64
	BlocksFallback     int64 // blocks stored because no codec beat raw size

	OriginalBytes     int64 // input consumed by Compress
	CompressedBytes   int64 // container bytes produced by Compress
	ContainerBytes    int64 // container bytes consumed by Decompress
	DecompressedBytes int64 // output produced by Decompress

	AlgorithmCounts sync.Map // map[Algorithm]*atomic.Int64
}

// GetAlgorithmCount returns how many blocks were encoded with algo
func (s *Stats) GetAlgorithmCount(algo Algorithm) int64 {
	if val, ok := s.AlgorithmCounts.Load(algo); ok {
		return val.(*atomic.Int64).Load()
	}
	return 0
}

// IncrementAlgorithmCount increments the count for a specific algorithm
func (s *Stats) IncrementAlgorithmCount(algo Algorithm) {
	val, _ := s.AlgorithmCounts.LoadOrStore(algo, new(atomic.Int64))
	val.(*atomic.Int64).Add(1)
}

// TotalCompressionRatio returns compressed size over original size for
// everything compressed so far
func (s *Stats) TotalCompressionRatio() float64 {
	if s.OriginalBytes == 0 {
		return 0
	}
	return float64(s.CompressedBytes) / float64(s.OriginalBytes)
}

// TotalDecompressionRatio returns container size over decompressed size
func (s *Stats) TotalDecompressionRatio() float64 {
	if s.DecompressedBytes == 0 {
		return 0
	}
	return float64(s.ContainerBytes) / float64(s.DecompressedBytes)
}
