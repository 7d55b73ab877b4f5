package kcomp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Engine compresses and decompresses containers. An Engine is safe for
// concurrent use; each call runs its own worker pool.
type Engine struct {
	config Config
	logger *zap.Logger
	stats  Stats
	mu     sync.RWMutex

	// beforeEncode, if set, runs before each block is encoded.
	beforeEncode func(index int) error
}

// New creates an engine. A nil config selects DefaultConfig. The config is
// copied, so later changes to it have no effect.
func New(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	registerMetrics()
	c := config.withDefaults()
	return &Engine{config: c, logger: c.Logger}, nil
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	c := e.config
	c.Candidates = append([]Algorithm(nil), c.Candidates...)
	return c
}

// GetStats returns a snapshot of the cumulative statistics.
func (e *Engine) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := &Stats{
		ContainersCompressed:   atomic.LoadInt64(&e.stats.ContainersCompressed),
		ContainersDecompressed: atomic.LoadInt64(&e.stats.ContainersDecompressed),
		BlocksCompressed:       atomic.LoadInt64(&e.stats.BlocksCompressed),
		BlocksDecompressed:     atomic.LoadInt64(&e.stats.BlocksDecompressed),
		BlocksFallback:         atomic.LoadInt64(&e.stats.BlocksFallback),
		OriginalBytes:          atomic.LoadInt64(&e.stats.OriginalBytes),
		CompressedBytes:        atomic.LoadInt64(&e.stats.CompressedBytes),
		ContainerBytes:         atomic.LoadInt64(&e.stats.ContainerBytes),
		DecompressedBytes:      atomic.LoadInt64(&e.stats.DecompressedBytes),
	}
	e.stats.AlgorithmCounts.Range(func(k, v any) bool {
		n := new(atomic.Int64)
		n.Store(v.(*atomic.Int64).Load())
		s.AlgorithmCounts.Store(k, n)
		return true
	})
	return s
}

// ResetStats resets statistics to zero
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	atomic.StoreInt64(&e.stats.ContainersCompressed, 0)
	atomic.StoreInt64(&e.stats.ContainersDecompressed, 0)
	atomic.StoreInt64(&e.stats.BlocksCompressed, 0)
	atomic.StoreInt64(&e.stats.BlocksDecompressed, 0)
	atomic.StoreInt64(&e.stats.BlocksFallback, 0)
	atomic.StoreInt64(&e.stats.OriginalBytes, 0)
	atomic.StoreInt64(&e.stats.CompressedBytes, 0)
	atomic.StoreInt64(&e.stats.ContainerBytes, 0)
	atomic.StoreInt64(&e.stats.DecompressedBytes, 0)
	e.stats.AlgorithmCounts.Range(func(k, _ any) bool {
		e.stats.AlgorithmCounts.Delete(k)
		return true
	})
}

func (e *Engine) newSplitter(r io.Reader) *Splitter {
	if e.config.Splitting == SplitContentDefined {
		return NewContentDefinedSplitter(r, e.config.BlockSize)
	}
	return NewSplitter(r, e.config.BlockSize)
}

type encodedBlock struct {
	EncodedBlock
	selected Algorithm
}

func (e *Engine) encodeBlock(index int, b Block) (encodedBlock, error) {
	if e.beforeEncode != nil {
		if err := e.beforeEncode(index); err != nil {
			return encodedBlock{}, err
		}
	}
	started := time.Now()
	tag, selected, payload, err := encodeSelected(&e.config, b.Data)
	if err != nil {
		return encodedBlock{}, &CodecError{Block: index, Algorithm: selected, Err: err}
	}
	engineBlockEncodeDurationSeconds.WithLabelValues(selected.String()).Observe(time.Since(started).Seconds())
	return encodedBlock{
		EncodedBlock: EncodedBlock{
			Index:          uint32(index),
			Algorithm:      tag,
			OriginalLength: uint32(len(b.Data)),
			Checksum:       Checksum(b.Data),
			Payload:        payload,
		},
		selected: selected,
	}, nil
}

// Compress reads src to the end and writes one container to dst.
//
// When src is seekable and blocks have a fixed size, the header is written
// first and blocks are streamed. Otherwise the header is patched in
// afterwards if dst is an io.WriteSeeker, or the body is buffered in
// memory. If Compress fails, whatever was written to dst is not a valid
// container.
func (e *Engine) Compress(ctx context.Context, dst io.Writer, src io.Reader) error {
	started := time.Now()
	blockSize := e.config.BlockSize

	size := int64(-1)
	if e.config.Splitting == SplitFixed {
		size = remainingSize(src)
	}

	out := &countingWriter{w: dst}
	var (
		body     io.Writer = out
		spool    *bytes.Buffer
		patch    io.WriteSeeker
		headerAt int64
	)
	if size >= 0 {
		count := BlockCount(size, blockSize)
		if count > math.MaxUint32 {
			return fmt.Errorf("%w: %d bytes need %d blocks of %d bytes", ErrInvalidConfig, size, count, blockSize)
		}
		h := Header{Version: Version, BlockSize: uint32(blockSize), BlockCount: uint32(count), TotalLength: uint64(size)}
		if _, err := out.Write(appendHeader(nil, h)); err != nil {
			return err
		}
		src = io.LimitReader(src, size)
	} else if ws, ok := dst.(io.WriteSeeker); ok {
		if pos, err := ws.Seek(0, io.SeekCurrent); err == nil {
			patch, headerAt = ws, pos
		}
	}
	if size < 0 {
		if patch != nil {
			// A zeroed header has no magic, so an interrupted run never
			// looks like a container.
			if _, err := out.Write(make([]byte, ContainerHeaderSize)); err != nil {
				return err
			}
		} else {
			spool = new(bytes.Buffer)
			body = spool
		}
	}

	var total, blocks, fallbacks int64
	splitter := e.newSplitter(src)
	err := runOrdered(ctx, e.config.Workers, e.config.MaxPendingBlocks,
		func() (Block, error) {
			b, err := splitter.Next()
			if err == nil && uint64(b.Index) >= math.MaxUint32 {
				return Block{}, fmt.Errorf("%w: input needs more than %d blocks", ErrInvalidConfig, uint32(math.MaxUint32))
			}
			return b, err
		},
		func(ctx context.Context, index int, b Block) (encodedBlock, error) {
			return e.encodeBlock(index, b)
		},
		func(index int, b encodedBlock) error {
			if _, err := writeBlock(body, &b.EncodedBlock); err != nil {
				return err
			}
			total += int64(b.OriginalLength)
			blocks++
			e.stats.IncrementAlgorithmCount(b.Algorithm)
			engineBlocksEncodedTotal.WithLabelValues(b.Algorithm.String()).Inc()
			fallback := b.Algorithm != b.selected
			if fallback {
				fallbacks++
				engineBlocksFallbackTotal.WithLabelValues(b.selected.String()).Inc()
			}
			e.logger.Debug("encoded block",
				zap.Int("index", index),
				zap.Stringer("algorithm", b.Algorithm),
				zap.Stringer("selected", b.selected),
				zap.Uint32("original_length", b.OriginalLength),
				zap.Int("compressed_length", len(b.Payload)),
				zap.Bool("fallback", fallback))
			return nil
		})
	if err != nil {
		e.logger.Debug("compression failed", zap.Int64("blocks_written", blocks), zap.Error(err))
		return err
	}
	if size >= 0 && total != size {
		return fmt.Errorf("source changed during compression: expected %d bytes, read %d", size, total)
	}

	h := Header{Version: Version, BlockSize: uint32(blockSize), BlockCount: uint32(blocks), TotalLength: uint64(total)}
	switch {
	case patch != nil:
		if _, err := patch.Seek(headerAt, io.SeekStart); err != nil {
			return err
		}
		if _, err := patch.Write(appendHeader(nil, h)); err != nil {
			return err
		}
		if _, err := patch.Seek(0, io.SeekEnd); err != nil {
			return err
		}
	case spool != nil:
		if _, err := out.Write(appendHeader(nil, h)); err != nil {
			return err
		}
		if _, err := spool.WriteTo(out); err != nil {
			return err
		}
	}

	atomic.AddInt64(&e.stats.ContainersCompressed, 1)
	atomic.AddInt64(&e.stats.BlocksCompressed, blocks)
	atomic.AddInt64(&e.stats.BlocksFallback, fallbacks)
	atomic.AddInt64(&e.stats.OriginalBytes, total)
	atomic.AddInt64(&e.stats.CompressedBytes, out.n)
	engineBytesTotal.WithLabelValues("compress", "in").Add(float64(total))
	engineBytesTotal.WithLabelValues("compress", "out").Add(float64(out.n))
	e.logger.Debug("compressed",
		zap.Int64("original_bytes", total),
		zap.Int64("container_bytes", out.n),
		zap.Int64("blocks", blocks),
		zap.Int64("fallback_blocks", fallbacks),
		zap.Duration("duration", time.Since(started)))
	return nil
}

// Decompress reads one container from src and writes the original bytes
// to dst. Every block is decoded and its checksum verified before it is
// written. On error, dst may hold a prefix of the output.
func (e *Engine) Decompress(ctx context.Context, dst io.Writer, src io.Reader) error {
	started := time.Now()
	cr, err := newContainerReader(src)
	if err != nil {
		return err
	}

	var total int64
	err = runOrdered(ctx, e.config.Workers, e.config.MaxPendingBlocks,
		cr.Next,
		func(ctx context.Context, index int, b EncodedBlock) (decodedBlock, error) {
			data, err := decodeVerified(index, &b)
			return decodedBlock{algorithm: b.Algorithm, data: data}, err
		},
		func(index int, b decodedBlock) error {
			if _, err := dst.Write(b.data); err != nil {
				return err
			}
			total += int64(len(b.data))
			engineBlocksDecodedTotal.WithLabelValues(b.algorithm.String()).Inc()
			return nil
		})
	if err != nil {
		e.logger.Debug("decompression failed", zap.Int64("bytes_written", total), zap.Error(err))
		return err
	}

	atomic.AddInt64(&e.stats.ContainersDecompressed, 1)
	atomic.AddInt64(&e.stats.BlocksDecompressed, int64(cr.header.BlockCount))
	atomic.AddInt64(&e.stats.ContainerBytes, cr.offset)
	atomic.AddInt64(&e.stats.DecompressedBytes, total)
	engineBytesTotal.WithLabelValues("decompress", "in").Add(float64(cr.offset))
	engineBytesTotal.WithLabelValues("decompress", "out").Add(float64(total))
	e.logger.Debug("decompressed",
		zap.Int64("container_bytes", cr.offset),
		zap.Int64("original_bytes", total),
		zap.Uint32("blocks", cr.header.BlockCount),
		zap.Duration("duration", time.Since(started)))
	return nil
}

type decodedBlock struct {
	algorithm Algorithm
	data      []byte
}

func decodeVerified(index int, b *EncodedBlock) ([]byte, error) {
	data, err := DecodeBlock(b.Payload, b.Algorithm, int(b.OriginalLength))
	if err != nil {
		return nil, asCorruption(index, b.Algorithm, err)
	}
	if sum := Checksum(data); sum != b.Checksum {
		return nil, &CorruptionError{
			Block:     index,
			Algorithm: b.Algorithm,
			Reason:    fmt.Sprintf("checksum mismatch: stored %08x, computed %08x", b.Checksum, sum),
		}
	}
	return data, nil
}

// remainingSize returns the number of bytes left in r, or -1 if r cannot
// report it.
func remainingSize(r io.Reader) int64 {
	s, ok := r.(io.Seeker)
	if !ok {
		return -1
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return -1
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return -1
	}
	if end < cur {
		return -1
	}
	return end - cur
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
