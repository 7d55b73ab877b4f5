package kcomp

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

var lz4Levels = []lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func encodeLZ4(src []byte, level int) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var (
		n   int
		err error
	)
	if level > 0 {
		n, err = lz4.CompressBlockHC(src, dst, lz4Levels[min(level, len(lz4Levels))-1], nil, nil)
	} else {
		n, err = lz4.CompressBlock(src, dst, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

func decodeLZ4(src []byte, originalLength int) ([]byte, error) {
	dst := make([]byte, originalLength)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, corruptf("lz4: %v", err)
	}
	if n != originalLength {
		return nil, corruptf("lz4 produced %d bytes, expected %d", n, originalLength)
	}
	return dst, nil
}

// zstd encoders and the decoder are safe for concurrent use and expensive
// to create, so they are shared by all engines.
var (
	zstdEncoders sync.Map // map[int]*zstd.Encoder

	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	zstdDecoderErr  error
)

func zstdEncoderFor(level int) (*zstd.Encoder, error) {
	if enc, ok := zstdEncoders.Load(level); ok {
		return enc.(*zstd.Encoder), nil
	}
	speed := zstd.SpeedDefault
	if level > 0 {
		speed = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(speed), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	actual, loaded := zstdEncoders.LoadOrStore(level, enc)
	if loaded {
		enc.Close()
	}
	return actual.(*zstd.Encoder), nil
}

func encodeZstd(src []byte, level int) ([]byte, error) {
	enc, err := zstdEncoderFor(level)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

func decodeZstd(src []byte, originalLength int) ([]byte, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(MaxBlockSize+1),
		)
	})
	if zstdDecoderErr != nil {
		return nil, fmt.Errorf("zstd decoder: %w", zstdDecoderErr)
	}
	dst, err := zstdDecoder.DecodeAll(src, make([]byte, 0, originalLength))
	if err != nil {
		return nil, corruptf("zstd: %v", err)
	}
	if len(dst) != originalLength {
		return nil, corruptf("zstd produced %d bytes, expected %d", len(dst), originalLength)
	}
	return dst, nil
}

func encodeSnappy(src []byte) []byte {
	return snappy.Encode(nil, src)
}

func decodeSnappy(src []byte, originalLength int) ([]byte, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, corruptf("snappy: %v", err)
	}
	if n != originalLength {
		return nil, corruptf("snappy declares %d bytes, expected %d", n, originalLength)
	}
	dst, err := snappy.Decode(make([]byte, originalLength), src)
	if err != nil {
		return nil, corruptf("snappy: %v", err)
	}
	return dst, nil
}

func encodeS2(src []byte, level int) []byte {
	switch {
	case level >= 3:
		return s2.EncodeBest(nil, src)
	case level == 2:
		return s2.EncodeBetter(nil, src)
	default:
		return s2.Encode(nil, src)
	}
}

func decodeS2(src []byte, originalLength int) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, corruptf("s2: %v", err)
	}
	if n != originalLength {
		return nil, corruptf("s2 declares %d bytes, expected %d", n, originalLength)
	}
	dst, err := s2.Decode(make([]byte, originalLength), src)
	if err != nil {
		return nil, corruptf("s2: %v", err)
	}
	return dst, nil
}

func encodeBrotli(src []byte, level int) ([]byte, error) {
	if level <= 0 {
		level = brotli.DefaultCompression
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, min(level, brotli.BestCompression))
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBrotli(src []byte, originalLength int) ([]byte, error) {
	return readExactly(brotli.NewReader(bytes.NewReader(src)), originalLength, "brotli")
}

func encodeLZMA(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeLZMA(src []byte, originalLength int) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, corruptf("lzma: %v", err)
	}
	return readExactly(r, originalLength, "lzma")
}

func encodeGzip(src []byte, level int) ([]byte, error) {
	if level <= 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, min(level, gzip.BestCompression))
	if err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGzip(src []byte, originalLength int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, corruptf("gzip: %v", err)
	}
	defer r.Close()
	return readExactly(r, originalLength, "gzip")
}

// readExactly drains a decompressing reader, reading at most one byte past
// n so a lying stream cannot grow the output.
func readExactly(r io.Reader, n int, name string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(n)
	if _, err := io.CopyN(&buf, r, int64(n)+1); err != nil && err != io.EOF {
		return nil, corruptf("%s: %v", name, err)
	}
	if buf.Len() != n {
		return nil, corruptf("%s produced %d bytes, expected %d", name, buf.Len(), n)
	}
	return buf.Bytes(), nil
}
