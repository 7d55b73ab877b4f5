// Package kcomp is an adaptive block compression engine.
//
// Input is split into blocks. Each block is analysed and encoded with the
// codec best suited to its content, and the results are framed in a
// self-describing container that any engine can decode regardless of how
// it was configured.
//
// # Features
//
//   - Four built-in codecs: store, run-length, canonical Huffman and an
//     LZ77 dictionary coder
//   - Library-backed codecs: lz4, zstd, snappy, brotli, lzma, gzip, s2
//   - Adaptive, exhaustive or fixed algorithm selection per block
//   - Fixed-size or content-defined block boundaries
//   - Parallel encoding and decoding with bounded memory and in-order output
//   - CRC-32C per block; damaged containers are rejected, never half-decoded
//   - Prometheus metrics, zap logging and cumulative statistics
//
// # Quick Start
//
//	e, _ := kcomp.New(kcomp.DefaultConfig())
//
//	// Compress a stream
//	var container bytes.Buffer
//	_ = e.Compress(ctx, &container, strings.NewReader("Hello, World!"))
//
//	// Decompress it again
//	var out bytes.Buffer
//	_ = e.Decompress(ctx, &out, &container)
//
// For files on any absfs filesystem use CompressFile and DecompressFile,
// which only create the destination once the whole run succeeded.
//
// # Algorithm Selection
//
// The adaptive strategy looks at two statistics of each block:
//
//   - Run fraction above 0.3: RLE
//   - Entropy below 4.5 bits/byte: dictionary (LZ77)
//   - Entropy below 7.0 bits/byte: Huffman
//   - Otherwise: store
//
// Whatever codec is chosen, a block that does not strictly shrink is
// stored, so a container is never larger than its input plus 22 bytes of
// header and 17 bytes per block.
//
// # Container Format
//
// All integers are little-endian. The header holds the magic "KCMP",
// version 1, the block size, the block count and the total input length.
// Each block record holds its index, algorithm tag, original and
// compressed lengths, the CRC-32C of the original bytes and the payload.
package kcomp
