package kcomp

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnsupportedAlgorithm = errors.New("kcomp: unsupported compression algorithm")
	ErrInvalidConfig        = errors.New("kcomp: invalid configuration")
	ErrFormat               = errors.New("kcomp: invalid container format")
	ErrCorruption           = errors.New("kcomp: corrupted container")
	ErrCodecInternal        = errors.New("kcomp: codec invariant violated")

	// ErrIncompressible is returned by EncodeBlock when a codec declines
	// input it cannot shrink. The engine stores such blocks.
	ErrIncompressible = errors.New("kcomp: data is incompressible")
)

// FormatError reports that the input is not a valid or compatible
// container: bad magic, unsupported version, truncation or inconsistent
// declared lengths.
type FormatError struct {
	Offset int64 // byte offset in the container where the problem was found
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", ErrFormat, e.Offset, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// CorruptionError reports that a structurally valid container holds
// damaged data: a checksum mismatch or an undecodable payload.
type CorruptionError struct {
	Block     int
	Algorithm Algorithm
	Reason    string
	Err       error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("%v: block %d (%v): %s", ErrCorruption, e.Block, e.Algorithm, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

func (e *CorruptionError) Unwrap() error { return e.Err }

// CodecError reports an encoder invariant violation. It aborts the whole
// run.
type CodecError struct {
	Block     int
	Algorithm Algorithm
	Err       error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%v: block %d (%v): %v", ErrCodecInternal, e.Block, e.Algorithm, e.Err)
}

func (e *CodecError) Is(target error) bool { return target == ErrCodecInternal }

func (e *CodecError) Unwrap() error { return e.Err }

// errCorrupt is returned by codec decoders. The engine turns it into a
// CorruptionError carrying the block index.
type errCorrupt string

func (e errCorrupt) Error() string { return string(e) }

func corruptf(format string, args ...any) error {
	return errCorrupt(fmt.Sprintf(format, args...))
}

// asCorruption attaches block context to a decoder failure.
func asCorruption(index int, algo Algorithm, err error) error {
	var ce *CorruptionError
	if errors.As(err, &ce) {
		return err
	}
	return &CorruptionError{Block: index, Algorithm: algo, Reason: "cannot decode payload", Err: err}
}

// truncated converts short reads of container bytes into format errors.
// Any other error is an I/O failure of the source and is returned as is.
func truncated(err error, offset int64, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Offset: offset, Reason: "truncated " + what}
	}
	return err
}
