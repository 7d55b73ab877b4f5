package kcomp

import (
	"context"
	"io"
	"io/fs"
	"sync"
)

// Writer compresses everything written to it into a single container.
// The container is complete once Close returns nil.
type Writer struct {
	pw   *io.PipeWriter
	done chan error

	mu     sync.Mutex
	closed bool
	err    error

	bytesWritten int64
}

// NewWriter returns a Writer that writes a container to dst. Because the
// input size is unknown, the header is patched in afterwards when dst is
// an io.WriteSeeker and the body is buffered in memory otherwise.
func NewWriter(dst io.Writer, e *Engine) *Writer {
	pr, pw := io.Pipe()
	w := &Writer{pw: pw, done: make(chan error, 1)}
	go func() {
		err := e.Compress(context.Background(), dst, pr)
		// Unblock pending writes if compression stopped early.
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fs.ErrClosed
	}
	n, err := w.pw.Write(p)
	w.bytesWritten += int64(n)
	return n, err
}

// Close flushes the remaining blocks and waits for the container to be
// written.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.err
	}
	w.closed = true
	w.pw.Close()
	w.err = <-w.done
	return w.err
}

// BytesWritten returns the number of uncompressed bytes accepted so far
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytesWritten
}

// Reader decompresses a container as it is read. Every block is verified
// before any of its bytes are returned, so on error the bytes read so far
// are a prefix of the original.
type Reader struct {
	pr     *io.PipeReader
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	bytesRead int64
}

// NewReader returns a Reader decompressing the container read from src.
func NewReader(src io.Reader, e *Engine) *Reader {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(e.Decompress(ctx, pw, src))
	}()
	return &Reader{pr: pr, cancel: cancel}
}

func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, fs.ErrClosed
	}
	n, err := r.pr.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

// Close stops decompression. It does not close the source.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	return r.pr.Close()
}

// BytesRead returns the number of decompressed bytes returned so far
func (r *Reader) BytesRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesRead
}
