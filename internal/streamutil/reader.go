package streamutil

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"
)

// StreamReaderConfig configures the idle-aware stream reader.
type StreamReaderConfig struct {
	// IdleTimeout for stalled connection detection (default: 5 minutes)
	IdleTimeout time.Duration
	// BufferSize for the scanner (default: 64KB)
	BufferSize int
	// MaxLineSize limit (default: 2MB)
	MaxLineSize int
	// Name for logging purposes
	Name string
}

// DefaultStreamReaderConfig returns sensible defaults.
func DefaultStreamReaderConfig() StreamReaderConfig {
	return StreamReaderConfig{
		IdleTimeout: 5 * time.Minute,
		BufferSize:  64 * 1024,
		MaxLineSize: 2 * 1024 * 1024,
		Name:        "stream",
	}
}

// IdleStreamReader wraps an io.ReadCloser with context awareness and a
// per-stream idle timer: if no bytes arrive within IdleTimeout, the
// underlying body is closed to unblock the in-flight Read.
type IdleStreamReader struct {
	body    io.ReadCloser
	ctx     context.Context
	timeout time.Duration

	mu        sync.Mutex
	timer     *time.Timer
	closeOnce sync.Once
}

// NewIdleStreamReader wraps body with idle-timeout detection. A zero
// IdleTimeout disables the timer.
func NewIdleStreamReader(ctx context.Context, body io.ReadCloser, cfg StreamReaderConfig) *IdleStreamReader {
	r := &IdleStreamReader{body: body, ctx: ctx, timeout: cfg.IdleTimeout}
	if r.timeout > 0 {
		r.timer = time.AfterFunc(r.timeout, func() { body.Close() })
	}
	return r
}

// Read implements io.Reader, resetting the idle timer on every successful
// read and failing fast if the context is already done.
func (r *IdleStreamReader) Read(p []byte) (n int, err error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}

	n, err = r.body.Read(p)
	if n > 0 && r.timer != nil {
		r.mu.Lock()
		r.timer.Reset(r.timeout)
		r.mu.Unlock()
	}
	return n, err
}

// Close implements io.Closer, stopping the idle timer and closing the
// underlying body exactly once.
func (r *IdleStreamReader) Close() error {
	r.closeOnce.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		r.body.Close()
	})
	return nil
}

// LineScanner provides line-by-line reading over an idle-aware reader,
// using a pooled buffer for the scanner's internal storage.
type LineScanner struct {
	reader  *IdleStreamReader
	scanner *bufio.Scanner
	buf     *[]byte
}

// NewLineScanner creates a scanner for line-by-line reading of body.
func NewLineScanner(ctx context.Context, body io.ReadCloser, cfg StreamReaderConfig) *LineScanner {
	reader := NewIdleStreamReader(ctx, body, cfg)

	buf := GetBuffer(cfg.BufferSize)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(*buf, cfg.MaxLineSize)

	return &LineScanner{reader: reader, scanner: scanner, buf: buf}
}

// Scan advances to the next line. Returns false when done or on error.
func (s *LineScanner) Scan() bool {
	return s.scanner.Scan()
}

// Bytes returns the current line bytes.
func (s *LineScanner) Bytes() []byte {
	return s.scanner.Bytes()
}

// Text returns the current line as a string.
func (s *LineScanner) Text() string {
	return s.scanner.Text()
}

// Err returns any error that occurred during scanning.
func (s *LineScanner) Err() error {
	return s.scanner.Err()
}

// Close closes the scanner and returns the pooled buffer.
func (s *LineScanner) Close() error {
	PutBuffer(s.buf)
	return s.reader.Close()
}
