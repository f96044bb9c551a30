package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// trackingReader wraps the source stream so a failure can be pinned on the
// source even when it surfaces through the destination writer or the HTTP
// client. It also turns a stream shorter than its announced size into an error.
type trackingReader struct {
	ctx      context.Context
	r        io.Reader
	expected int64 // -1 when unknown

	mu  sync.Mutex
	n   int64
	err error
}

func newTrackingReader(ctx context.Context, r io.Reader, expected int64) *trackingReader {
	return &trackingReader{ctx: ctx, r: r, expected: expected}
}

func (t *trackingReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		t.fail(err)
		return 0, err
	}

	n, err := t.r.Read(p)

	t.mu.Lock()
	t.n += int64(n)
	total := t.n
	t.mu.Unlock()

	if err == io.EOF && t.expected >= 0 && total < t.expected {
		err = fmt.Errorf("source ended after %d of %d bytes: %w", total, t.expected, io.ErrUnexpectedEOF)
	}
	if err != nil && err != io.EOF {
		t.fail(err)
	}
	return n, err
}

func (t *trackingReader) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

// Err returns the first non-EOF error the source produced.
func (t *trackingReader) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// N returns the number of bytes read so far.
func (t *trackingReader) N() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}
