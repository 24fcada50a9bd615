// Package wrappers shields process-wide streams (stdin, stdout) from
// consumers that insist on closing what they were handed: closing a wrapper
// only marks it closed, the underlying stream stays open.
package wrappers

import (
	"errors"
	"io"
)

var ErrClosed = errors.New("closed")

type ReaderWrapper struct {
	isClosed bool
	wrapped  io.Reader
}

func NewReaderWrapper(wraps io.Reader) *ReaderWrapper {
	return &ReaderWrapper{wrapped: wraps}
}

// Close implements repl.ReadCloser without closing the wrapped reader.
func (r *ReaderWrapper) Close() error {
	r.isClosed = true
	return nil
}

func (r *ReaderWrapper) Read(p []byte) (n int, err error) {
	if r.isClosed {
		return 0, ErrClosed
	}
	return r.wrapped.Read(p)
}
