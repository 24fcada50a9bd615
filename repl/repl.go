// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// MessageHandler turns one input line into the reply to print. A returned
// error stops the repl.
type MessageHandler func(string, *Repl) (string, error)

// ReadCloser combines the Reader and Closer interfaces
type ReadCloser interface {
	io.Reader
	io.Closer
}

// Repl is a line-based command loop over any reader/writer pair, usually
// stdin and stdout.
type Repl struct {
	Input   ReadCloser
	Output  io.WriteCloser
	scanner *bufio.Scanner
	writer  *bufio.Writer
}

// NewRepl creates a repl over the given streams. Nil input or output falls
// back to stdin or stdout.
// Note: the given reader and writer will be closed once the repl stops.
func NewRepl(in ReadCloser, out io.WriteCloser) Repl {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return Repl{
		Input:   in,
		Output:  out,
		scanner: bufio.NewScanner(in),
		writer:  bufio.NewWriter(out),
	}
}

// Run blocks reading lines and passing each to the handler until input ends,
// the handler errors, or writing the reply fails.
func (r *Repl) Run(onMessage MessageHandler) error {
	for r.scanner.Scan() {
		newMessage := r.scanner.Text()
		res, err := onMessage(newMessage, r)
		if err != nil {
			r.Close()
			return fmt.Errorf("message handler errored out on message \"%s\": %w", newMessage, err)
		}
		if _, err = r.writer.WriteString(res + "\n"); err != nil {
			r.Close()
			return fmt.Errorf("failed to write result \"%s\": %w", res, err)
		}
		if err = r.writer.Flush(); err != nil {
			r.Close()
			return fmt.Errorf("failed to flush writer: %w", err)
		}
	}
	return nil
}

// Close stops the repl if it was still running, closing both streams.
func (r *Repl) Close() {
	r.Input.Close()
	r.Output.Close()
}
