// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import "errors"

// ManyToOne fans multiple producers into one channel without the
// send-on-closed-channel panic a raw channel gives: after Close, sends turn
// into errors instead.
type ManyToOne[T any] struct {
	outbound chan T
	closed   bool
}

// NewManyToOne wraps the receiver channel all messages get delivered to.
func NewManyToOne[T any](receiver chan T) ManyToOne[T] {
	return ManyToOne[T]{
		outbound: receiver,
	}
}

// Send queues a message. After Close the message is dropped and an error
// returned.
func (m *ManyToOne[T]) Send(msg T) error {
	if m.closed {
		return errors.New("multiplexer has been closed")
	}
	m.outbound <- msg
	return nil
}

// Close closes the underlying channel and rejects further sends.
func (m *ManyToOne[T]) Close() {
	close(m.outbound)
	m.closed = true
}
