// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"errors"
	"sync"
)

// receiverCap bounds each subscriber channel. A subscriber that stops
// draining loses messages instead of stalling the producer.
const receiverCap = 32

// OneToMany broadcasts messages from one producer to named subscribers.
// The producer must never block on a slow subscriber, so delivery is
// best-effort: full subscriber channels drop the message.
type OneToMany[T any] struct {
	inbound   chan T
	outbound  map[string]chan T
	lock      sync.Mutex
	closeChan chan struct{}
	closed    bool
}

func NewOneToMany[T any]() *OneToMany[T] {
	return &OneToMany[T]{
		inbound:   make(chan T, receiverCap),
		outbound:  make(map[string]chan T),
		closeChan: make(chan struct{}),
	}
}

// Send queues a message for broadcast without blocking. Returns false when
// the inbound queue is full or the plexer is closed.
func (o *OneToMany[T]) Send(msg T) bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.inbound <- msg:
		return true
	default:
		return false
	}
}

// MakeReceiver registers a named subscriber channel. Close it through
// CloseReceiver, never directly.
func (o *OneToMany[T]) MakeReceiver(name string) (chan T, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return nil, errors.New("multiplexer has been closed")
	}
	if _, ok := o.outbound[name]; ok {
		return nil, errors.New("receiver with that name already exists")
	}
	rec := make(chan T, receiverCap)
	o.outbound[name] = rec
	return rec, nil
}

// CloseReceiver removes a subscriber and closes its channel.
func (o *OneToMany[T]) CloseReceiver(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	if c, ok := o.outbound[name]; ok {
		close(c)
		delete(o.outbound, name)
	}
}

// StartPlexer runs the distribution loop. Intended as a goroutine; it exits
// when CloseSender is called.
func (o *OneToMany[T]) StartPlexer() {
	for {
		select {
		case msg := <-o.inbound:
			o.lock.Lock()
			for _, c := range o.outbound {
				select {
				case c <- msg:
				default:
				}
			}
			o.lock.Unlock()
		case <-o.closeChan:
			o.lock.Lock()
			for _, c := range o.outbound {
				close(c)
			}
			o.outbound = map[string]chan T{}
			o.closed = true
			o.lock.Unlock()
			return
		}
	}
}

// CloseSender shuts down the distribution loop and every subscriber channel.
func (o *OneToMany[T]) CloseSender() {
	close(o.closeChan)
}
