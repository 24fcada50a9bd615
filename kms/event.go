// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Event kinds delivered on a card fd after a page flip with the event flag.
const (
	EventVBlank       = eventTypeVBlank
	EventFlipComplete = eventTypeFlipComplete
)

// Event is one hardware completion notification.
type Event struct {
	Type     uint32
	Sequence uint32
	CRTC     uint32
	UserData uint64
}

const (
	eventHeaderSize = 8
	eventVBlankSize = 32
)

// ReadEvents drains pending events from the card fd. The fd is non-blocking;
// an empty slice with nil error means nothing was pending.
func (d *Device) ReadEvents() ([]Event, error) {
	buf := make([]byte, 1024)
	n, err := unix.Read(d.fd, buf)
	if err == unix.EAGAIN {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read drm events: %w", err)
	}
	return decodeEvents(buf[:n])
}

// decodeEvents walks the packed drm_event stream. Each record carries its
// own length so unknown event types can be skipped.
func decodeEvents(buf []byte) ([]Event, error) {
	var events []Event
	for len(buf) >= eventHeaderSize {
		typ := binary.LittleEndian.Uint32(buf[0:4])
		length := binary.LittleEndian.Uint32(buf[4:8])
		if length < eventHeaderSize || int(length) > len(buf) {
			return events, fmt.Errorf("malformed drm event: type %d length %d", typ, length)
		}
		switch typ {
		case eventTypeVBlank, eventTypeFlipComplete:
			if length < eventVBlankSize {
				return events, fmt.Errorf("short vblank event: length %d", length)
			}
			events = append(events, Event{
				Type:     typ,
				UserData: binary.LittleEndian.Uint64(buf[8:16]),
				Sequence: binary.LittleEndian.Uint32(buf[24:28]),
				CRTC:     binary.LittleEndian.Uint32(buf[28:32]),
			})
		}
		buf = buf[length:]
	}
	return events, nil
}
