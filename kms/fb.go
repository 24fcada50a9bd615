// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Per-channel depths used when registering framebuffers, in preference
// order: 10-bit color first, 8-bit fallback.
const (
	Depth30 = 30 // xrgb2101010
	Depth24 = 24 // xrgb8888
)

// Framebuffer is a CPU-mapped dumb buffer registered with the device for
// scanout.
type Framebuffer struct {
	dev    *Device
	ID     uint32
	Handle uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Depth  uint32
	Data   []byte
}

// CreateFramebuffer allocates a 32bpp dumb buffer, maps it, and registers it
// at the requested depth.
func (d *Device) CreateFramebuffer(width, height uint32, depth uint32) (*Framebuffer, error) {
	create := modeCreateDumb{Width: width, Height: height, BPP: 32}
	if err := ioctl(d.fd, reqModeCreateDumb, unsafe.Pointer(&create)); err != nil {
		return nil, fmt.Errorf("create dumb buffer %dx%d: %w", width, height, err)
	}

	fb := modeFBCmd{
		Width:  width,
		Height: height,
		Pitch:  create.Pitch,
		BPP:    32,
		Depth:  depth,
		Handle: create.Handle,
	}
	if err := ioctl(d.fd, reqModeAddFB, unsafe.Pointer(&fb)); err != nil {
		d.destroyDumb(create.Handle)
		return nil, fmt.Errorf("add framebuffer depth %d: %w", depth, err)
	}

	mapReq := modeMapDumb{Handle: create.Handle}
	if err := ioctl(d.fd, reqModeMapDumb, unsafe.Pointer(&mapReq)); err != nil {
		d.removeFB(fb.FBID)
		d.destroyDumb(create.Handle)
		return nil, fmt.Errorf("map dumb buffer: %w", err)
	}
	data, err := unix.Mmap(d.fd, int64(mapReq.Offset), int(create.Size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		d.removeFB(fb.FBID)
		d.destroyDumb(create.Handle)
		return nil, fmt.Errorf("mmap dumb buffer: %w", err)
	}

	return &Framebuffer{
		dev:    d,
		ID:     fb.FBID,
		Handle: create.Handle,
		Width:  width,
		Height: height,
		Pitch:  create.Pitch,
		Depth:  depth,
		Data:   data,
	}, nil
}

// Destroy unmaps and releases the buffer. Safe to call once.
func (f *Framebuffer) Destroy() {
	if f.Data != nil {
		_ = unix.Munmap(f.Data)
		f.Data = nil
	}
	f.dev.removeFB(f.ID)
	f.dev.destroyDumb(f.Handle)
}

func (d *Device) removeFB(id uint32) {
	_ = ioctl(d.fd, reqModeRmFB, unsafe.Pointer(&id))
}

func (d *Device) destroyDumb(handle uint32) {
	destroy := modeDestroyDumb{Handle: handle}
	_ = ioctl(d.fd, reqModeDestroyDumb, unsafe.Pointer(&destroy))
}
