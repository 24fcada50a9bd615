// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpu

import (
	"errors"
	"fmt"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
)

var (
	// ErrFrameInFlight: a queued frame has not been acknowledged yet.
	// Queuing over it would hand the device two buffers at once.
	ErrFrameInFlight = errors.New("frame already queued for this surface")
	// ErrSuspended: the session is paused; the device is not ours.
	ErrSuspended = errors.New("presentation suspended")
)

// FlipDevice is the slice of kms.Device a presenter drives.
type FlipDevice interface {
	SetCRTC(crtcID, fbID uint32, connectors []uint32, mode *kms.Mode) error
	PageFlip(crtcID, fbID uint32, userData uint64) error
}

// Chain abstracts the swapchain so presenters can be exercised without a
// device.
type Chain interface {
	Backbuffer() *kms.Framebuffer
	Swap()
	Destroy()
}

// OutputManager builds presenters over one mode-setting device, owning the
// format preference applied to their swapchains.
type OutputManager struct {
	dev *kms.Device
}

func NewOutputManager(dev *kms.Device) *OutputManager {
	return &OutputManager{dev: dev}
}

func (m *OutputManager) Device() *kms.Device { return m.dev }

// InitializeOutput allocates a swapchain sized to the mode and returns the
// presenter for the (crtc, connector, mode) tuple. Called lazily on the
// first render of a configured surface.
func (m *OutputManager) InitializeOutput(crtc, connector uint32, mode kms.Mode) (*Presenter, error) {
	chain, err := NewSwapchain(m.dev, uint32(mode.Width), uint32(mode.Height))
	if err != nil {
		return nil, fmt.Errorf("initialize output on crtc %d: %w", crtc, err)
	}
	return NewPresenter(m.dev, chain, crtc, connector, mode), nil
}

// Presenter drives one CRTC: it hands out the backbuffer, queues completed
// frames for display, and enforces at most one frame in flight.
type Presenter struct {
	dev       FlipDevice
	chain     Chain
	crtc      uint32
	connector uint32
	mode      kms.Mode

	primed    bool
	pending   bool
	suspended bool
}

func NewPresenter(dev FlipDevice, chain Chain, crtc, connector uint32, mode kms.Mode) *Presenter {
	return &Presenter{dev: dev, chain: chain, crtc: crtc, connector: connector, mode: mode}
}

// Backbuffer is the buffer the next render pass should fill.
func (p *Presenter) Backbuffer() *kms.Framebuffer {
	return p.chain.Backbuffer()
}

// Pending reports whether a queued frame awaits acknowledgement.
func (p *Presenter) Pending() bool { return p.pending }

// Queue submits the current backbuffer for display. The first queue performs
// the full mode set; every queue schedules a page flip whose completion
// event paces the next frame. Rejected while a frame is still in flight.
func (p *Presenter) Queue() error {
	if p.suspended {
		return ErrSuspended
	}
	if p.pending {
		return ErrFrameInFlight
	}
	fb := p.chain.Backbuffer()
	if !p.primed {
		if err := p.dev.SetCRTC(p.crtc, fb.ID, []uint32{p.connector}, &p.mode); err != nil {
			return err
		}
		p.primed = true
	}
	if err := p.dev.PageFlip(p.crtc, fb.ID, uint64(p.crtc)); err != nil {
		return err
	}
	p.pending = true
	p.chain.Swap()
	return nil
}

// FrameSubmitted acknowledges the vblank completion for the queued frame,
// releasing the previous buffer back to the swapchain. Must be called before
// the next Queue for this surface.
func (p *Presenter) FrameSubmitted() {
	p.pending = false
}

// Suspend parks the presenter across a session pause. Any in-flight frame is
// considered lost; the device is no longer ours to hear completions from.
func (p *Presenter) Suspend() {
	p.suspended = true
	p.pending = false
}

// Resume reactivates the presenter after the session comes back. The next
// queue performs a full mode set again since the CRTC state is unknown.
func (p *Presenter) Resume() {
	p.suspended = false
	p.primed = false
	p.pending = false
}

// Off disables the CRTC and releases the swapchain.
func (p *Presenter) Off() {
	_ = p.dev.SetCRTC(p.crtc, 0, nil, nil)
	p.chain.Destroy()
}
