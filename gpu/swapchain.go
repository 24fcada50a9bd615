// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpu

import (
	"fmt"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"github.com/sirupsen/logrus"
)

// formatPreference is the per-channel depth order used when building a
// swapchain: 10-bit first, 8-bit fallback.
var formatPreference = []uint32{kms.Depth30, kms.Depth24}

// Swapchain is the rotating pair of scanout buffers for one output: one
// frame displays while the next is drawn into the other.
type Swapchain struct {
	dev   *kms.Device
	bufs  [2]*kms.Framebuffer
	front int
	Depth uint32
}

// NewSwapchain allocates both buffers at the best depth the device accepts.
func NewSwapchain(dev *kms.Device, width, height uint32) (*Swapchain, error) {
	var lastErr error
	for _, depth := range formatPreference {
		chain, err := tryChain(dev, width, height, depth)
		if err == nil {
			if depth != formatPreference[0] {
				logrus.WithFields(logrus.Fields{
					"device": dev.Path(),
					"depth":  depth,
				}).Debugln("Falling back to 8-bit scanout format")
			}
			return chain, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable scanout format: %w", lastErr)
}

func tryChain(dev *kms.Device, width, height, depth uint32) (*Swapchain, error) {
	chain := &Swapchain{dev: dev, Depth: depth}
	for i := range chain.bufs {
		fb, err := dev.CreateFramebuffer(width, height, depth)
		if err != nil {
			chain.Destroy()
			return nil, err
		}
		chain.bufs[i] = fb
	}
	return chain, nil
}

// Backbuffer is the buffer the next render pass draws into.
func (s *Swapchain) Backbuffer() *kms.Framebuffer {
	return s.bufs[1-s.front]
}

// Swap commits the backbuffer as the new front. Called once the buffer has
// been queued for display; the old front becomes drawable again only after
// the queued frame is acknowledged.
func (s *Swapchain) Swap() {
	s.front = 1 - s.front
}

// Destroy releases both buffers.
func (s *Swapchain) Destroy() {
	for i, fb := range s.bufs {
		if fb != nil {
			fb.Destroy()
			s.bufs[i] = nil
		}
	}
}
