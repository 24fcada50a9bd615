// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import "fmt"

// Mode is a display timing descriptor. Selected once per connector-connect
// and fixed for the surface's lifetime.
type Mode struct {
	Width      uint16
	Height     uint16
	RefreshMHz uint32 // millihertz
	Preferred  bool
	Name       string

	raw modeInfo
}

func modeFromInfo(raw modeInfo) Mode {
	return Mode{
		Width:      raw.HDisplay,
		Height:     raw.VDisplay,
		RefreshMHz: refreshMillihertz(raw),
		Preferred:  raw.Type&modeTypePreferred != 0,
		Name:       cString(raw.Name[:]),
		raw:        raw,
	}
}

// refreshMillihertz prefers the vrefresh the kernel reports (whole Hz) and
// falls back to deriving it from the pixel clock and totals.
func refreshMillihertz(raw modeInfo) uint32 {
	if raw.VRefresh != 0 {
		return raw.VRefresh * 1000
	}
	total := uint64(raw.HTotal) * uint64(raw.VTotal)
	if total == 0 {
		return 0
	}
	// clock is in kHz
	return uint32(uint64(raw.Clock) * 1_000_000 / total)
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d.%03dHz", m.Width, m.Height, m.RefreshMHz/1000, m.RefreshMHz%1000)
}

// NewMode builds a synthetic mode. Used by the probe tool's summaries and by
// tests; real modes come from connector probing.
func NewMode(width, height uint16, refreshMHz uint32, preferred bool) Mode {
	raw := modeInfo{
		HDisplay: width,
		VDisplay: height,
		VRefresh: refreshMHz / 1000,
	}
	if preferred {
		raw.Type = modeTypePreferred
	}
	name := fmt.Sprintf("%dx%d", width, height)
	copy(raw.Name[:], name)
	m := modeFromInfo(raw)
	m.RefreshMHz = refreshMHz
	return m
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
