// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package output

import (
	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// Output is the logical description of one display, shared read-mostly with
// the windowing-protocol layer once configured.
type Output struct {
	// Name is "<interface>-<id>", e.g. "HDMI-A-1".
	Name         string
	PhysWidthMM  uint32
	PhysHeightMM uint32
	Subpixel     string
	Mode         kms.Mode
	// Modes is everything the connector advertised, for the tool mode.
	Modes []kms.Mode
	X, Y  int
}

// Width is the output's extent in layout space.
func (o *Output) Width() int { return int(o.Mode.Width) }

// Height is the output's vertical extent in layout space.
func (o *Output) Height() int { return int(o.Mode.Height) }

// PublishFunc exposes a configured output to protocol clients. Owned by the
// windowing-protocol layer; the backend only calls it.
type PublishFunc func(*Output)

// SelectMode picks the display mode for a connector deterministically: the
// first mode flagged preferred, else the first mode listed. Fixed for the
// surface's lifetime.
func SelectMode(modes []kms.Mode) (kms.Mode, bool) {
	if len(modes) == 0 {
		return kms.Mode{}, false
	}
	preferred := sliceutils.Filter(modes, func(m kms.Mode) bool { return m.Preferred })
	if len(preferred) > 0 {
		return preferred[0], true
	}
	return modes[0], true
}

// subpixelNames maps the kernel's subpixel enum to the names clients see.
var subpixelNames = map[uint32]string{
	1: "unknown",
	2: "horizontal-rgb",
	3: "horizontal-bgr",
	4: "vertical-rgb",
	5: "vertical-bgr",
	6: "none",
}

// SubpixelName translates a kernel subpixel code.
func SubpixelName(code uint32) string {
	if name, ok := subpixelNames[code]; ok {
		return name
	}
	return "unknown"
}
