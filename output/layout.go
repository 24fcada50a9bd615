// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package output

// Layout is the shared display-space model: outputs tiled left-to-right in
// the order they appear. Shared with the windowing-protocol layer for
// geometry queries and pointer clamping.
type Layout struct {
	outputs []*Output
}

func NewLayout() *Layout {
	return &Layout{}
}

// NextPosition computes where the next output goes: the sum of the widths
// of all currently mapped outputs, at y 0.
func (l *Layout) NextPosition() (int, int) {
	x := 0
	for _, o := range l.outputs {
		x += o.Width()
	}
	return x, 0
}

// Map places the output at the next free position and adds it to the model.
func (l *Layout) Map(o *Output) {
	o.X, o.Y = l.NextPosition()
	l.outputs = append(l.outputs, o)
}

// Unmap removes an output by name. Remaining outputs keep their positions.
func (l *Layout) Unmap(name string) {
	for i, o := range l.outputs {
		if o.Name == name {
			l.outputs = append(l.outputs[:i], l.outputs[i+1:]...)
			return
		}
	}
}

// Find returns the mapped output with the given name, or nil.
func (l *Layout) Find(name string) *Output {
	for _, o := range l.outputs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Outputs returns the mapped outputs in placement order.
func (l *Layout) Outputs() []*Output {
	return l.outputs
}

// Extent is the bounding box of all mapped outputs, used to clamp the
// pointer. Falls back to a 1080p box while no output is mapped so the
// pointer stays finite during bring-up.
func (l *Layout) Extent() (float64, float64) {
	if len(l.outputs) == 0 {
		return 1920, 1080
	}
	var w, h float64
	for _, o := range l.outputs {
		if right := float64(o.X + o.Width()); right > w {
			w = right
		}
		if bottom := float64(o.Y + o.Height()); bottom > h {
			h = bottom
		}
	}
	return w, h
}
