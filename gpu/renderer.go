// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpu

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
)

// Color is a normalized RGBA clear color.
type Color struct {
	R, G, B, A float64
}

// HueToRGB converts a hue in degrees to RGB at full saturation and value.
// Driving the clear color from a sweeping hue keeps every frame damaged,
// which keeps the vblank cycle alive during bring-up.
func HueToRGB(hue float64) (float64, float64, float64) {
	h := math.Mod(hue, 360) / 60
	x := 1 - math.Abs(math.Mod(h, 2)-1)
	switch int(h) {
	case 0:
		return 1, x, 0
	case 1:
		return x, 1, 0
	case 2:
		return 0, 1, x
	case 3:
		return 0, x, 1
	case 4:
		return x, 0, 1
	default:
		return 1, 0, x
	}
}

// RenderElement is one drawable unit: a memory-backed image positioned at a
// physical pixel coordinate. Today the only element is the cursor.
type RenderElement struct {
	Image *image.RGBA
	X, Y  int
}

// Renderer is a software render context bound to one render node. A render
// pass never blocks on vblank; it produces a completed backbuffer.
type Renderer struct {
	node kms.DeviceNode
}

func newRenderer(node kms.DeviceNode) *Renderer {
	return &Renderer{node: node}
}

// Node returns the render node this context draws on.
func (r *Renderer) Node() kms.DeviceNode { return r.node }

// RenderPass clears the framebuffer to the given color and composites the
// elements over it, honoring the buffer's registered pixel depth.
func (r *Renderer) RenderPass(fb *kms.Framebuffer, clear Color, elements []RenderElement) {
	r.fill(fb, clear)
	for _, el := range elements {
		if el.Image != nil {
			r.blit(fb, el, clear)
		}
	}
}

func (r *Renderer) fill(fb *kms.Framebuffer, c Color) {
	pixel := packPixel(fb.Depth, c.R, c.G, c.B)
	var row [4]byte
	binary.LittleEndian.PutUint32(row[:], pixel)

	width := int(fb.Width) * 4
	for y := 0; y < int(fb.Height); y++ {
		line := fb.Data[y*int(fb.Pitch) : y*int(fb.Pitch)+width]
		// seed the first pixel, then double up
		copy(line[:4], row[:])
		for filled := 4; filled < width; filled *= 2 {
			copy(line[filled:], line[:filled])
		}
	}
}

// blit alpha-blends an RGBA element over the already-cleared framebuffer,
// clipping to the buffer bounds.
func (r *Renderer) blit(fb *kms.Framebuffer, el RenderElement, under Color) {
	bounds := el.Image.Bounds()
	for sy := 0; sy < bounds.Dy(); sy++ {
		dy := el.Y + sy
		if dy < 0 || dy >= int(fb.Height) {
			continue
		}
		for sx := 0; sx < bounds.Dx(); sx++ {
			dx := el.X + sx
			if dx < 0 || dx >= int(fb.Width) {
				continue
			}
			c := el.Image.RGBAAt(bounds.Min.X+sx, bounds.Min.Y+sy)
			if c.A == 0 {
				continue
			}
			a := float64(c.A) / 255
			sr := float64(c.R) / 255
			sg := float64(c.G) / 255
			sb := float64(c.B) / 255
			or := sr + under.R*(1-a)
			og := sg + under.G*(1-a)
			ob := sb + under.B*(1-a)
			off := dy*int(fb.Pitch) + dx*4
			binary.LittleEndian.PutUint32(fb.Data[off:off+4], packPixel(fb.Depth, or, og, ob))
		}
	}
}

// packPixel encodes a normalized color for the framebuffer's depth:
// xrgb2101010 for depth 30, xrgb8888 for depth 24.
func packPixel(depth uint32, r, g, b float64) uint32 {
	switch depth {
	case kms.Depth30:
		return channel(r, 1023)<<20 | channel(g, 1023)<<10 | channel(b, 1023)
	default:
		return channel(r, 255)<<16 | channel(g, 255)<<8 | channel(b, 255)
	}
}

func channel(v float64, max float64) uint32 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint32(v*max + 0.5)
}
