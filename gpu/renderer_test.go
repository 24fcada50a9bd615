package gpu

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
)

func TestHueToRGB(t *testing.T) {
	cases := []struct {
		hue     float64
		r, g, b float64
	}{
		{0, 1, 0, 0},
		{120, 0, 1, 0},
		{240, 0, 0, 1},
		{360, 1, 0, 0},
		{420, 0, 1, 0}, // wraps
	}
	for _, c := range cases {
		r, g, b := HueToRGB(c.hue)
		if r != c.r || g != c.g || b != c.b {
			t.Errorf("hue %.0f gave (%f %f %f), want (%f %f %f)", c.hue, r, g, b, c.r, c.g, c.b)
		}
	}
}

func TestPackPixel(t *testing.T) {
	if got := packPixel(kms.Depth24, 1, 0, 0); got != 0x00ff0000 {
		t.Errorf("depth24 red packed as %#08x", got)
	}
	if got := packPixel(kms.Depth30, 1, 0, 0); got != 0x3ff<<20 {
		t.Errorf("depth30 red packed as %#08x", got)
	}
	if got := packPixel(kms.Depth24, 2, -1, 0.5); got != 0x00ff0080 {
		t.Errorf("clamping broken: %#08x", got)
	}
}

// testFB builds a memory-only framebuffer with a pitch wider than the row to
// catch code that ignores the stride.
func testFB(w, h int) *kms.Framebuffer {
	pitch := w*4 + 16
	return &kms.Framebuffer{
		Width:  uint32(w),
		Height: uint32(h),
		Pitch:  uint32(pitch),
		Depth:  kms.Depth24,
		Data:   make([]byte, pitch*h),
	}
}

func pixelAt(fb *kms.Framebuffer, x, y int) uint32 {
	off := y*int(fb.Pitch) + x*4
	return binary.LittleEndian.Uint32(fb.Data[off : off+4])
}

func TestFillHonorsPitch(t *testing.T) {
	fb := testFB(5, 3)
	r := newRenderer(kms.DeviceNode{})
	r.RenderPass(fb, Color{R: 1, A: 1}, nil)

	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			if got := pixelAt(fb, x, y); got != 0x00ff0000 {
				t.Fatalf("pixel (%d,%d) is %#08x, want red", x, y, got)
			}
		}
	}
	// the padding past each row stays untouched
	if got := fb.Data[5*4]; got != 0 {
		t.Errorf("row padding was written: %#02x", got)
	}
}

func TestBlitBlendsAndClips(t *testing.T) {
	fb := testFB(4, 4)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})      // opaque red
	img.SetRGBA(1, 0, color.RGBA{A: 0})                // fully transparent
	img.SetRGBA(0, 1, color.RGBA{B: 128, A: 128})      // half blue, premultiplied
	img.SetRGBA(1, 1, color.RGBA{G: 255, A: 255})      // opaque green

	r := newRenderer(kms.DeviceNode{})
	// position partially off the top-left corner
	r.RenderPass(fb, Color{A: 1}, []RenderElement{{Image: img, X: -1, Y: -1}})

	// only the (1,1) source pixel lands on screen, at (0,0)
	if got := pixelAt(fb, 0, 0); got != 0x0000ff00 {
		t.Errorf("clipped blit wrote %#08x at origin, want green", got)
	}
	if got := pixelAt(fb, 1, 0); got != 0 {
		t.Errorf("pixel outside the element changed: %#08x", got)
	}

	// blend over white: half-alpha blue keeps half the backdrop
	r.RenderPass(fb, Color{R: 1, G: 1, B: 1, A: 1}, []RenderElement{{Image: img, X: 0, Y: 0}})
	got := pixelAt(fb, 0, 1)
	gotR := got >> 16 & 0xff
	gotB := got & 0xff
	if gotR < 0x7e || gotR > 0x82 {
		t.Errorf("blended red channel %#02x, want ~0x80", gotR)
	}
	if gotB < 0xfe {
		t.Errorf("blended blue channel %#02x, want ~0xff", gotB)
	}
	// the transparent source pixel leaves the clear color alone
	if got := pixelAt(fb, 1, 0); got != 0x00ffffff {
		t.Errorf("transparent pixel overwrote the backdrop: %#08x", got)
	}
}
