// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cursor

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// Cursor is the decoded pointer image, loaded once and cached; the frame
// pipeline builds a render element from it every frame.
type Cursor struct {
	img  *image.RGBA
	hotX int
	hotY int
}

// Load resolves a cursor image: a PNG named cursor.png under the app's XDG
// config or data dirs if present, else the built-in arrow. The image is
// scaled by the given factor (the pipeline uses 2 for visibility).
func Load(scale int) *Cursor {
	if scale < 1 {
		scale = 1
	}
	img, hotX, hotY := themeImage()
	if img == nil {
		img, hotX, hotY = builtinArrow()
	}
	if scale > 1 {
		img = scaleImage(img, scale)
		hotX *= scale
		hotY *= scale
	}
	logrus.WithFields(logrus.Fields{
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
		"scale":  scale,
	}).Debugln("Cursor image loaded")
	return &Cursor{img: img, hotX: hotX, hotY: hotY}
}

// Image returns the cached decoded cursor image.
func (c *Cursor) Image() *image.RGBA { return c.img }

// Hotspot returns the pixel within the image that tracks the pointer.
func (c *Cursor) Hotspot() (int, int) { return c.hotX, c.hotY }

func themeImage() (*image.RGBA, int, int) {
	candidates := []string{filepath.Join(xdg.ConfigHome, "nuthatch", "cursor.png")}
	for _, dir := range xdg.DataDirs {
		candidates = append(candidates, filepath.Join(dir, "nuthatch", "cursor.png"))
	}
	for _, path := range candidates {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		decoded, err := png.Decode(f)
		f.Close()
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warnln("Unusable cursor image")
			continue
		}
		rgba := image.NewRGBA(decoded.Bounds())
		draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
		return rgba, 0, 0
	}
	return nil, 0, 0
}

func scaleImage(src *image.RGBA, scale int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// arrowPattern is the fallback pointer: '#' outline, '.' fill.
var arrowPattern = []string{
	"#           ",
	"##          ",
	"#.#         ",
	"#..#        ",
	"#...#       ",
	"#....#      ",
	"#.....#     ",
	"#......#    ",
	"#.......#   ",
	"#........#  ",
	"#.....##### ",
	"#..#..#     ",
	"#.# #..#    ",
	"##  #..#    ",
	"#    #..#   ",
	"     #..#   ",
	"      ##    ",
}

func builtinArrow() (*image.RGBA, int, int) {
	height := len(arrowPattern)
	width := 0
	for _, row := range arrowPattern {
		if len(row) > width {
			width = len(row)
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y, row := range arrowPattern {
		for x := 0; x < len(row); x++ {
			switch row[x] {
			case '#':
				img.SetRGBA(x, y, color.RGBA{A: 255})
			case '.':
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img, 0, 0
}
