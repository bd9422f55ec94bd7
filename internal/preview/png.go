/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"reportdesigner/internal/domain"
	"reportdesigner/internal/geom"
	"reportdesigner/internal/telemetry"
)

// Render rasterizes doc onto a white page of its paper size times opt.Scale.
func Render(doc domain.TemplateDocument, opt Options) *image.RGBA {
	s := opt.scale()
	cw, ch := doc.PaperSize.Dimensions()
	img := image.NewRGBA(image.Rect(0, 0, int(math.Round(cw*s)), int(math.Round(ch*s))))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: paperColor}, image.Point{}, draw.Src)
	for _, o := range displayList(doc, opt) {
		drawPNG(img, s, o)
	}
	return img
}

// WritePNG encodes Render(doc, opt) as PNG.
func WritePNG(w io.Writer, doc domain.TemplateDocument, opt Options) error {
	if err := png.Encode(w, Render(doc, opt)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	telemetry.Event(telemetry.EventPreviewExported, map[string]any{"format": "png", "fields": len(doc.Fields)})
	return nil
}

func px(v, s float64) int { return int(math.Round(v * s)) }

func drawPNG(img *image.RGBA, s float64, o op) {
	switch o.kind {
	case opText:
		// basicfont has a single size; bold is faked with a one pixel offset
		drawText(img, px(o.x, s), px(o.y, s), o.text, o.stroke)
		if o.bold {
			drawText(img, px(o.x, s)+1, px(o.y, s), o.text, o.stroke)
		}
	case opLine:
		drawLine(img, px(o.x, s), px(o.y, s), px(o.x2, s), px(o.y2, s), o.stroke, o.dashed)
	case opRect:
		x0, y0 := px(o.rect.X, s), px(o.rect.Y, s)
		x1, y1 := px(o.rect.X+o.rect.W, s)-1, px(o.rect.Y+o.rect.H, s)-1
		if o.filled {
			fillRect(img, x0, y0, x1, y1, o.fill)
		}
		strokeRect(img, x0, y0, x1, y1, o.stroke, o.dashed)
	case opPoly:
		scaled := make([]geom.Pt, len(o.pts))
		for i, p := range o.pts {
			scaled[i] = geom.Pt{X: p.X * s, Y: p.Y * s}
		}
		if o.filled {
			fillPolygon(img, scaled, o.fill)
		}
	}
}

func drawText(img *image.RGBA, x, y int, text string, col color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawLine is Bresenham; dashed lines skip every other run of four pixels.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA, dashed bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for step := 0; ; step++ {
		if !dashed || (step/4)%2 == 0 {
			img.SetRGBA(x0, y0, col)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA, dashed bool) {
	drawLine(img, x0, y0, x1, y0, col, dashed)
	drawLine(img, x0, y1, x1, y1, col, dashed)
	drawLine(img, x0, y0, x0, y1, col, dashed)
	drawLine(img, x1, y0, x1, y1, col, dashed)
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	r := image.Rect(x0, y0, x1+1, y1+1).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// fillPolygon fills pixels whose centres fall inside pts (even-odd rule).
func fillPolygon(img *image.RGBA, pts []geom.Pt, col color.RGBA) {
	if len(pts) < 3 {
		return
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	b := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1).Intersect(img.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if inside(pts, float64(x)+0.5, float64(y)+0.5) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

func inside(pts []geom.Pt, x, y float64) bool {
	in := false
	j := len(pts) - 1
	for i := range pts {
		pi, pj := pts[i], pts[j]
		if (pi.Y > y) != (pj.Y > y) && x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			in = !in
		}
		j = i
	}
	return in
}
