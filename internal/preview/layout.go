/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package preview renders a template document read-only, with a distinct placeholder
// for every field kind. The same display list feeds the PDF and PNG writers.
package preview

import (
	"image/color"
	"math"
	"strings"

	"reportdesigner/internal/domain"
	"reportdesigner/internal/geom"
)

type opKind int

const (
	opText opKind = iota
	opLine
	opRect
	opPoly
)

// op is one drawing primitive in canvas pixels.
type op struct {
	kind   opKind
	x, y   float64 // text baseline origin, line start
	x2, y2 float64 // line end
	rect   geom.Rect
	pts    []geom.Pt
	text   string
	size   float64
	bold   bool
	stroke color.RGBA
	fill   color.RGBA
	filled bool
	dashed bool
}

var (
	inkColor   = color.RGBA{0x22, 0x22, 0x22, 0xff}
	mutedColor = color.RGBA{0x99, 0x99, 0x99, 0xff}
	guideColor = color.RGBA{0x4a, 0x90, 0xe2, 0xff}
	paperColor = color.RGBA{0xff, 0xff, 0xff, 0xff}
	chartFills = []color.RGBA{
		{0x4a, 0x90, 0xe2, 0xff},
		{0xf5, 0xa6, 0x23, 0xff},
		{0x7e, 0xd3, 0x21, 0xff},
		{0xd0, 0x02, 0x1b, 0xff},
	}
)

// sample data for chart placeholders
var (
	pieShares  = []float64{0.45, 0.30, 0.25}
	barHeights = []float64{0.50, 0.80, 0.35, 0.65}
)

// Options control both writers.
type Options struct {
	// Scale multiplies canvas pixels for PNG output. Zero means 1.
	Scale float64
	// ShowBounds outlines every field's estimated footprint.
	ShowBounds bool
}

func (o Options) scale() float64 {
	if o.Scale <= 0 {
		return 1
	}
	return o.Scale
}

// displayList lays out every field of doc in document order.
func displayList(doc domain.TemplateDocument, opt Options) []op {
	var ops []op
	for _, f := range doc.Fields {
		if f.FontSize <= 0 {
			f.FontSize = domain.DefaultFontSize
		}
		ops = append(ops, domain.Dispatch[[]op](f, placeholder{})...)
		if opt.ShowBounds {
			ops = append(ops, op{kind: opRect, rect: geom.FieldBox(f), stroke: guideColor, dashed: true})
		}
	}
	return ops
}

// placeholder draws the stand-in for each field kind.
type placeholder struct{}

var _ domain.KindVisitor[[]op] = placeholder{}

func fontSize(f domain.Field) float64 { return float64(f.FontSize) }

func lineHeight(f domain.Field) float64 { return math.Ceil(fontSize(f) * 1.4) }

func labelOp(f domain.Field, x, y float64) op {
	return op{kind: opText, x: x, y: y + fontSize(f), text: f.Label, size: fontSize(f), bold: f.Bold, stroke: inkColor}
}

// valueSlot is the label followed by an underlined blank with a muted hint.
func valueSlot(f domain.Field, hint string) []op {
	var ops []op
	if f.ShowLabel && f.Label != "" {
		ops = append(ops, labelOp(f, f.X, f.Y))
	}
	x0 := f.X + geom.LabelWidth(f)
	base := f.Y + lineHeight(f) - 2
	ops = append(ops,
		op{kind: opLine, x: x0, y: base, x2: x0 + geom.ValueSlotWidth, y2: base, stroke: inkColor},
		op{kind: opText, x: x0 + 4, y: f.Y + fontSize(f), text: hint, size: fontSize(f) * 0.8, stroke: mutedColor},
	)
	return ops
}

// body returns the top of the area below an optional label line.
func body(f domain.Field, ops *[]op) float64 {
	if !f.ShowLabel || f.Label == "" {
		if f.ShowLabel {
			return f.Y + lineHeight(f)
		}
		return f.Y
	}
	*ops = append(*ops, labelOp(f, f.X, f.Y))
	return f.Y + lineHeight(f)
}

func (placeholder) Text(f domain.Field) []op   { return valueSlot(f, "text") }
func (placeholder) Number(f domain.Field) []op { return valueSlot(f, "0.00") }
func (placeholder) Date(f domain.Field) []op   { return valueSlot(f, "YYYY-MM-DD") }

func (placeholder) Checkbox(f domain.Field) []op {
	const size = 14
	top := f.Y + (lineHeight(f)-size)/2
	if top < f.Y {
		top = f.Y
	}
	ops := []op{{kind: opRect, rect: geom.R(f.X, top, size, size), stroke: inkColor}}
	if f.ShowLabel && f.Label != "" {
		ops = append(ops, labelOp(f, f.X+size+6, f.Y))
	}
	return ops
}

func (placeholder) Textarea(f domain.Field) []op {
	var ops []op
	top := body(f, &ops)
	box := geom.FieldBox(f)
	area := geom.R(f.X, top, box.W, 90)
	ops = append(ops, op{kind: opRect, rect: area, stroke: inkColor})
	for i := 1; i <= 3; i++ {
		y := top + float64(i)*22
		ops = append(ops, op{kind: opLine, x: area.X + 6, y: y, x2: area.X + area.W - 6, y2: y, stroke: mutedColor})
	}
	return ops
}

func (placeholder) Heading(f domain.Field) []op {
	size := fontSize(f) * 1.5
	return []op{{kind: opText, x: f.X, y: f.Y + size, text: f.Label, size: size, bold: true, stroke: inkColor}}
}

func (placeholder) PieChart(f domain.Field) []op {
	var ops []op
	top := body(f, &ops)
	cx, cy, r := f.X+110, top+80, 70.0
	start := -math.Pi / 2
	for i, share := range pieShares {
		end := start + share*2*math.Pi
		ops = append(ops, op{kind: opPoly, pts: wedge(cx, cy, r, start, end), fill: chartFills[i%len(chartFills)], filled: true, stroke: paperColor})
		start = end
	}
	return ops
}

// wedge approximates a pie slice as a polygon anchored at the centre.
func wedge(cx, cy, r, a0, a1 float64) []geom.Pt {
	steps := int(math.Ceil((a1 - a0) / (math.Pi / 24)))
	if steps < 1 {
		steps = 1
	}
	pts := []geom.Pt{{X: cx, Y: cy}}
	for i := 0; i <= steps; i++ {
		a := a0 + (a1-a0)*float64(i)/float64(steps)
		pts = append(pts, geom.Pt{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)})
	}
	return pts
}

func (placeholder) BarChart(f domain.Field) []op {
	var ops []op
	top := body(f, &ops)
	left, bottom := f.X+20, top+150
	ops = append(ops,
		op{kind: opLine, x: left, y: top + 10, x2: left, y2: bottom, stroke: inkColor},
		op{kind: opLine, x: left, y: bottom, x2: f.X + 210, y2: bottom, stroke: inkColor},
	)
	const barW, gap = 32.0, 14.0
	for i, h := range barHeights {
		bh := h * 130
		x := left + gap + float64(i)*(barW+gap)
		ops = append(ops, op{kind: opRect, rect: geom.R(x, bottom-bh, barW, bh), fill: chartFills[i%len(chartFills)], filled: true, stroke: chartFills[i%len(chartFills)]})
	}
	return ops
}

func (placeholder) Unknown(f domain.Field) []op {
	box := geom.FieldBox(f)
	label := f.Label
	if label == "" {
		label = domain.FallbackLabel
	}
	text := label + " (" + strings.TrimSpace(string(f.Type)) + ")"
	if f.Type == "" {
		text = label
	}
	return []op{
		{kind: opRect, rect: box, stroke: mutedColor, dashed: true},
		{kind: opText, x: box.X + 4, y: box.Y + fontSize(f), text: text, size: fontSize(f) * 0.8, stroke: mutedColor},
	}
}
