/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package geom holds canvas geometry for the template designer: rectangles in canvas
// pixels, field footprints, bounds clamping and smart-guide snapping.
package geom

import (
	"math"
	"unicode/utf8"

	"reportdesigner/internal/domain"
)

// Pt is a point in canvas pixels.
type Pt struct{ X, Y float64 }

// Rect is an axis-aligned rectangle defined by its top-left corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

func (r Rect) Min() Pt    { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt    { return Pt{r.X + r.W, r.Y + r.H} }
func (r Rect) Center() Pt { return Pt{r.X + r.W/2, r.Y + r.H/2} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Translate returns r moved by dx,dy.
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.W, o.X+o.W)
	maxY := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// ClampPoint limits p to the closed range [lo, hi] on both axes.
// If hi is below lo on an axis, lo wins. NaN maps to lo.
func ClampPoint(p, lo, hi Pt) Pt {
	return Pt{X: clamp(p.X, lo.X, hi.X), Y: clamp(p.Y, lo.Y, hi.Y)}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// Round rounds v to n decimal places deterministically.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// Approximate glyph advance as a fraction of the font size for label width estimates.
const avgGlyphAdvance = 0.55

// Footprints of kinds whose size does not depend on the label.
const (
	chartWidth     = 220
	chartHeight    = 160
	textareaWidth  = 260
	textareaHeight = 90
	valueSlotWidth = 120
	checkboxSize   = 14
)

// FieldBox estimates the on-canvas footprint of a field. Hosts use it for hit-testing
// and snapping; previews use it for placeholder sizes.
func FieldBox(f domain.Field) Rect {
	fs := float64(f.FontSize)
	if fs <= 0 {
		fs = domain.DefaultFontSize
	}
	labelW := LabelWidth(f)
	lineH := math.Ceil(fs * 1.4)
	switch f.Type {
	case domain.KindPieChart, domain.KindBarChart:
		h := float64(chartHeight)
		if f.ShowLabel {
			h += lineH
		}
		return R(f.X, f.Y, chartWidth, h)
	case domain.KindTextarea:
		h := float64(textareaHeight)
		if f.ShowLabel {
			h += lineH
		}
		return R(f.X, f.Y, math.Max(textareaWidth, labelW), h)
	case domain.KindCheckbox:
		return R(f.X, f.Y, checkboxSize+6+labelW, math.Max(lineH, checkboxSize))
	case domain.KindHeading:
		hs := fs * 1.5
		w := float64(utf8.RuneCountInString(f.Label)) * hs * avgGlyphAdvance
		return R(f.X, f.Y, math.Max(w, hs), math.Ceil(hs*1.4))
	default:
		return R(f.X, f.Y, labelW+valueSlotWidth, lineH)
	}
}

// LabelWidth estimates the width of f's label including its trailing gap. It is zero
// when the label is hidden or empty.
func LabelWidth(f domain.Field) float64 {
	if !f.ShowLabel {
		return 0
	}
	fs := float64(f.FontSize)
	if fs <= 0 {
		fs = domain.DefaultFontSize
	}
	w := float64(utf8.RuneCountInString(f.Label)) * fs * avgGlyphAdvance
	if w > 0 {
		w += fs / 2
	}
	return w
}

// ValueSlotWidth is the width of the blank a value is written into.
const ValueSlotWidth = valueSlotWidth
