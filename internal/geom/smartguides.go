/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geom

// Smart guides align a dragged field with the paper edges and the other fields.
// They are UI-agnostic and deterministic so any host can draw the same feedback.

import "math"

// SnapOptions controls which guide candidates are considered and the threshold.
type SnapOptions struct {
	// Threshold is the maximum distance in canvas pixels at which snapping occurs.
	Threshold     float64
	SnapToEdges   bool
	SnapToCenters bool
}

// Enabled reports whether any snapping candidate is switched on.
func (o SnapOptions) Enabled() bool { return o.SnapToEdges || o.SnapToCenters }

// Anchor is a static reference rect (the paper or another field).
// Higher Weight wins ties.
type Anchor struct {
	Rect   Rect
	Weight float64
}

type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

type GuideKind string

const (
	GuideEdge   GuideKind = "edge"
	GuideCenter GuideKind = "center"
)

// GuideLine is a visual guide produced by a snap. Position is the x of a vertical
// guide or the y of a horizontal one, rounded to 3 decimals.
type GuideLine struct {
	Orientation Orientation
	Kind        GuideKind
	Position    float64
	From        Pt
	To          Pt
}

type candidate struct {
	delta float64
	dist  float64
	guide GuideLine
}

// ComputeSmartGuides snaps moving against anchors independently on X and Y and
// returns the snapped rect plus the guides to render.
func ComputeSmartGuides(moving Rect, anchors []Anchor, opts SnapOptions) (Rect, []GuideLine) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	bestX := candidate{dist: math.Inf(1)}
	bestY := candidate{dist: math.Inf(1)}

	mL, mR, mT, mB := moving.X, moving.X+moving.W, moving.Y, moving.Y+moving.H
	mc := moving.Center()

	for _, a := range anchors {
		aL, aR, aT, aB := a.Rect.X, a.Rect.X+a.Rect.W, a.Rect.Y, a.Rect.Y+a.Rect.H
		ac := a.Rect.Center()
		if opts.SnapToEdges {
			consider(&bestX, mL-aL, opts.Threshold, a.Weight, vertical(aL, moving, a.Rect, GuideEdge))
			consider(&bestX, mR-aR, opts.Threshold, a.Weight, vertical(aR, moving, a.Rect, GuideEdge))
			consider(&bestX, mL-aR, opts.Threshold, a.Weight, vertical(aR, moving, a.Rect, GuideEdge))
			consider(&bestX, mR-aL, opts.Threshold, a.Weight, vertical(aL, moving, a.Rect, GuideEdge))

			consider(&bestY, mT-aT, opts.Threshold, a.Weight, horizontal(aT, moving, a.Rect, GuideEdge))
			consider(&bestY, mB-aB, opts.Threshold, a.Weight, horizontal(aB, moving, a.Rect, GuideEdge))
			consider(&bestY, mT-aB, opts.Threshold, a.Weight, horizontal(aB, moving, a.Rect, GuideEdge))
			consider(&bestY, mB-aT, opts.Threshold, a.Weight, horizontal(aT, moving, a.Rect, GuideEdge))
		}
		if opts.SnapToCenters {
			consider(&bestX, mc.X-ac.X, opts.Threshold, a.Weight, vertical(ac.X, moving, a.Rect, GuideCenter))
			consider(&bestY, mc.Y-ac.Y, opts.Threshold, a.Weight, horizontal(ac.Y, moving, a.Rect, GuideCenter))
		}
	}

	var guides []GuideLine
	snapped := moving
	if bestX.dist <= opts.Threshold {
		snapped.X = Round(moving.X-bestX.delta, 3)
		guides = append(guides, bestX.guide)
	}
	if bestY.dist <= opts.Threshold {
		snapped.Y = Round(moving.Y-bestY.delta, 3)
		guides = append(guides, bestY.guide)
	}
	return snapped, guides
}

func consider(best *candidate, delta, threshold, weight float64, g GuideLine) {
	dist := math.Abs(delta)
	if dist > threshold {
		return
	}
	if dist/math.Max(1, weight) < best.dist {
		*best = candidate{delta: delta, dist: dist, guide: g}
	}
}

func vertical(x float64, a, b Rect, kind GuideKind) GuideLine {
	x = Round(x, 3)
	return GuideLine{
		Orientation: Vertical,
		Kind:        kind,
		Position:    x,
		From:        Pt{x, math.Min(a.Y, b.Y)},
		To:          Pt{x, math.Max(a.Y+a.H, b.Y+b.H)},
	}
}

func horizontal(y float64, a, b Rect, kind GuideKind) GuideLine {
	y = Round(y, 3)
	return GuideLine{
		Orientation: Horizontal,
		Kind:        kind,
		Position:    y,
		From:        Pt{math.Min(a.X, b.X), y},
		To:          Pt{math.Max(a.X+a.W, b.X+b.W), y},
	}
}
