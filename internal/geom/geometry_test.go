/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geom

import (
	"math"
	"testing"

	"reportdesigner/internal/domain"
)

func TestRectUnionAndContains(t *testing.T) {
	a := R(10, 10, 20, 20)
	b := R(25, 0, 10, 50)
	u := a.Union(b)
	if u != R(10, 0, 25, 50) {
		t.Fatalf("unexpected union: %+v", u)
	}
	if !u.Contains(Pt{30, 45}) || u.Contains(Pt{5, 5}) {
		t.Fatalf("contains mismatch for %+v", u)
	}
	if c := a.Center(); c != (Pt{20, 20}) {
		t.Fatalf("center: %+v", c)
	}
	if m := a.Translate(5, -5); m.Min() != (Pt{15, 5}) || m.Max() != (Pt{35, 25}) {
		t.Fatalf("translate: %+v", m)
	}
}

func TestClampPoint(t *testing.T) {
	lo, hi := Pt{0, 0}, Pt{774, 1103}
	cases := []struct{ in, want Pt }{
		{Pt{-5, 40}, Pt{0, 40}},
		{Pt{900, 2000}, Pt{774, 1103}},
		{Pt{100, 100}, Pt{100, 100}},
	}
	for _, c := range cases {
		if got := ClampPoint(c.in, lo, hi); got != c.want {
			t.Fatalf("ClampPoint(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	if got := ClampPoint(Pt{math.NaN(), 40}, lo, hi); got != (Pt{0, 40}) {
		t.Fatalf("NaN should clamp to the lower bound, got %v", got)
	}
	// inverted range: lower bound wins
	if got := ClampPoint(Pt{50, 50}, Pt{10, 10}, Pt{0, 0}); got != (Pt{10, 10}) {
		t.Fatalf("inverted range: %v", got)
	}
}

func TestRound(t *testing.T) {
	if Round(1.23456, 3) != 1.235 {
		t.Fatalf("round up failed")
	}
	if Round(2.5, -1) != 2.5 {
		t.Fatalf("negative places should be identity")
	}
}

func TestFieldBoxPerKind(t *testing.T) {
	base := domain.Field{X: 50, Y: 60, FontSize: 14, ShowLabel: true, Label: "Chart"}

	pie := base
	pie.Type = domain.KindPieChart
	if b := FieldBox(pie); b.X != 50 || b.Y != 60 || b.W != chartWidth || b.H <= chartHeight {
		t.Fatalf("pie box: %+v", b)
	}
	pie.ShowLabel = false
	if b := FieldBox(pie); b.H != chartHeight {
		t.Fatalf("pie without label should be exactly chart height, got %+v", b)
	}

	ta := base
	ta.Type = domain.KindTextarea
	if b := FieldBox(ta); b.W < textareaWidth {
		t.Fatalf("textarea too narrow: %+v", b)
	}

	txt := base
	txt.Type = domain.KindText
	withLabel := FieldBox(txt)
	txt.ShowLabel = false
	without := FieldBox(txt)
	if withLabel.W <= without.W || without.W != valueSlotWidth {
		t.Fatalf("label should widen text box: with=%+v without=%+v", withLabel, without)
	}

	cb := base
	cb.Type = domain.KindCheckbox
	cb.ShowLabel = false
	if b := FieldBox(cb); b.W != checkboxSize+6 {
		t.Fatalf("bare checkbox width: %+v", b)
	}

	unknown := base
	unknown.Type = "signature"
	unknown.FontSize = 0
	if b := FieldBox(unknown); b.W <= 0 || b.H <= 0 {
		t.Fatalf("unknown kind must still have a footprint: %+v", b)
	}
}

func TestComputeSmartGuides_SnapToPaperEdges(t *testing.T) {
	paper := R(0, 0, 794, 1123)
	moving := R(3, 4, 80, 20)
	snapped, guides := ComputeSmartGuides(moving, []Anchor{{Rect: paper, Weight: 1}}, SnapOptions{Threshold: 6, SnapToEdges: true})
	if snapped.X != 0 || snapped.Y != 0 {
		t.Fatalf("expected snap to 0,0, got %+v", snapped)
	}
	var vOK, hOK bool
	for _, g := range guides {
		if g.Orientation == Vertical && g.Position == 0 {
			vOK = true
		}
		if g.Orientation == Horizontal && g.Position == 0 {
			hOK = true
		}
	}
	if !vOK || !hOK {
		t.Fatalf("expected guides at x=0 (%v) and y=0 (%v)", vOK, hOK)
	}
}

func TestComputeSmartGuides_AlignWithOtherField(t *testing.T) {
	other := R(200, 300, 120, 20)
	moving := R(203, 500, 120, 20)
	snapped, guides := ComputeSmartGuides(moving, []Anchor{{Rect: other, Weight: 1}}, SnapOptions{Threshold: 5, SnapToEdges: true})
	if snapped.X != 200 {
		t.Fatalf("expected left edges aligned at 200, got %v", snapped.X)
	}
	if snapped.Y != 500 {
		t.Fatalf("y is far from any anchor and must not move, got %v", snapped.Y)
	}
	if len(guides) != 1 || guides[0].Orientation != Vertical || guides[0].Kind != GuideEdge {
		t.Fatalf("expected one vertical edge guide, got %+v", guides)
	}
	if guides[0].From.Y != 300 || guides[0].To.Y != 520 {
		t.Fatalf("guide should span both rects: %+v", guides[0])
	}
}

func TestComputeSmartGuides_Centers(t *testing.T) {
	paper := R(0, 0, 200, 100)
	moving := R(200/2-50-2, 100/2-30-3, 100, 60)
	snapped, guides := ComputeSmartGuides(moving, []Anchor{{Rect: paper, Weight: 1}}, SnapOptions{Threshold: 5, SnapToCenters: true})
	if snapped.X != 50 || snapped.Y != 20 {
		t.Fatalf("expected center snap to 50,20 got %+v", snapped)
	}
	for _, g := range guides {
		if g.Kind != GuideCenter {
			t.Fatalf("expected only center guides, got %+v", g)
		}
	}
}

func TestComputeSmartGuides_NoSnapOutsideThreshold(t *testing.T) {
	paper := R(0, 0, 794, 1123)
	moving := R(100, 100, 50, 20)
	snapped, guides := ComputeSmartGuides(moving, []Anchor{{Rect: paper, Weight: 1}}, SnapOptions{Threshold: 4, SnapToEdges: true, SnapToCenters: true})
	if snapped != moving || len(guides) != 0 {
		t.Fatalf("expected no snapping, got %+v guides=%v", snapped, guides)
	}
	if (SnapOptions{}).Enabled() {
		t.Fatalf("zero options must be disabled")
	}
}
