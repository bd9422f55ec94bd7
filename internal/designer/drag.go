/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package designer

import (
	"strings"
	"sync"

	"reportdesigner/internal/domain"
	"reportdesigner/internal/geom"
)

// DragState is the state of the drag machine.
type DragState int

const (
	Idle DragState = iota
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Key is a discrete keyboard input understood by the drag layer.
type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeySpace
	KeyEnter
	KeyEscape
)

// ParseKey maps host key names ("Up", "Return", "Escape", ...) to a Key.
func ParseKey(name string) Key {
	switch strings.ToLower(name) {
	case "up", "arrowup":
		return KeyUp
	case "down", "arrowdown":
		return KeyDown
	case "left", "arrowleft":
		return KeyLeft
	case "right", "arrowright":
		return KeyRight
	case "space", " ":
		return KeySpace
	case "enter", "return":
		return KeyEnter
	case "escape", "esc":
		return KeyEscape
	}
	return KeyNone
}

const (
	DefaultEdgeMargin    = 20.0
	DefaultKeyboardStep  = 10.0
	DefaultSnapThreshold = 6.0
)

type DragOptions struct {
	// EdgeMargin keeps a field origin at least this far from the right and bottom edges.
	EdgeMargin   float64
	KeyboardStep float64
	Snap         geom.SnapOptions
}

// Drag turns pointer or keyboard gestures into one committed delta per gesture.
// Only one field can be dragged at a time.
type Drag struct {
	d    *Designer
	opts DragOptions

	mu     sync.Mutex
	state  DragState
	id     string
	dx, dy float64
}

func NewDrag(d *Designer, opts DragOptions) *Drag {
	if opts.EdgeMargin <= 0 {
		opts.EdgeMargin = DefaultEdgeMargin
	}
	if opts.KeyboardStep <= 0 {
		opts.KeyboardStep = DefaultKeyboardStep
	}
	if opts.Snap.Enabled() && opts.Snap.Threshold <= 0 {
		opts.Snap.Threshold = DefaultSnapThreshold
	}
	return &Drag{d: d, opts: opts}
}

func (g *Drag) State() DragState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Target returns the field being dragged.
func (g *Drag) Target() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id, g.state == Dragging
}

// Start begins dragging id and makes it the active field. It returns false while another
// drag is in progress or when id does not exist.
func (g *Drag) Start(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Dragging {
		return false
	}
	if _, ok := g.d.Field(id); !ok {
		return false
	}
	g.d.Select(id)
	g.state, g.id, g.dx, g.dy = Dragging, id, 0, 0
	return true
}

// Move accumulates an incremental pointer delta. The model is not touched.
// Non-finite deltas are dropped.
func (g *Drag) Move(dx, dy float64) {
	if !finite(dx) || !finite(dy) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Dragging {
		return
	}
	g.dx += dx
	g.dy += dy
}

// Pending returns the dragged field at the position End would commit.
func (g *Drag) Pending() (domain.Field, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Dragging {
		return domain.Field{}, false
	}
	f, ok := g.d.Field(g.id)
	if !ok {
		return domain.Field{}, false
	}
	f.X, f.Y, _ = g.resolve(f, g.dx, g.dy)
	return f, true
}

// Guides returns the alignment guides for the pending position.
func (g *Drag) Guides() []geom.GuideLine {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Dragging || !g.opts.Snap.Enabled() {
		return nil
	}
	f, ok := g.d.Field(g.id)
	if !ok {
		return nil
	}
	_, _, guides := g.resolve(f, g.dx, g.dy)
	return guides
}

// End commits the bounded delta once and returns the moved field. It returns false when
// no drag is active or the field vanished during the gesture.
func (g *Drag) End() (domain.Field, bool) {
	g.mu.Lock()
	if g.state != Dragging {
		g.mu.Unlock()
		return domain.Field{}, false
	}
	id, dx, dy := g.id, g.dx, g.dy
	g.state, g.id, g.dx, g.dy = Idle, "", 0, 0
	f, ok := g.d.Field(id)
	if !ok {
		g.mu.Unlock()
		return domain.Field{}, false
	}
	x, y, _ := g.resolve(f, dx, dy)
	g.mu.Unlock()

	if !g.d.ApplyDelta(id, x-f.X, y-f.Y) {
		return domain.Field{}, false
	}
	return g.d.Field(id)
}

// Cancel drops the gesture without committing.
func (g *Drag) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state, g.id, g.dx, g.dy = Idle, "", 0, 0
}

// HandleKey drives the machine from the keyboard and reports whether the key was used.
// Arrows move the active field by KeyboardStep, as a complete gesture when idle or as
// part of the current drag. Space or Enter picks up and drops; Escape cancels.
func (g *Drag) HandleKey(k Key) bool {
	var dx, dy float64
	step := g.opts.KeyboardStep
	switch k {
	case KeyUp:
		dy = -step
	case KeyDown:
		dy = step
	case KeyLeft:
		dx = -step
	case KeyRight:
		dx = step
	case KeySpace, KeyEnter:
		if g.State() == Dragging {
			g.End()
			return true
		}
		id, ok := g.d.Active()
		return ok && g.Start(id)
	case KeyEscape:
		if g.State() != Dragging {
			return false
		}
		g.Cancel()
		return true
	default:
		return false
	}

	if g.State() == Dragging {
		g.Move(dx, dy)
		return true
	}
	id, ok := g.d.Active()
	if !ok || !g.Start(id) {
		return false
	}
	g.Move(dx, dy)
	g.End()
	return true
}

// resolve applies snapping and clamping to f moved by dx, dy.
func (g *Drag) resolve(f domain.Field, dx, dy float64) (x, y float64, guides []geom.GuideLine) {
	w, h := g.d.Canvas()
	lo := geom.Pt{}
	hi := geom.Pt{X: w - g.opts.EdgeMargin, Y: h - g.opts.EdgeMargin}
	p := geom.ClampPoint(geom.Pt{X: f.X + dx, Y: f.Y + dy}, lo, hi)

	if g.opts.Snap.Enabled() {
		moved := f
		moved.X, moved.Y = p.X, p.Y
		anchors := []geom.Anchor{{Rect: geom.R(0, 0, w, h), Weight: 1}}
		for _, o := range g.d.Fields() {
			if o.ID == f.ID {
				continue
			}
			anchors = append(anchors, geom.Anchor{Rect: geom.FieldBox(o), Weight: 1})
		}
		var snapped geom.Rect
		snapped, guides = geom.ComputeSmartGuides(geom.FieldBox(moved), anchors, g.opts.Snap)
		p = geom.ClampPoint(snapped.Min(), lo, hi)
	}
	return p.X, p.Y, guides
}
