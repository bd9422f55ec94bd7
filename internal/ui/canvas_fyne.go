//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"reportdesigner/internal/designer"
	"reportdesigner/internal/geom"
	"reportdesigner/internal/preview"
)

var (
	selectionColor = color.NRGBA{R: 0x4a, G: 0x90, B: 0xe2, A: 0xff}
	guideLineColor = color.NRGBA{R: 0xe2, G: 0x4a, B: 0x90, A: 0xff}
)

// TemplateCanvas shows the template page and turns pointer gestures into drag
// operations on the designer.
type TemplateCanvas struct {
	widget.BaseWidget

	d    *designer.Designer
	drag *designer.Drag
	zoom float32
	// pointer is set while the drag machine is driven by this widget rather than the keyboard.
	pointer bool

	// OnSelect is called after a tap changes the active field.
	OnSelect func()
}

func NewTemplateCanvas(d *designer.Designer, drag *designer.Drag) *TemplateCanvas {
	c := &TemplateCanvas{d: d, drag: drag, zoom: 1}
	c.ExtendBaseWidget(c)
	return c
}

func (c *TemplateCanvas) CreateRenderer() fyne.WidgetRenderer {
	r := &templateRenderer{c: c, page: canvas.NewImageFromImage(nil)}
	r.page.FillMode = canvas.ImageFillStretch
	r.page.ScaleMode = canvas.ImageScaleFastest
	r.rebuild()
	return r
}

func (c *TemplateCanvas) MinSize() fyne.Size {
	w, h := c.d.Canvas()
	return fyne.NewSize(float32(w)*c.zoom, float32(h)*c.zoom)
}

func (c *TemplateCanvas) toCanvas(p fyne.Position) geom.Pt {
	return geom.Pt{X: float64(p.X / c.zoom), Y: float64(p.Y / c.zoom)}
}

// hit returns the topmost field under p.
func (c *TemplateCanvas) hit(p geom.Pt) (string, bool) {
	fields := c.d.Fields()
	for i := len(fields) - 1; i >= 0; i-- {
		if geom.FieldBox(fields[i]).Contains(p) {
			return fields[i].ID, true
		}
	}
	return "", false
}

func (c *TemplateCanvas) Tapped(ev *fyne.PointEvent) {
	if id, ok := c.hit(c.toCanvas(ev.Position)); ok {
		c.d.Select(id)
	} else {
		c.d.ClearSelection()
	}
	if c.OnSelect != nil {
		c.OnSelect()
	}
	c.Refresh()
}

func (c *TemplateCanvas) Dragged(ev *fyne.DragEvent) {
	if !c.pointer {
		// A keyboard pick-up owns the machine until it is dropped or cancelled.
		if c.drag.State() != designer.Idle {
			return
		}
		start := fyne.NewPos(ev.Position.X-ev.Dragged.DX, ev.Position.Y-ev.Dragged.DY)
		id, ok := c.hit(c.toCanvas(start))
		if !ok || !c.drag.Start(id) {
			return
		}
		c.pointer = true
		if c.OnSelect != nil {
			c.OnSelect()
		}
	}
	c.drag.Move(float64(ev.Dragged.DX/c.zoom), float64(ev.Dragged.DY/c.zoom))
	c.Refresh()
}

func (c *TemplateCanvas) DragEnd() {
	if !c.pointer {
		return
	}
	c.pointer = false
	c.drag.End()
	c.Refresh()
}

type templateRenderer struct {
	c       *TemplateCanvas
	page    *canvas.Image
	overlay []fyne.CanvasObject
	objects []fyne.CanvasObject
}

func (r *templateRenderer) rebuild() {
	c := r.c
	doc := c.d.Export()
	pending, dragging := c.drag.Pending()
	if dragging {
		for i := range doc.Fields {
			if doc.Fields[i].ID == pending.ID {
				doc.Fields[i] = pending
			}
		}
	}
	r.page.Image = preview.Render(doc, preview.Options{Scale: float64(c.zoom)})

	r.overlay = r.overlay[:0]
	if id, ok := c.d.Active(); ok {
		for _, f := range doc.Fields {
			if f.ID != id {
				continue
			}
			b := geom.FieldBox(f)
			sel := canvas.NewRectangle(color.Transparent)
			sel.StrokeColor = selectionColor
			sel.StrokeWidth = 1.5
			sel.Move(fyne.NewPos(float32(b.X-2)*c.zoom, float32(b.Y-2)*c.zoom))
			sel.Resize(fyne.NewSize(float32(b.W+4)*c.zoom, float32(b.H+4)*c.zoom))
			r.overlay = append(r.overlay, sel)
		}
	}
	for _, g := range c.drag.Guides() {
		ln := canvas.NewLine(guideLineColor)
		ln.StrokeWidth = 1
		ln.Position1 = fyne.NewPos(float32(g.From.X)*c.zoom, float32(g.From.Y)*c.zoom)
		ln.Position2 = fyne.NewPos(float32(g.To.X)*c.zoom, float32(g.To.Y)*c.zoom)
		r.overlay = append(r.overlay, ln)
	}
	r.objects = append([]fyne.CanvasObject{r.page}, r.overlay...)
}

func (r *templateRenderer) Layout(size fyne.Size) {
	r.page.Move(fyne.NewPos(0, 0))
	r.page.Resize(r.c.MinSize())
}

func (r *templateRenderer) MinSize() fyne.Size { return r.c.MinSize() }

func (r *templateRenderer) Refresh() {
	r.rebuild()
	r.Layout(r.c.Size())
	canvas.Refresh(r.c)
}

func (r *templateRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *templateRenderer) Destroy() {}
