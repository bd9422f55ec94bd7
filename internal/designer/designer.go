/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package designer is the report template designer core: the controller owning the
// field collection, the drag state machine and the property inspector.
package designer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
	"reportdesigner/internal/telemetry"
	"reportdesigner/internal/undo"
)

var (
	ErrSaveInProgress = errors.New("save already in progress")
	ErrNoSaveFunc     = errors.New("no save function configured")
)

// SaveFunc persists an exported document. Its error is the only failure signal of Save.
type SaveFunc func(ctx context.Context, doc domain.TemplateDocument) error

// ChangeFunc receives a copy of the full field collection after each mutation.
type ChangeFunc func(fields []domain.Field)

type Options struct {
	IDs      IDGenerator
	OnChange ChangeFunc
	Save     SaveFunc
	Logger   *slog.Logger
	// History stores undo steps under HistoryKey. A private manager is created when nil.
	History    *undo.Manager
	HistoryKey string
	// UndoDepth caps the private history manager (0 means 100).
	UndoDepth int
}

// Designer owns the in-progress template. All methods are safe for concurrent use;
// callbacks are invoked without holding the internal lock.
type Designer struct {
	mu sync.Mutex

	name   string
	paper  domain.PaperSize
	fields []domain.Field
	active string

	rev      uint64
	savedRev uint64
	saving   bool

	ids      IDGenerator
	onChange ChangeFunc
	save     SaveFunc
	log      *slog.Logger
	history  *undo.Manager
	histKey  string
}

// New returns a designer with no fields on A4 paper.
func New(opts Options) *Designer { return Load(nil, opts) }

// Load seeds a designer from doc. Host-supplied ids are kept; blank or repeated ids are
// replaced. A nil doc yields an empty A4 template. Selection starts empty.
func Load(doc *domain.TemplateDocument, opts Options) *Designer {
	d := &Designer{
		paper:    domain.DefaultPaperSize,
		ids:      opts.IDs,
		onChange: opts.OnChange,
		save:     opts.Save,
		log:      opts.Logger,
		history:  opts.History,
		histKey:  opts.HistoryKey,
		fields:   []domain.Field{},
	}
	if d.ids == nil {
		d.ids = UUIDs{}
	}
	if d.log == nil {
		d.log = applog.WithComponent("designer")
	}
	if d.history == nil {
		depth := opts.UndoDepth
		if depth <= 0 {
			depth = 100
		}
		d.history = undo.NewManager(undo.Config{MaxPerKey: depth})
	}
	if d.histKey == "" {
		d.histKey = "designer"
	}
	if doc == nil {
		return d
	}
	d.name = doc.Name
	if doc.PaperSize.Valid() {
		d.paper = doc.PaperSize
	} else if doc.PaperSize != "" {
		d.log.Warn("unknown paper size, using default",
			slog.String("paper", string(doc.PaperSize)), slog.String("default", string(domain.DefaultPaperSize)))
	}
	taken := make(map[string]bool, len(doc.Fields))
	for _, f := range doc.Fields {
		taken[f.ID] = true
	}
	seen := make(map[string]bool, len(doc.Fields))
	for _, f := range doc.Fields {
		if f.ID == "" || seen[f.ID] {
			old := f.ID
			f.ID = d.freshIDLocked(taken)
			taken[f.ID] = true
			d.log.Debug("reassigned field id", slog.String("old", old), slog.String("id", f.ID))
		}
		seen[f.ID] = true
		d.fields = append(d.fields, f)
	}
	return d
}

func (d *Designer) freshIDLocked(taken map[string]bool) string {
	for {
		id := d.ids.NewID()
		if id != "" && !taken[id] {
			return id
		}
	}
}

func (d *Designer) takenLocked() map[string]bool {
	m := make(map[string]bool, len(d.fields))
	for _, f := range d.fields {
		m[f.ID] = true
	}
	return m
}

func (d *Designer) indexLocked(id string) int {
	for i := range d.fields {
		if d.fields[i].ID == id {
			return i
		}
	}
	return -1
}

// recordLocked stores the current collection as an undo step and bumps the revision.
func (d *Designer) recordLocked() {
	blob, err := json.Marshal(d.fields)
	if err != nil {
		d.log.Warn("undo snapshot failed", slog.Any("err", err))
	} else {
		d.history.Record(undo.Snapshot{Key: d.histKey, Blob: blob})
	}
	d.rev++
}

// notify must be called without d.mu held.
func (d *Designer) notify(fields []domain.Field) {
	if d.onChange != nil {
		d.onChange(fields)
	}
}

func (d *Designer) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

func (d *Designer) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.name == name {
		return
	}
	d.name = name
	d.rev++
}

func (d *Designer) PaperSize() domain.PaperSize {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paper
}

// SetPaperSize switches the paper. Field positions are kept as they are.
func (d *Designer) SetPaperSize(p domain.PaperSize) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPaperSize, p)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paper == p {
		return nil
	}
	d.paper = p
	d.rev++
	d.log.Debug("paper size changed", slog.String("paper", string(p)))
	return nil
}

// Canvas returns the pixel dimensions of the current paper.
func (d *Designer) Canvas() (w, h float64) {
	return d.PaperSize().Dimensions()
}

// Fields returns a copy of the collection in insertion order.
func (d *Designer) Fields() []domain.Field {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.CloneFields(d.fields)
}

func (d *Designer) Field(id string) (domain.Field, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.indexLocked(id); i >= 0 {
		return d.fields[i], true
	}
	return domain.Field{}, false
}

// CreateField appends a field of kind with the registry's default label at the default
// position. Unknown kinds are kept and get the fallback label.
func (d *Designer) CreateField(kind string) domain.Field {
	d.mu.Lock()
	f := domain.Field{
		ID:        d.freshIDLocked(d.takenLocked()),
		Type:      domain.FieldKind(kind),
		Label:     domain.DefaultLabel(kind),
		X:         domain.DefaultX,
		Y:         domain.DefaultY,
		FontSize:  domain.DefaultFontSize,
		ShowLabel: true,
	}
	d.recordLocked()
	d.fields = append(d.fields, f)
	snap := domain.CloneFields(d.fields)
	d.mu.Unlock()

	d.log.Debug("field created", slog.String("id", f.ID), slog.String("kind", kind))
	telemetry.Event(telemetry.EventFieldCreated, map[string]any{"kind": kind, "known": f.Type.Known()})
	d.notify(snap)
	return f
}

// DeleteField removes the field and reports whether it existed. Deleting the active
// field clears the selection.
func (d *Designer) DeleteField(id string) bool {
	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return false
	}
	d.recordLocked()
	d.fields = append(d.fields[:i:i], d.fields[i+1:]...)
	if d.active == id {
		d.active = ""
	}
	snap := domain.CloneFields(d.fields)
	d.mu.Unlock()

	d.log.Debug("field deleted", slog.String("id", id))
	d.notify(snap)
	return true
}

// UpdateField sets one property. A value of the wrong type or a non-positive font size
// returns ErrInvalidValue and changes nothing. A missing id changes nothing either, but
// the value is still validated so the same bad input fails the same way.
func (d *Designer) UpdateField(id string, prop Property, value any) error {
	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		var scratch domain.Field
		if err := apply(&scratch, prop, value); err != nil {
			return err
		}
		return nil
	}
	next := d.fields[i]
	if err := apply(&next, prop, value); err != nil {
		d.mu.Unlock()
		return err
	}
	if next == d.fields[i] {
		d.mu.Unlock()
		return nil
	}
	d.recordLocked()
	d.fields[i] = next
	snap := domain.CloneFields(d.fields)
	d.mu.Unlock()

	d.log.Debug("field updated", slog.String("id", id), slog.String("prop", string(prop)))
	d.notify(snap)
	return nil
}

// ApplyDelta moves the field by dx, dy and reports whether it exists. The drag layer
// calls it once per completed gesture. A NaN or infinite delta is rejected with false.
func (d *Designer) ApplyDelta(id string, dx, dy float64) bool {
	if !finite(dx) || !finite(dy) {
		return false
	}
	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return false
	}
	if dx == 0 && dy == 0 {
		d.mu.Unlock()
		return true
	}
	d.recordLocked()
	d.fields[i].X += dx
	d.fields[i].Y += dy
	snap := domain.CloneFields(d.fields)
	d.mu.Unlock()

	d.log.Debug("field moved", slog.String("id", id), slog.Float64("dx", dx), slog.Float64("dy", dy))
	d.notify(snap)
	return true
}

// Select makes id the single active field. Unknown ids clear the selection.
func (d *Designer) Select(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.indexLocked(id) < 0 {
		d.active = ""
		return
	}
	d.active = id
}

func (d *Designer) ClearSelection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = ""
}

// Active returns the selected field id.
func (d *Designer) Active() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active, d.active != ""
}

func (d *Designer) IsActive(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return id != "" && d.active == id
}

// Export returns a deep copy of the document. In-memory state is untouched.
func (d *Designer) Export() domain.TemplateDocument {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exportLocked()
}

func (d *Designer) exportLocked() domain.TemplateDocument {
	return domain.TemplateDocument{Name: d.name, PaperSize: d.paper, Fields: domain.CloneFields(d.fields)}
}

// Dirty reports whether anything changed since load or the last successful save.
func (d *Designer) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rev != d.savedRev
}

// Saving reports whether a save is in flight.
func (d *Designer) Saving() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saving
}

// Save validates the document and hands it to the save function. Only one save runs at
// a time. The model is never modified by Save.
func (d *Designer) Save(ctx context.Context) error {
	l := applog.WithOperation(d.log, "save")
	d.mu.Lock()
	if d.saving {
		d.mu.Unlock()
		return ErrSaveInProgress
	}
	doc := d.exportLocked()
	if err := domain.ValidateForSave(doc); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.save == nil {
		d.mu.Unlock()
		return ErrNoSaveFunc
	}
	d.saving = true
	rev := d.rev
	save := d.save
	d.mu.Unlock()

	err := save(ctx, doc)

	d.mu.Lock()
	d.saving = false
	if err == nil {
		d.savedRev = rev
	}
	d.mu.Unlock()

	if err != nil {
		l.Warn("save failed", slog.String("name", doc.Name), slog.Any("err", err))
		return fmt.Errorf("save template %q: %w", doc.Name, err)
	}
	l.Info("template saved", slog.String("name", doc.Name), slog.Int("fields", len(doc.Fields)))
	telemetry.Event(telemetry.EventTemplateSaved, map[string]any{"fields": len(doc.Fields), "paper": string(doc.PaperSize)})
	return nil
}

func (d *Designer) CanUndo() bool { return d.history.CanUndo(d.histKey) }
func (d *Designer) CanRedo() bool { return d.history.CanRedo(d.histKey) }

// Undo restores the field collection from before the last mutation.
func (d *Designer) Undo() bool { return d.restore(d.history.Undo) }

// Redo re-applies the last undone mutation.
func (d *Designer) Redo() bool { return d.restore(d.history.Redo) }

func (d *Designer) restore(step func(key string, current []byte) (undo.Snapshot, bool)) bool {
	d.mu.Lock()
	cur, err := json.Marshal(d.fields)
	if err != nil {
		d.mu.Unlock()
		d.log.Warn("history snapshot failed", slog.Any("err", err))
		return false
	}
	s, ok := step(d.histKey, cur)
	if !ok {
		d.mu.Unlock()
		return false
	}
	var fields []domain.Field
	if err := json.Unmarshal(s.Blob, &fields); err != nil {
		d.mu.Unlock()
		d.log.Warn("history restore failed", slog.Any("err", err))
		return false
	}
	d.fields = domain.CloneFields(fields)
	if d.indexLocked(d.active) < 0 {
		d.active = ""
	}
	d.rev++
	snap := domain.CloneFields(d.fields)
	d.mu.Unlock()

	d.notify(snap)
	return true
}
