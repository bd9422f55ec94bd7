/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"testing"

	"reportdesigner/internal/backend"
	"reportdesigner/internal/config"
	"reportdesigner/internal/domain"
	"reportdesigner/internal/storage"
)

func newLib(t *testing.T) *storage.Library {
	t.Helper()
	lib, err := storage.InitLibrary(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func TestNewSessionSavesIntoLibrary(t *testing.T) {
	lib := newLib(t)
	cfg := config.Defaults().Designer
	cfg.DefaultPaper = "Letter"
	s := New(lib, cfg)
	if s.Designer.PaperSize() != domain.PaperLetter {
		t.Fatalf("default paper not applied: %s", s.Designer.PaperSize())
	}

	var notified int
	s.OnChange(func([]domain.Field) { notified++ })
	s.Designer.SetName("Urinalysis")
	s.Designer.CreateField(string(domain.KindCheckbox))
	if notified != 1 {
		t.Fatalf("listener calls = %d", notified)
	}
	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, err := lib.Get(s.ID)
	if err != nil || doc.Name != "Urinalysis" || len(doc.Fields) != 1 {
		t.Fatalf("stored doc: %+v %v", doc, err)
	}

	reopened, err := Open(lib, s.ID, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Designer.Dirty() || len(reopened.Designer.Fields()) != 1 {
		t.Fatalf("reopened session state unexpected")
	}
}

func TestOpenMissingTemplate(t *testing.T) {
	if _, err := Open(newLib(t), "nope", config.Defaults().Designer); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAutosaveOnlyWhenDirty(t *testing.T) {
	lib := newLib(t)
	s := New(lib, config.Defaults().Designer)
	ctx := context.Background()
	if wrote, err := s.Autosave(ctx); wrote || err != nil {
		t.Fatalf("clean session must not autosave: %v %v", wrote, err)
	}
	s.Designer.CreateField(string(domain.KindText))
	if wrote, err := s.Autosave(ctx); !wrote || err != nil {
		t.Fatalf("dirty session should autosave: %v %v", wrote, err)
	}
	doc, _, ok, err := lib.LatestAutosave(ctx, s.ID)
	if err != nil || !ok || len(doc.Fields) != 1 {
		t.Fatalf("autosave content: %+v %v %v", doc, ok, err)
	}
	h := s.Handle()
	if h.ID != s.ID || len(h.Live().Fields) != 1 {
		t.Fatalf("handle does not expose the live document")
	}
}

func TestDragOptionsFromConfig(t *testing.T) {
	cfg := config.DesignerConfig{KeyboardStep: 5, EdgeMargin: 30, SnapThreshold: 0}
	o := DragOptions(cfg)
	if o.Snap.Enabled() || o.KeyboardStep != 5 || o.EdgeMargin != 30 {
		t.Fatalf("unexpected options %+v", o)
	}
	cfg.SnapThreshold = 8
	if o := DragOptions(cfg); !o.Snap.Enabled() || o.Snap.Threshold != 8 {
		t.Fatalf("snap should be on: %+v", o)
	}
}

// memStore is an in-memory backend.TemplateStore.
type memStore struct {
	docs    map[string]domain.TemplateDocument
	saveErr error
}

func (m *memStore) LoadTemplate(_ context.Context, id string) (domain.TemplateDocument, bool, error) {
	d, ok := m.docs[id]
	return d, ok, nil
}

func (m *memStore) SaveTemplate(_ context.Context, id string, doc domain.TemplateDocument) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs[id] = doc
	return nil
}

func (m *memStore) ListReportTypes(context.Context) ([]backend.ReportType, error) { return nil, nil }

func TestOpenRemote(t *testing.T) {
	store := &memStore{docs: map[string]domain.TemplateDocument{
		"cbc": {Name: "CBC", PaperSize: domain.PaperA4, Fields: []domain.Field{{ID: "a", Type: domain.KindNumber, Label: "WBC", X: 50, Y: 50, FontSize: 14, ShowLabel: true}}},
	}}
	ctx := context.Background()
	s, err := OpenRemote(ctx, store, "cbc", nil, config.Defaults().Designer)
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}
	if s.Designer.Name() != "CBC" || len(s.Designer.Fields()) != 1 {
		t.Fatalf("remote template not loaded")
	}
	s.Designer.CreateField(string(domain.KindDate))
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(store.docs["cbc"].Fields) != 2 {
		t.Fatalf("remote store not updated")
	}

	store.saveErr = errors.New("503")
	s.Designer.CreateField(string(domain.KindText))
	before := s.Designer.Fields()
	if err := s.Save(ctx); err == nil {
		t.Fatalf("expected save error")
	}
	if got := s.Designer.Fields(); len(got) != len(before) || !s.Designer.Dirty() {
		t.Fatalf("failed save must leave the model unchanged and dirty")
	}

	empty, err := OpenRemote(ctx, store, "new-type", nil, config.Defaults().Designer)
	if err != nil || len(empty.Designer.Fields()) != 0 {
		t.Fatalf("report type without template should start empty: %v", err)
	}
	if wrote, _ := empty.Autosave(ctx); wrote {
		t.Fatalf("no library means no autosave")
	}
}
