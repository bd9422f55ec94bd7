/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session wires a designer to its save collaborator and host settings for one
// editing session, backed either by the local library or by a remote template store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"reportdesigner/internal/backend"
	"reportdesigner/internal/config"
	"reportdesigner/internal/designer"
	"reportdesigner/internal/domain"
	"reportdesigner/internal/geom"
	applog "reportdesigner/internal/log"
	"reportdesigner/internal/storage"
)

// Session is one open template.
type Session struct {
	ID        string
	Designer  *designer.Designer
	Drag      *designer.Drag
	Inspector *designer.Inspector

	lib *storage.Library
	log *slog.Logger

	mu        sync.Mutex
	listeners []func([]domain.Field)
}

// DragOptions maps designer settings to drag behaviour. A zero snap threshold turns
// smart guides off.
func DragOptions(cfg config.DesignerConfig) designer.DragOptions {
	snap := cfg.SnapThreshold > 0
	return designer.DragOptions{
		EdgeMargin:   cfg.EdgeMargin,
		KeyboardStep: cfg.KeyboardStep,
		Snap:         geom.SnapOptions{Threshold: cfg.SnapThreshold, SnapToEdges: snap, SnapToCenters: snap},
	}
}

func newSession(id string, doc *domain.TemplateDocument, save designer.SaveFunc, lib *storage.Library, cfg config.DesignerConfig) *Session {
	s := &Session{ID: id, lib: lib, log: applog.WithComponent("session").With(slog.String("template", id))}
	if doc == nil {
		doc = &domain.TemplateDocument{PaperSize: cfg.Paper(), Fields: []domain.Field{}}
	}
	s.Designer = designer.Load(doc, designer.Options{
		Save:       save,
		OnChange:   s.broadcast,
		UndoDepth:  cfg.UndoDepth,
		HistoryKey: id,
	})
	s.Drag = designer.NewDrag(s.Designer, DragOptions(cfg))
	s.Inspector = designer.NewInspector(s.Designer)
	return s
}

// New starts an empty template in lib under a fresh id.
func New(lib *storage.Library, cfg config.DesignerConfig) *Session {
	id := designer.UUIDs{}.NewID()
	return newSession(id, nil, lib.Saver(id), lib, cfg)
}

// Open loads template id from lib.
func Open(lib *storage.Library, id string, cfg config.DesignerConfig) (*Session, error) {
	doc, err := lib.Get(id)
	if err != nil {
		return nil, err
	}
	return newSession(id, &doc, lib.Saver(id), lib, cfg), nil
}

// OpenRemote loads the template of a report type from store. A report type without a
// template starts empty. lib is optional and only used for autosaves.
func OpenRemote(ctx context.Context, store backend.TemplateStore, reportTypeID string, lib *storage.Library, cfg config.DesignerConfig) (*Session, error) {
	if store == nil {
		return nil, errors.New("no template store configured")
	}
	doc, ok, err := store.LoadTemplate(ctx, reportTypeID)
	if err != nil {
		return nil, fmt.Errorf("load report type %s: %w", reportTypeID, err)
	}
	var seed *domain.TemplateDocument
	if ok {
		seed = &doc
	}
	return newSession(reportTypeID, seed, backend.Saver(store, reportTypeID), lib, cfg), nil
}

// OnChange registers fn to receive every field collection change.
func (s *Session) OnChange(fn func([]domain.Field)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) broadcast(fields []domain.Field) {
	s.mu.Lock()
	ls := append([]func([]domain.Field){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(fields)
	}
}

// Handle exposes the live document for crash handling.
func (s *Session) Handle() *storage.Handle {
	return &storage.Handle{Library: s.lib, ID: s.ID, Live: s.Designer.Export}
}

// Autosave stores the live document in the library index when it has unsaved changes.
// It reports whether a snapshot was written.
func (s *Session) Autosave(ctx context.Context) (bool, error) {
	if s.lib == nil || !s.Designer.Dirty() {
		return false, nil
	}
	if err := s.lib.Autosave(ctx, s.ID, s.Designer.Export()); err != nil {
		s.log.Warn("autosave failed", slog.Any("err", err))
		return false, err
	}
	s.log.Debug("autosaved")
	return true, nil
}

// Save persists the document through the session's collaborator.
func (s *Session) Save(ctx context.Context) error { return s.Designer.Save(ctx) }
