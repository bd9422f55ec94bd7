/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"reportdesigner/internal/domain"
)

// KeepAutosaves is how many autosaves are retained per template in the index.
const KeepAutosaves = 20

// unsavedID names autosaves of templates that were never stored.
const unsavedID = "unsaved"

// Handle ties an open editing session to its library so crash handling can reach
// the live, possibly unsaved, document.
type Handle struct {
	Library *Library
	ID      string
	Live    func() domain.TemplateDocument
}

func (h *Handle) templateID() string {
	if h.ID == "" {
		return unsavedID
	}
	return h.ID
}

// AutosaveCrashSnapshot writes the live document to backups/<id>.crash-<stamp>.json and
// records it as an autosave in the index. It returns the written path.
func AutosaveCrashSnapshot(h *Handle) (string, error) {
	if h == nil || h.Library == nil {
		return "", errors.New("nil handle")
	}
	if h.Live == nil {
		return "", errors.New("handle has no live document")
	}
	doc := h.Live()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode crash snapshot: %w", err)
	}
	id := h.templateID()
	now := h.Library.now()
	path := filepath.Join(h.Library.BackupsDir(), fmt.Sprintf("%s.crash-%s.json", id, now.Format(backupStamp)))
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Library.ix.SaveAutosave(ctx, id, data, now); err != nil {
		return path, err
	}
	_, _ = h.Library.ix.PruneAutosaves(ctx, id, KeepAutosaves)
	return path, nil
}

// Autosave records the live document in the index without touching the template file.
func (lib *Library) Autosave(ctx context.Context, id string, doc domain.TemplateDocument) error {
	if id == "" {
		id = unsavedID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode autosave: %w", err)
	}
	if err := lib.ix.SaveAutosave(ctx, id, data, lib.now()); err != nil {
		return err
	}
	_, err = lib.ix.PruneAutosaves(ctx, id, KeepAutosaves)
	return err
}

// LatestAutosave decodes the newest autosave of a template. ok is false when none exists.
func (lib *Library) LatestAutosave(ctx context.Context, id string) (domain.TemplateDocument, time.Time, bool, error) {
	if id == "" {
		id = unsavedID
	}
	a, ok, err := lib.ix.LatestAutosave(ctx, id)
	if err != nil || !ok {
		return domain.TemplateDocument{}, time.Time{}, false, err
	}
	var doc domain.TemplateDocument
	if err := json.Unmarshal(a.Doc, &doc); err != nil {
		return domain.TemplateDocument{}, a.TS, false, fmt.Errorf("decode autosave %s: %w", id, err)
	}
	if doc.Fields == nil {
		doc.Fields = []domain.Field{}
	}
	return doc, a.TS, true, nil
}
