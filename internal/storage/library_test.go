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
	"os"
	"path/filepath"
	"testing"
	"time"

	"reportdesigner/internal/domain"
)

func sampleDoc(name string, labels ...string) domain.TemplateDocument {
	doc := domain.TemplateDocument{Name: name, PaperSize: domain.PaperA4, Fields: []domain.Field{}}
	for i, l := range labels {
		doc.Fields = append(doc.Fields, domain.Field{
			ID: "f" + string(rune('1'+i)), Type: domain.KindText, Label: l,
			X: 50, Y: 50 + float64(i)*30, FontSize: 14, ShowLabel: true,
		})
	}
	return doc
}

func newLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := InitLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("InitLibrary: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

// tickClock returns strictly increasing times so backup names never collide.
func tickClock() func() time.Time {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestOpenLibraryRequiresManifest(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenLibrary(dir); !errors.Is(err, ErrNotLibrary) {
		t.Fatalf("expected ErrNotLibrary, got %v", err)
	}
	lib, err := InitLibrary(dir)
	if err != nil {
		t.Fatalf("InitLibrary: %v", err)
	}
	_ = lib.Close()
	for _, d := range []string{TemplatesDirName, BackupsDirName, IndexDirName} {
		if fi, err := os.Stat(filepath.Join(dir, d)); err != nil || !fi.IsDir() {
			t.Fatalf("expected dir %s: %v", d, err)
		}
	}
	m, err := ReadManifest(dir)
	if err != nil || m.Format != libraryFormat {
		t.Fatalf("manifest: %+v %v", m, err)
	}
	// idempotent
	lib, err = InitLibrary(dir)
	if err != nil {
		t.Fatalf("re-init: %v", err)
	}
	_ = lib.Close()
}

func TestCreateGetPut(t *testing.T) {
	lib := newLibrary(t)
	lib.now = tickClock()
	ctx := context.Background()

	rec, err := lib.Create(ctx, sampleDoc("Blood Panel", "Hemoglobin"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.FieldCount != 1 || rec.PaperSize != domain.PaperA4 {
		t.Fatalf("unexpected record %+v", rec)
	}
	got, err := lib.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Blood Panel" || len(got.Fields) != 1 || got.Fields[0].Label != "Hemoglobin" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	got.Fields = append(got.Fields, domain.Field{ID: "f9", Type: domain.KindCheckbox, Label: "Fasting", X: 10, Y: 10, FontSize: 12, ShowLabel: true})
	if err := lib.Put(ctx, rec.ID, got); err != nil {
		t.Fatalf("Put: %v", err)
	}
	baks, err := lib.Backups(rec.ID)
	if err != nil || len(baks) != 1 {
		t.Fatalf("expected one backup, got %v %v", baks, err)
	}
	recs, err := lib.List(ctx)
	if err != nil || len(recs) != 1 || recs[0].FieldCount != 2 {
		t.Fatalf("list after put: %+v %v", recs, err)
	}
}

func TestCreateDefaultsPaper(t *testing.T) {
	lib := newLibrary(t)
	doc := sampleDoc("x", "a")
	doc.PaperSize = ""
	rec, err := lib.Create(context.Background(), doc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.PaperSize != domain.PaperA4 {
		t.Fatalf("paper = %q", rec.PaperSize)
	}
}

func TestPutRejectsInvalidDocuments(t *testing.T) {
	lib := newLibrary(t)
	doc := sampleDoc("dup", "a", "b")
	doc.Fields[1].ID = doc.Fields[0].ID
	if err := lib.Put(context.Background(), "t1", doc); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := os.Stat(lib.templatePath("t1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid document must not be written")
	}
}

func TestInvalidIDs(t *testing.T) {
	lib := newLibrary(t)
	for _, id := range []string{"", "..", "a/b", `a\b`, ".hidden"} {
		if _, err := lib.Get(id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Get(%q): expected ErrInvalidID, got %v", id, err)
		}
		if err := lib.Put(context.Background(), id, sampleDoc("x", "a")); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Put(%q): expected ErrInvalidID, got %v", id, err)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	lib := newLibrary(t)
	if _, err := lib.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := lib.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestGetFallsBackToLatestBackup(t *testing.T) {
	lib := newLibrary(t)
	lib.now = tickClock()
	ctx := context.Background()
	if err := lib.Put(ctx, "t1", sampleDoc("v1", "a")); err != nil {
		t.Fatal(err)
	}
	if err := lib.Put(ctx, "t1", sampleDoc("v2", "a")); err != nil {
		t.Fatal(err)
	}
	if err := lib.Put(ctx, "t1", sampleDoc("v3", "a")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lib.templatePath("t1"), []byte(`{"name":`), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := lib.Get("t1")
	if err != nil {
		t.Fatalf("expected recovery from backup, got %v", err)
	}
	if doc.Name != "v2" {
		t.Fatalf("expected newest backup v2, got %q", doc.Name)
	}
}

func TestGetCorruptWithoutBackupFails(t *testing.T) {
	lib := newLibrary(t)
	if err := os.WriteFile(lib.templatePath("t1"), []byte(`{"name":"x","paperSize":"A4"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Get("t1"); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestBackupsArePruned(t *testing.T) {
	lib := newLibrary(t)
	lib.now = tickClock()
	ctx := context.Background()
	for i := 0; i < KeepBackups+4; i++ {
		if err := lib.Put(ctx, "t1", sampleDoc("v", "a")); err != nil {
			t.Fatal(err)
		}
	}
	baks, err := lib.Backups("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(baks) != KeepBackups {
		t.Fatalf("expected %d backups, got %d", KeepBackups, len(baks))
	}
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	rec, err := lib.Create(ctx, sampleDoc("Gone", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := lib.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	recs, _ := lib.List(ctx)
	if len(recs) != 0 {
		t.Fatalf("expected empty list, got %+v", recs)
	}
	if hits, _ := lib.Search(ctx, "gone"); len(hits) != 0 {
		t.Fatalf("deleted template still searchable: %+v", hits)
	}
}

func TestSearchMatchesNamesAndLabels(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	blood, err := lib.Create(ctx, sampleDoc("Blood Panel", "Hemoglobin", "Platelets"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Create(ctx, sampleDoc("Radiology", "Findings")); err != nil {
		t.Fatal(err)
	}

	hits, err := lib.Search(ctx, "hemo")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != blood.ID {
		t.Fatalf("expected blood panel, got %+v", hits)
	}
	hits, _ = lib.Search(ctx, "radio")
	if len(hits) != 1 || hits[0].Name != "Radiology" {
		t.Fatalf("expected radiology, got %+v", hits)
	}
	hits, err = lib.Search(ctx, `"; --`)
	if err != nil || len(hits) != 0 {
		t.Fatalf("punctuation-only query: %+v %v", hits, err)
	}
	hits, err = lib.Search(ctx, `plate" OR`)
	if err != nil || len(hits) != 0 {
		t.Fatalf("operators must be literal terms: %+v %v", hits, err)
	}
	hits, _ = lib.Search(ctx, `plate";`)
	if len(hits) != 1 || hits[0].ID != blood.ID {
		t.Fatalf("expected blood panel for sanitized query, got %+v", hits)
	}
	all, _ := lib.Search(ctx, "  ")
	if len(all) != 2 || all[0].Name != "Blood Panel" {
		t.Fatalf("empty query should list by name, got %+v", all)
	}
}

func TestOpenRebuildsMissingIndex(t *testing.T) {
	dir := t.TempDir()
	lib, err := InitLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Create(context.Background(), sampleDoc("Kept", "a")); err != nil {
		t.Fatal(err)
	}
	_ = lib.Close()
	if err := os.RemoveAll(filepath.Join(dir, IndexDirName)); err != nil {
		t.Fatal(err)
	}
	lib, err = OpenLibrary(dir)
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}
	defer lib.Close()
	recs, err := lib.List(context.Background())
	if err != nil || len(recs) != 1 || recs[0].Name != "Kept" {
		t.Fatalf("index not rebuilt: %+v %v", recs, err)
	}
	v, err := lib.Index().SchemaVersion(context.Background())
	if err != nil || v != schemaVersion {
		t.Fatalf("schema version = %d, %v", v, err)
	}
}

func TestSaverHonoursContext(t *testing.T) {
	lib := newLibrary(t)
	save := lib.Saver("t1")
	if err := save(context.Background(), sampleDoc("Saved", "a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if doc, err := lib.Get("t1"); err != nil || doc.Name != "Saved" {
		t.Fatalf("Get after save: %+v %v", doc, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := save(ctx, sampleDoc("Late", "a")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUnreadableTemplateDoesNotForceReindex(t *testing.T) {
	dir := t.TempDir()
	lib, err := InitLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}
	lib.now = tickClock()
	ctx := context.Background()
	if err := lib.Put(ctx, "good", sampleDoc("Good", "a")); err != nil {
		t.Fatal(err)
	}
	want := lib.now().Add(-time.Second)
	if err := os.WriteFile(lib.templatePath("broken"), []byte(`{"name":`), 0o644); err != nil {
		t.Fatal(err)
	}
	if stale, err := lib.indexStale(ctx); err != nil || stale {
		t.Fatalf("a file Reindex would skip must not mark the index stale: stale=%v err=%v", stale, err)
	}
	_ = lib.Close()

	lib, err = OpenLibrary(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()
	recs, err := lib.List(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List = %+v, %v", recs, err)
	}
	// a rebuild would have replaced the stored time with the file's modtime
	if !recs[0].UpdatedAt.Equal(want) {
		t.Fatalf("index was rebuilt: updated_at %v, want %v", recs[0].UpdatedAt, want)
	}

	if err := writeAtomic(lib.templatePath("added"), mustJSON(t, sampleDoc("Added", "b"))); err != nil {
		t.Fatal(err)
	}
	if stale, err := lib.indexStale(ctx); err != nil || !stale {
		t.Fatalf("a readable file missing from the index should mark it stale: stale=%v err=%v", stale, err)
	}
}

func mustJSON(t *testing.T, doc domain.TemplateDocument) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
