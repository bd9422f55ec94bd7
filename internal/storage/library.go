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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
	"reportdesigner/internal/version"
)

const (
	TemplatesDirName = "templates"
	BackupsDirName   = "backups"
	ManifestFileName = "library.yaml"

	// KeepBackups is how many replaced versions are retained per template.
	KeepBackups = 10

	libraryFormat = 1
)

var (
	ErrNotLibrary = errors.New("not a template library")
	ErrNotFound   = errors.New("template not found")
	ErrInvalidID  = errors.New("invalid template id")
)

// Manifest is the library.yaml marker at the library root.
type Manifest struct {
	Format    int       `yaml:"format"`
	App       string    `yaml:"app"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Library is a directory of template documents plus its index.
type Library struct {
	root string
	ix   *Index
	mu   sync.Mutex
	now  func() time.Time
}

// InitLibrary creates the library layout at root, or opens it if it already exists.
func InitLibrary(root string) (*Library, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "library_init").With(slog.String("root", root))
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("library root is required")
	}
	for _, d := range []string{TemplatesDirName, BackupsDirName} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			l.Error("create dir failed", slog.String("dir", d), slog.Any("err", err))
			return nil, fmt.Errorf("create %s dir: %w", d, err)
		}
	}
	mpath := filepath.Join(root, ManifestFileName)
	if _, err := os.Stat(mpath); errors.Is(err, os.ErrNotExist) {
		m := Manifest{Format: libraryFormat, App: version.String(), CreatedAt: time.Now().UTC()}
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode manifest: %w", err)
		}
		if err := writeAtomic(mpath, data); err != nil {
			l.Error("write manifest failed", slog.Any("err", err))
			return nil, fmt.Errorf("write manifest: %w", err)
		}
		l.Info("library created")
	}
	return OpenLibrary(root)
}

// OpenLibrary opens an existing library. The index is rebuilt when it is out of step
// with the template files.
func OpenLibrary(root string) (*Library, error) {
	if _, err := ReadManifest(root); err != nil {
		return nil, err
	}
	ix, err := OpenIndex(root)
	if err != nil {
		return nil, err
	}
	lib := &Library{root: root, ix: ix, now: time.Now}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stale, err := lib.indexStale(ctx); err != nil || stale {
		if _, err := lib.Reindex(ctx); err != nil {
			_ = ix.Close()
			return nil, err
		}
	}
	return lib, nil
}

// ReadManifest loads library.yaml from root.
func ReadManifest(root string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(root, ManifestFileName))
	if errors.Is(err, os.ErrNotExist) {
		return m, fmt.Errorf("%w: %s", ErrNotLibrary, root)
	}
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: decode manifest: %v", ErrNotLibrary, err)
	}
	if m.Format > libraryFormat {
		return m, fmt.Errorf("library format %d is newer than supported %d", m.Format, libraryFormat)
	}
	return m, nil
}

// Close releases the index.
func (lib *Library) Close() error { return lib.ix.Close() }

// Root returns the library directory.
func (lib *Library) Root() string { return lib.root }

// BackupsDir is where replaced versions and crash artefacts are kept.
func (lib *Library) BackupsDir() string { return filepath.Join(lib.root, BackupsDirName) }

// Index exposes the underlying index.
func (lib *Library) Index() *Index { return lib.ix }

func (lib *Library) templatePath(id string) string {
	return filepath.Join(lib.root, TemplatesDirName, id+".json")
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\:`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Create stores doc under a new id.
func (lib *Library) Create(ctx context.Context, doc domain.TemplateDocument) (Record, error) {
	if doc.PaperSize == "" {
		doc.PaperSize = domain.DefaultPaperSize
	}
	id := uuid.NewString()
	if err := lib.Put(ctx, id, doc); err != nil {
		return Record{}, err
	}
	return lib.record(id, doc), nil
}

func (lib *Library) record(id string, doc domain.TemplateDocument) Record {
	return Record{ID: id, Name: doc.Name, PaperSize: doc.PaperSize, FieldCount: len(doc.Fields), UpdatedAt: lib.now().UTC()}
}

// Get reads a template. A file that fails to parse or validate is replaced by the
// newest backup that does.
func (lib *Library) Get(id string) (domain.TemplateDocument, error) {
	if err := checkID(id); err != nil {
		return domain.TemplateDocument{}, err
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "get").With(slog.String("template", id))
	data, err := os.ReadFile(lib.templatePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return domain.TemplateDocument{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.TemplateDocument{}, fmt.Errorf("read template %s: %w", id, err)
	}
	doc, derr := decodeTemplate(data)
	if derr == nil {
		return doc, nil
	}
	l.Warn("template unreadable, trying backups", slog.Any("err", derr))
	doc, bak, err := lib.latestGoodBackup(id)
	if err != nil {
		return domain.TemplateDocument{}, fmt.Errorf("decode template %s: %w", id, derr)
	}
	l.Warn("recovered template from backup", slog.String("backup", filepath.Base(bak)))
	return doc, nil
}

func decodeTemplate(data []byte) (domain.TemplateDocument, error) {
	var doc domain.TemplateDocument
	if err := ValidateJSON(data); err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode json: %w", err)
	}
	if err := domain.Validate(doc); err != nil {
		return doc, err
	}
	if doc.Fields == nil {
		doc.Fields = []domain.Field{}
	}
	return doc, nil
}

func (lib *Library) latestGoodBackup(id string) (domain.TemplateDocument, string, error) {
	baks, err := backupsFor(lib.BackupsDir(), id)
	if err != nil {
		return domain.TemplateDocument{}, "", err
	}
	for i := len(baks) - 1; i >= 0; i-- {
		data, err := os.ReadFile(baks[i])
		if err != nil {
			continue
		}
		if doc, err := decodeTemplate(data); err == nil {
			return doc, baks[i], nil
		}
	}
	return domain.TemplateDocument{}, "", errors.New("no usable backup")
}

// Put validates and writes doc under id. The previous version, if any, is copied to
// the backups dir first.
func (lib *Library) Put(ctx context.Context, id string, doc domain.TemplateDocument) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := domain.Validate(doc); err != nil {
		return err
	}
	doc = doc.Clone()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode template %s: %w", id, err)
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "put").With(slog.String("template", id))

	lib.mu.Lock()
	defer lib.mu.Unlock()

	path := lib.templatePath(id)
	now := lib.now()
	if _, err := os.Stat(path); err == nil {
		bak := filepath.Join(lib.BackupsDir(), backupName(id, now))
		if err := copyFile(path, bak); err != nil {
			l.Error("backup failed", slog.Any("err", err))
			return fmt.Errorf("backup template %s: %w", id, err)
		}
		lib.pruneBackups(id, KeepBackups)
	}
	if err := writeAtomic(path, data); err != nil {
		l.Error("write failed", slog.Any("err", err))
		return fmt.Errorf("write template %s: %w", id, err)
	}
	if err := lib.ix.Upsert(ctx, id, doc, now); err != nil {
		// the JSON file is authoritative; the index is repaired on next open
		l.Warn("index update failed", slog.Any("err", err))
	}
	l.Debug("template written", slog.Int("fields", len(doc.Fields)))
	return nil
}

func (lib *Library) pruneBackups(id string, keep int) {
	baks, err := backupsFor(lib.BackupsDir(), id)
	if err != nil || len(baks) <= keep {
		return
	}
	for _, p := range baks[:len(baks)-keep] {
		_ = os.Remove(p)
	}
}

// Backups lists the backup files of a template, oldest first.
func (lib *Library) Backups(id string) ([]string, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return backupsFor(lib.BackupsDir(), id)
}

// Delete removes a template file and its index entries. Backups are kept.
func (lib *Library) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()
	err := os.Remove(lib.templatePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return lib.ix.Remove(ctx, id)
}

// List returns every template in the library ordered by name.
func (lib *Library) List(ctx context.Context) ([]Record, error) { return lib.ix.List(ctx) }

// Search finds templates whose name or field labels match q.
func (lib *Library) Search(ctx context.Context, q string) ([]Record, error) {
	return lib.ix.Search(ctx, q)
}

// Saver returns a function that writes documents under id. It plugs into the designer
// as its save collaborator.
func (lib *Library) Saver(id string) func(context.Context, domain.TemplateDocument) error {
	return func(ctx context.Context, doc domain.TemplateDocument) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return lib.Put(ctx, id, doc)
	}
}

func (lib *Library) templateIDs() ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(lib.root, TemplatesDirName))
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	var ids []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (lib *Library) indexStale(ctx context.Context) (bool, error) {
	ids, err := lib.templateIDs()
	if err != nil {
		return false, err
	}
	recs, err := lib.ix.List(ctx)
	if err != nil {
		return true, err
	}
	indexed := make(map[string]bool, len(recs))
	for _, r := range recs {
		indexed[r.ID] = true
	}
	onDisk := 0
	for _, id := range ids {
		if indexed[id] {
			onDisk++
			continue
		}
		// Files Reindex would skip do not make the index stale.
		if _, err := lib.Get(id); err == nil {
			return true, nil
		}
	}
	return onDisk != len(recs), nil
}

// Reindex rebuilds the template tables from the JSON files and returns how many
// templates were indexed. Unreadable files are skipped.
func (lib *Library) Reindex(ctx context.Context) (int, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "reindex").With(slog.String("root", lib.root))
	ids, err := lib.templateIDs()
	if err != nil {
		return 0, err
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if err := lib.ix.Reset(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		doc, err := lib.Get(id)
		if err != nil {
			l.Warn("skip template", slog.String("template", id), slog.Any("err", err))
			continue
		}
		at := lib.now()
		if fi, err := os.Stat(lib.templatePath(id)); err == nil {
			at = fi.ModTime()
		}
		if err := lib.ix.Upsert(ctx, id, doc, at); err != nil {
			return n, err
		}
		n++
	}
	l.Info("index rebuilt", slog.Int("templates", n))
	return n, nil
}
