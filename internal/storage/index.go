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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
	"reportdesigner/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds the disposable index under the library root.
	IndexDirName  = ".rdx"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema. Bump it together with a migration step.
	schemaVersion = 2
)

// IndexPath returns the full path to the library's index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// Record is the index row describing one stored template.
type Record struct {
	ID         string
	Name       string
	PaperSize  domain.PaperSize
	FieldCount int
	UpdatedAt  time.Time
}

// Autosave is a crash or periodic snapshot of a template that was never saved.
type Autosave struct {
	TemplateID string
	TS         time.Time
	Doc        []byte
}

// Index wraps the SQLite database backing listing, search and autosaves.
type Index struct {
	db   *sql.DB
	path string
}

// OpenIndex ensures <root>/.rdx/index.sqlite exists, enables WAL and brings the schema up to date.
func OpenIndex(root string) (*Index, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("library root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return &Index{db: db, path: path}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// SchemaVersion reports the schema version recorded in the database.
func (ix *Index) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := ix.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh databases start at 1 so every migration step runs once
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id          TEXT    PRIMARY KEY,
			name        TEXT    NOT NULL,
			paper_size  TEXT    NOT NULL,
			field_count INTEGER NOT NULL,
			updated_at  TEXT    NOT NULL
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_templates USING fts5(
			id UNINDEXED,
			name,
			labels,
			tokenize = 'unicode61'
		);`,
		`CREATE TABLE IF NOT EXISTS autosaves (
			id          INTEGER PRIMARY KEY,
			template_id TEXT    NOT NULL,
			ts          TEXT    NOT NULL,
			doc_blob    BLOB    NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_templates_updated ON templates(updated_at);`,
				`CREATE INDEX IF NOT EXISTS idx_autosaves_template_ts ON autosaves(template_id, ts);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// language=SQL
// dialect=SQLite
const upsertTemplateSQL = `INSERT INTO templates(id, name, paper_size, field_count, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, paper_size=excluded.paper_size,
	field_count=excluded.field_count, updated_at=excluded.updated_at`

// language=SQL
// dialect=SQLite
const listTemplatesSQL = `SELECT id, name, paper_size, field_count, updated_at FROM templates ORDER BY name COLLATE NOCASE, id`

// language=SQL
// dialect=SQLite
const searchTemplatesSQL = `SELECT t.id, t.name, t.paper_size, t.field_count, t.updated_at
FROM fts_templates f JOIN templates t ON t.id = f.id
WHERE fts_templates MATCH ? ORDER BY rank`

// language=SQL
// dialect=SQLite
const insertAutosaveSQL = `INSERT INTO autosaves(template_id, ts, doc_blob) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestAutosaveSQL = `SELECT ts, doc_blob FROM autosaves WHERE template_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const pruneAutosavesSQL = `DELETE FROM autosaves WHERE template_id = ? AND id NOT IN (
	SELECT id FROM autosaves WHERE template_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// Upsert records a template's metadata and searchable text.
func (ix *Index) Upsert(ctx context.Context, id string, doc domain.TemplateDocument, at time.Time) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, upsertTemplateSQL, id, doc.Name, string(doc.PaperSize), len(doc.Fields), at.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert template %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("clear fts %s: %w", id, err)
	}
	labels := make([]string, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		labels = append(labels, f.Label)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fts_templates(id, name, labels) VALUES (?, ?, ?)`, id, doc.Name, strings.Join(labels, "\n")); err != nil {
		return fmt.Errorf("index fts %s: %w", id, err)
	}
	return tx.Commit()
}

// Remove drops a template and its autosaves from the index.
func (ix *Index) Remove(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM templates WHERE id = ?`,
		`DELETE FROM fts_templates WHERE id = ?`,
		`DELETE FROM autosaves WHERE template_id = ?`,
	} {
		if _, err := ix.db.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
	}
	return nil
}

// Reset empties the template tables. Autosaves are kept.
func (ix *Index) Reset(ctx context.Context) error {
	for _, q := range []string{`DELETE FROM templates`, `DELETE FROM fts_templates`} {
		if _, err := ix.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	}
	return nil
}

// List returns all indexed templates ordered by name.
func (ix *Index) List(ctx context.Context) ([]Record, error) {
	rows, err := ix.db.QueryContext(ctx, listTemplatesSQL)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return scanRecords(rows)
}

// Search matches q against template names and field labels. Each word is a prefix term;
// all words must match. A blank query lists everything.
func (ix *Index) Search(ctx context.Context, q string) ([]Record, error) {
	if strings.TrimSpace(q) == "" {
		return ix.List(ctx)
	}
	match := ftsQuery(q)
	if match == "" {
		return nil, nil
	}
	rows, err := ix.db.QueryContext(ctx, searchTemplatesSQL, match)
	if err != nil {
		return nil, fmt.Errorf("search templates: %w", err)
	}
	return scanRecords(rows)
}

// ftsQuery keeps letters and digits of each word and turns it into a quoted prefix term,
// so user input never reaches FTS5 as syntax.
func ftsQuery(q string) string {
	var terms []string
	for _, w := range strings.Fields(q) {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, w)
		if w != "" {
			terms = append(terms, `"`+w+`"*`)
		}
	}
	return strings.Join(terms, " ")
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		var r Record
		var paper, ts string
		if err := rows.Scan(&r.ID, &r.Name, &paper, &r.FieldCount, &ts); err != nil {
			return nil, err
		}
		r.PaperSize = domain.PaperSize(paper)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveAutosave stores a serialized template snapshot.
func (ix *Index) SaveAutosave(ctx context.Context, templateID string, doc []byte, ts time.Time) error {
	_, err := ix.db.ExecContext(ctx, insertAutosaveSQL, templateID, ts.UTC().Format(time.RFC3339Nano), doc)
	if err != nil {
		return fmt.Errorf("save autosave %s: %w", templateID, err)
	}
	return nil
}

// LatestAutosave returns the newest autosave of a template, or ok=false if there is none.
func (ix *Index) LatestAutosave(ctx context.Context, templateID string) (Autosave, bool, error) {
	var ts string
	var blob []byte
	err := ix.db.QueryRowContext(ctx, selectLatestAutosaveSQL, templateID).Scan(&ts, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Autosave{}, false, nil
	}
	if err != nil {
		return Autosave{}, false, fmt.Errorf("latest autosave %s: %w", templateID, err)
	}
	a := Autosave{TemplateID: templateID, Doc: blob}
	a.TS, _ = time.Parse(time.RFC3339Nano, ts)
	return a, true, nil
}

// PruneAutosaves keeps the newest keepLast autosaves of a template and reports how many were deleted.
func (ix *Index) PruneAutosaves(ctx context.Context, templateID string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := ix.db.ExecContext(ctx, pruneAutosavesSQL, templateID, templateID, keepLast)
	if err != nil {
		return 0, fmt.Errorf("prune autosaves %s: %w", templateID, err)
	}
	return res.RowsAffected()
}
