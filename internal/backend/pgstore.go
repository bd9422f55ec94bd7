/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore keeps report templates in Postgres. Saves are last-write-wins; every save
// bumps the version and appends to the history table.
type PGStore struct {
	db *sql.DB
}

// OpenPG connects to dsn, checks the connection and applies pending migrations.
func OpenPG(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error { return s.db.Close() }

// language=SQL
// dialect=PostgreSQL
const selectTemplatePGSQL = `SELECT document, version FROM report_templates WHERE report_type_id = $1`

// language=SQL
// dialect=PostgreSQL
const upsertTemplatePGSQL = `INSERT INTO report_templates (report_type_id, name, paper_size, document)
VALUES ($1, $2, $3, $4)
ON CONFLICT (report_type_id) DO UPDATE SET
	name = EXCLUDED.name,
	paper_size = EXCLUDED.paper_size,
	document = EXCLUDED.document,
	version = report_templates.version + 1,
	updated_at = now()
RETURNING version`

// language=SQL
// dialect=PostgreSQL
const insertHistoryPGSQL = `INSERT INTO report_template_history (report_type_id, version, document) VALUES ($1, $2, $3)`

// language=SQL
// dialect=PostgreSQL
const listTemplatesPGSQL = `SELECT report_type_id, name, version FROM report_templates ORDER BY lower(name), report_type_id`

// LoadTemplate returns the stored template of a report type.
func (s *PGStore) LoadTemplate(ctx context.Context, reportTypeID string) (domain.TemplateDocument, bool, error) {
	doc, _, ok, err := s.LoadVersioned(ctx, reportTypeID)
	return doc, ok, err
}

// LoadVersioned is LoadTemplate plus the stored version number.
func (s *PGStore) LoadVersioned(ctx context.Context, reportTypeID string) (domain.TemplateDocument, int64, bool, error) {
	var raw []byte
	var ver int64
	err := s.db.QueryRowContext(ctx, selectTemplatePGSQL, reportTypeID).Scan(&raw, &ver)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TemplateDocument{}, 0, false, nil
	}
	if err != nil {
		return domain.TemplateDocument{}, 0, false, fmt.Errorf("load template %s: %w", reportTypeID, err)
	}
	var doc domain.TemplateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.TemplateDocument{}, 0, false, fmt.Errorf("decode template %s: %w", reportTypeID, err)
	}
	return normalizeLoaded(doc), ver, true, nil
}

// SaveTemplate upserts doc and records it in the history.
func (s *PGStore) SaveTemplate(ctx context.Context, reportTypeID string, doc domain.TemplateDocument) error {
	_, err := s.Save(ctx, reportTypeID, doc)
	return err
}

// Save upserts doc and returns the new version.
func (s *PGStore) Save(ctx context.Context, reportTypeID string, doc domain.TemplateDocument) (int64, error) {
	if strings.TrimSpace(reportTypeID) == "" {
		return 0, errors.New("report type id is required")
	}
	if err := domain.Validate(doc); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(normalizeLoaded(doc.Clone()))
	if err != nil {
		return 0, fmt.Errorf("encode template: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	var ver int64
	if err := tx.QueryRowContext(ctx, upsertTemplatePGSQL, reportTypeID, doc.Name, string(doc.PaperSize), string(raw)).Scan(&ver); err != nil {
		return 0, fmt.Errorf("upsert template %s: %w", reportTypeID, err)
	}
	if _, err := tx.ExecContext(ctx, insertHistoryPGSQL, reportTypeID, ver, string(raw)); err != nil {
		return 0, fmt.Errorf("record history %s: %w", reportTypeID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save %s: %w", reportTypeID, err)
	}
	applog.WithComponent("backend").Debug("template stored", slog.String("template", reportTypeID), slog.Int64("version", ver))
	return ver, nil
}

// ListReportTypes lists report types that have a stored template.
func (s *PGStore) ListReportTypes(ctx context.Context) ([]ReportType, error) {
	rows, err := s.db.QueryContext(ctx, listTemplatesPGSQL)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ReportType
	for rows.Next() {
		rt := ReportType{HasTemplate: true}
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Version); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// applyMigrations applies embedded SQL migrations in filename order, each in its own
// transaction, and records them in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		ver, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[ver] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, ver, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
		l.Info("migration applied", slog.String("file", fname))
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
