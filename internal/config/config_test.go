/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"reportdesigner/internal/domain"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	for _, o := range overrides {
		t.Setenv(o.env, "")
	}
	keyring.MockInit()
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected no token, got %q", tok)
	}
	if cfg.Backend.BaseURL != "http://localhost:8080" || cfg.Designer.Paper() != domain.PaperA4 || cfg.Designer.EdgeMargin != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := isolate(t)
	yml := []byte(`config_version: 1
backend:
  base_url: "https://api.clinic.test/ "
designer:
  default_paper: letter
  keyboard_step: 5
logging:
  level: DEBUG
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yml, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.clinic.test" {
		t.Fatalf("base url not normalized: %q", cfg.Backend.BaseURL)
	}
	if cfg.Designer.Paper() != domain.PaperLetter || cfg.Designer.KeyboardStep != 5 {
		t.Fatalf("designer section not applied: %+v", cfg.Designer)
	}
	if cfg.Designer.EdgeMargin != 20 || cfg.Backend.TimeoutMs != 15000 {
		t.Fatalf("keys absent from the file must keep defaults: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level not normalized: %q", cfg.Logging.Level)
	}
}

func TestLoadMalformedFileStillReturnsDefaults(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("backend: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if cfg.Backend.TimeoutMs != 15000 {
		t.Fatalf("defaults expected on parse error, got %+v", cfg.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	t.Setenv(EnvTelemetryOptIn, "yes")
	t.Setenv(EnvLibraryDir, "/srv/templates")
	t.Setenv(EnvDefaultPaper, "Letter")
	t.Setenv(EnvLogLevel, "ERROR")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvBackendTimeoutMs, "2500")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.BaseURL != "https://example.test:8443" || !cfg.General.TelemetryOptIn {
		t.Fatalf("backend/general overrides missing: %+v", cfg)
	}
	if cfg.Storage.LibraryDir != "/srv/templates" || cfg.Designer.Paper() != domain.PaperLetter {
		t.Fatalf("storage/designer overrides missing: %+v", cfg)
	}
	if cfg.Logging.Level != "error" || !cfg.Logging.Source {
		t.Fatalf("logging overrides missing: %+v", cfg.Logging)
	}
	if cfg.Backend.Timeout() != 2500*time.Millisecond {
		t.Fatalf("timeout override: %v", cfg.Backend.Timeout())
	}
	if env, ok := EnvOverrideFor("storage.library_dir"); !ok || env != EnvLibraryDir {
		t.Fatalf("EnvOverrideFor: %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("storage.pg_dsn"); ok {
		t.Fatalf("unset variable must not report an override")
	}
}

func TestDotEnvDoesNotReplaceEnvironment(t *testing.T) {
	isolate(t)
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte("RD_PG_DSN=postgres://from-file\nRD_BACKEND_URL=https://from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvBackendURL, "https://from-env")
	os.Unsetenv(EnvPGDSN)
	t.Cleanup(func() { os.Unsetenv(EnvPGDSN) })
	if err := LoadDotEnv(p); err != nil {
		t.Fatal(err)
	}
	if os.Getenv(EnvPGDSN) != "postgres://from-file" {
		t.Fatalf(".env value not loaded")
	}
	if os.Getenv(EnvBackendURL) != "https://from-env" {
		t.Fatalf(".env must not replace existing variables")
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env is fine: %v", err)
	}
}

func TestSaveRoundTripAndToken(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Storage.PGDSN = "postgres://u@localhost/rd"
	cfg.Designer.UndoDepth = 25
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Storage.PGDSN != cfg.Storage.PGDSN || got.Designer.UndoDepth != 25 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if tok != "s3cret" || Token() != "s3cret" {
		t.Fatalf("token not stored in keychain: %q", tok)
	}
	if err := ClearToken(); err != nil {
		t.Fatal(err)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("clearing twice must not fail: %v", err)
	}
	if Token() != "" {
		t.Fatalf("token should be gone")
	}
}

func TestHelpers(t *testing.T) {
	isolate(t)
	b := BackendConfig{}
	if b.Timeout() != 15*time.Second {
		t.Fatalf("default timeout: %v", b.Timeout())
	}
	if (BackendConfig{CacheTTLSec: -1}).CacheTTL() != 0 {
		t.Fatalf("negative ttl disables cache")
	}
	if (DesignerConfig{DefaultPaper: "B5"}).Paper() != domain.PaperA4 {
		t.Fatalf("unknown paper falls back to A4")
	}
	p, err := StorageConfig{}.LibraryPath()
	if err != nil || filepath.Base(p) != "library" {
		t.Fatalf("library path: %q %v", p, err)
	}
	o := LoggingConfig{Level: "debug", Format: "json", Source: true, File: "x.log"}.Options()
	if o.Level != "debug" || o.Format != "json" || !o.AddSource || o.File != "x.log" {
		t.Fatalf("logging options: %+v", o)
	}
}
