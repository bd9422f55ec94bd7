/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the user configuration: defaults, then the YAML file in the user
// config directory, then environment overrides (a local .env file included). The backend
// token lives in the OS keychain, never in the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
)

// CurrentVersion is written to new config files.
const CurrentVersion = 1

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // system | light | dark
}

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	CacheTTLSec int    `yaml:"cache_ttl_s"`
}

type StorageConfig struct {
	LibraryDir string `yaml:"library_dir"`
	// PGDSN selects the Postgres template store when set.
	PGDSN string `yaml:"pg_dsn"`
}

type DesignerConfig struct {
	DefaultPaper  string  `yaml:"default_paper"`
	KeyboardStep  float64 `yaml:"keyboard_step"`
	EdgeMargin    float64 `yaml:"edge_margin"`
	SnapThreshold float64 `yaml:"snap_threshold"`
	UndoDepth     int     `yaml:"undo_depth"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Backend       BackendConfig  `yaml:"backend"`
	Storage       StorageConfig  `yaml:"storage"`
	Designer      DesignerConfig `yaml:"designer"`
	Logging       LoggingConfig  `yaml:"logging"`
}

func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: CurrentVersion,
		General:       GeneralConfig{Theme: "system"},
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, CacheTTLSec: 300},
		Storage:       StorageConfig{},
		Designer: DesignerConfig{
			DefaultPaper:  string(domain.DefaultPaperSize),
			KeyboardStep:  10,
			EdgeMargin:    20,
			SnapThreshold: 6,
			UndoDepth:     100,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Environment overrides.
const (
	EnvConfigDir        = "RD_CONFIG_DIR"
	EnvBackendURL       = "RD_BACKEND_URL"
	EnvBackendTimeoutMs = "RD_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "RD_TLS_INSECURE"
	EnvTelemetryOptIn   = "RD_TELEMETRY_OPT_IN"
	EnvLibraryDir       = "RD_LIBRARY_DIR"
	EnvPGDSN            = "RD_PG_DSN"
	EnvDefaultPaper     = "RD_DEFAULT_PAPER"
	EnvLogLevel         = "RD_LOG_LEVEL"
	EnvLogFormat        = "RD_LOG_FORMAT"
	EnvLogSource        = "RD_LOG_SOURCE"
	EnvLogFile          = "RD_LOG_FILE"
)

type override struct {
	key   string // dotted yaml path
	env   string
	apply func(cfg *AppConfig, v string)
}

var overrides = []override{
	{"backend.base_url", EnvBackendURL, func(c *AppConfig, v string) { c.Backend.BaseURL = v }},
	{"backend.timeout_ms", EnvBackendTimeoutMs, func(c *AppConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutMs = n
		}
	}},
	{"backend.tls_insecure", EnvBackendTLSInsec, func(c *AppConfig, v string) { c.Backend.TLSInsecure = truthy(v) }},
	{"general.telemetry_opt_in", EnvTelemetryOptIn, func(c *AppConfig, v string) { c.General.TelemetryOptIn = truthy(v) }},
	{"storage.library_dir", EnvLibraryDir, func(c *AppConfig, v string) { c.Storage.LibraryDir = v }},
	{"storage.pg_dsn", EnvPGDSN, func(c *AppConfig, v string) { c.Storage.PGDSN = v }},
	{"designer.default_paper", EnvDefaultPaper, func(c *AppConfig, v string) { c.Designer.DefaultPaper = v }},
	{"logging.level", EnvLogLevel, func(c *AppConfig, v string) { c.Logging.Level = strings.ToLower(v) }},
	{"logging.format", EnvLogFormat, func(c *AppConfig, v string) { c.Logging.Format = strings.ToLower(v) }},
	{"logging.source", EnvLogSource, func(c *AppConfig, v string) { c.Logging.Source = truthy(v) }},
	{"logging.file", EnvLogFile, func(c *AppConfig, v string) { c.Logging.File = v }},
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Dir returns the per-user config directory.
func Dir() (string, error) {
	if d := strings.TrimSpace(os.Getenv(EnvConfigDir)); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve config directory: %w", err)
	}
	return filepath.Join(base, "reportdesigner"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	d, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// LoadDotEnv loads KEY=VALUE pairs from path without replacing variables that are
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load returns the effective configuration and the backend token from the keychain.
// A malformed file is reported but the defaults with env overrides are still returned.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	if err := LoadDotEnv(".env"); err != nil {
		applog.WithComponent("config").Warn(".env ignored", "err", err)
	}
	path, err := Path()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, "", err
	}
	var fileErr error
	if data, err := os.ReadFile(path); err == nil {
		fileErr = decodeInto(&cfg, data)
	} else if !errors.Is(err, fs.ErrNotExist) {
		fileErr = fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, fileErr
}

// decodeInto overlays YAML onto cfg; keys absent from the file keep their current value.
func decodeInto(cfg *AppConfig, data []byte) error {
	next := *cfg
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	next.normalize()
	*cfg = next
	return nil
}

func (c *AppConfig) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.File = strings.TrimSpace(c.Logging.File)
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	c.Storage.LibraryDir = strings.TrimSpace(c.Storage.LibraryDir)
	if c.ConfigVersion == 0 {
		c.ConfigVersion = CurrentVersion
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			o.apply(cfg, v)
		}
	}
	cfg.normalize()
}

// Save writes the YAML file and stores a non-empty token in the keychain.
func Save(cfg AppConfig, token string) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// EnvOverrideFor reports which variable currently overrides the dotted key, if any.
func EnvOverrideFor(key string) (string, bool) {
	for _, o := range overrides {
		if o.key == key && os.Getenv(o.env) != "" {
			return o.env, true
		}
	}
	return "", false
}

func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// CacheTTL is the lifetime of cached remote templates; zero disables caching.
func (b BackendConfig) CacheTTL() time.Duration {
	if b.CacheTTLSec < 0 {
		return 0
	}
	return time.Duration(b.CacheTTLSec) * time.Second
}

// Paper returns the configured default paper, falling back to A4 on unknown values.
func (d DesignerConfig) Paper() domain.PaperSize {
	p, err := domain.ParsePaperSize(d.DefaultPaper)
	if err != nil {
		return domain.DefaultPaperSize
	}
	return p
}

// LibraryPath returns the configured library directory or <config dir>/library.
func (s StorageConfig) LibraryPath() (string, error) {
	if s.LibraryDir != "" {
		return s.LibraryDir, nil
	}
	d, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "library"), nil
}

func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
