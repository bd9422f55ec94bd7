/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures the process-wide slog logger: a readable console handler or
// JSON, an optional rotating JSON file, and attributes pulled from the context.
package log

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"reportdesigner/internal/version"
)

// Options controls logger initialization. FromEnv reads:
//   - RD_LOG_LEVEL=debug|info|warn|error
//   - RD_LOG_FORMAT=console|json
//   - RD_LOG_FILE=<path> (rotating JSON file)
//   - RD_LOG_SOURCE=true|false
//   - RD_LOG_MAX_SIZE_MB, RD_LOG_MAX_BACKUPS
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	defaultLoggerMu sync.RWMutex
	defaultLogger   *slog.Logger
)

// L returns the application logger, initializing it from env on first use.
func L() *slog.Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Init replaces the application logger and slog.Default.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(os.Stderr, hopts)
	} else {
		console = &prettyTextHandler{opts: prettyOpts{Level: lvl, AddSource: opts.AddSource}, w: os.Stderr}
	}
	handlers := []slog.Handler{withContextAttrs(console)}

	if f := strings.TrimSpace(opts.File); f != "" {
		w := &lj.Logger{
			Filename:   f,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		handlers = append(handlers, withContextAttrs(slog.NewJSONHandler(w, hopts)))
	}

	h := handlers[0]
	if len(handlers) > 1 {
		h = &fanout{hs: handlers}
	}
	logger := slog.New(h).With(
		slog.String("app", "reportdesigner"),
		slog.String("ver", version.Version),
	)

	defaultLoggerMu.Lock()
	defaultLogger = logger
	defaultLoggerMu.Unlock()
	slog.SetDefault(logger)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// FromEnv builds Options from RD_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:      getenv("RD_LOG_LEVEL", "info"),
		Format:     getenv("RD_LOG_FORMAT", "console"),
		AddSource:  strings.EqualFold(getenv("RD_LOG_SOURCE", "false"), "true"),
		File:       os.Getenv("RD_LOG_FILE"),
		MaxSizeMB:  atoi(os.Getenv("RD_LOG_MAX_SIZE_MB")),
		MaxBackups: atoi(os.Getenv("RD_LOG_MAX_BACKUPS")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// WithComponent returns the application logger tagged with a component name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type ctxKey struct{}

// WithTemplate returns a context whose log records carry the template id.
func WithTemplate(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// TemplateFrom returns the template id stored by WithTemplate.
func TemplateFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
