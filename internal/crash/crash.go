/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic at the process boundary into a report file, an autosave
// of the template being edited and a non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "reportdesigner/internal/log"
	"reportdesigner/internal/storage"
	"reportdesigner/internal/telemetry"
	"reportdesigner/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// Recover captures a panic, logs it with its stack, writes a crash report and autosaves
// the live template of h (if any) before exiting with code 2.
//
// Usage: defer crash.Recover(h)
func Recover(h *storage.Handle) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(h, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if h != nil && h.Library != nil && h.Live != nil {
		if path, err := storage.AutosaveCrashSnapshot(h); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("path", path))
		}
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func reportDir(h *storage.Handle) string {
	if h != nil && h.Library != nil {
		dir := h.Library.BackupsDir()
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir
		}
	}
	return os.TempDir()
}

func writeReport(h *storage.Handle, panicVal any, stack []byte) (string, error) {
	now := time.Now()
	path := filepath.Join(reportDir(h), fmt.Sprintf("crash-%s.log", now.Format("20060102-150405.000000")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Report Designer Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if h != nil {
		if h.Library != nil {
			_, _ = fmt.Fprintf(&buf, "Library: %s\n", h.Library.Root())
		}
		if h.ID != "" {
			_, _ = fmt.Fprintf(&buf, "Template: %s\n", h.ID)
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// no-op unless the user opted in
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
