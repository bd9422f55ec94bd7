/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events and crash reports. Nothing is
// sent unless the user opted in and an endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "reportdesigner/internal/log"
	"reportdesigner/internal/version"
)

// Event names.
const (
	EventTemplateSaved   = "template_saved"
	EventFieldCreated    = "field_created"
	EventPreviewExported = "preview_exported"
)

// Config is read from the environment by FromEnv:
//   - RD_TELEMETRY_OPT_IN: 1|true|yes|on
//   - RD_TELEMETRY_URL: endpoint receiving JSON events
//   - RD_CRASH_UPLOAD_URL: endpoint receiving crash reports
//   - RD_TELEMETRY_TIMEOUT_MS: request timeout, default 1500
//   - RD_TELEMETRY_DEBUG: log send attempts
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("RD_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("RD_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("RD_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("RD_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("RD_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Client queues events on a bounded channel and drops them when full or on errors.
type Client struct {
	cfg    Config
	log    *slog.Logger
	cli    *http.Client
	q      chan map[string]any
	busy   atomic.Int64
	once   sync.Once
	closed chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func current() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault installs c as the package-level client and closes the previous one.
func SetDefault(c *Client) {
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if prev != nil && prev != c {
		prev.Close()
	}
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool { return current().Enabled() }

// Event queues a named event. Only scalar properties are kept.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		if _, reserved := payload[k]; reserved {
			continue
		}
		switch v.(type) {
		case string, bool, int, int64, float64:
			payload[k] = v
		}
	}
	c.busy.Add(1)
	select {
	case c.q <- payload:
	default:
		c.busy.Add(-1)
	}
}

// Event sends through the default client.
func Event(name string, props map[string]any) { current().Event(name, props) }

// Flush waits until queued events are sent, ctx ends, or two seconds pass.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.After(2 * time.Second)
	for c.busy.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Flush flushes the default client.
func Flush(ctx context.Context) { current().Flush(ctx) }

// Close stops the sender goroutine. Queued events are dropped.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", mustJSON(item))
			c.busy.Add(-1)
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (c *Client) post(url, contentType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("url", url), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("url", url), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report when opted in and a crash URL is set.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	c.busy.Add(1)
	go func() {
		defer c.busy.Add(-1)
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b)
	}()
}

// UploadCrash uses the default client.
func UploadCrash(report []byte) { current().UploadCrash(report) }
