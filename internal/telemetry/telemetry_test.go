/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type collector struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes [][]byte
}

func (c *collector) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		c.mu.Lock()
		c.events = append(c.events, m)
		c.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, b)
		c.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientEventAndUploadCrash(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()

	c.Event(EventTemplateSaved, map[string]any{"fields": 3, "paper": "A4", "doc": map[string]any{"name": "secret"}, "name": "spoof"})
	c.UploadCrash([]byte("STACKTRACE"))
	c.Flush(context.Background())

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.events) != 1 {
		t.Fatalf("expected one event, got %d", len(col.events))
	}
	ev := col.events[0]
	if ev["name"] != EventTemplateSaved || ev["paper"] != "A4" || ev["fields"] != float64(3) {
		t.Fatalf("unexpected payload: %v", ev)
	}
	if _, ok := ev["doc"]; ok {
		t.Fatalf("non-scalar properties must be dropped: %v", ev)
	}
	if _, ok := ev["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
	if len(col.crashes) != 1 || string(col.crashes[0]) != "STACKTRACE" {
		t.Fatalf("crash upload missing: %q", col.crashes)
	}
}

func TestClientDisabledSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event(EventFieldCreated, nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL})
	defer c2.Close()
	c2.Event("", nil)

	c.Flush(context.Background())
	c2.Flush(context.Background())
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatalf("nil client is disabled")
	}
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash", Timeout: 50 * time.Millisecond, DebugLogging: true})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.UploadCrash([]byte("oops"))
	c.Flush(context.Background())
}

func TestFromEnvAndDefaultClient(t *testing.T) {
	t.Setenv("RD_TELEMETRY_OPT_IN", "true")
	t.Setenv("RD_TELEMETRY_URL", "http://127.0.0.1:0")
	t.Setenv("RD_CRASH_UPLOAD_URL", "")
	t.Setenv("RD_TELEMETRY_TIMEOUT_MS", "100")
	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	SetDefault(New(cfg))
	t.Cleanup(func() { SetDefault(New(Config{})) })
	if !Enabled() {
		t.Fatalf("default client should be enabled")
	}
}
