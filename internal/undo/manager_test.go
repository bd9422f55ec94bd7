/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func TestRecordUndoRedoRoundTrip(t *testing.T) {
	m := NewManager(Config{})
	t0 := time.Now()
	m.Record(Snapshot{Key: "tpl", Blob: []byte("v1"), TS: t0})
	m.Record(Snapshot{Key: "tpl", Blob: []byte("v2"), TS: t0.Add(time.Second)})

	s, ok := m.Undo("tpl", []byte("v3"))
	if !ok || string(s.Blob) != "v2" {
		t.Fatalf("expected v2, got %q ok=%v", s.Blob, ok)
	}
	s, ok = m.Undo("tpl", []byte("v2"))
	if !ok || string(s.Blob) != "v1" {
		t.Fatalf("expected v1, got %q ok=%v", s.Blob, ok)
	}
	if _, ok := m.Undo("tpl", []byte("v1")); ok {
		t.Fatalf("history should be exhausted")
	}
	s, ok = m.Redo("tpl", []byte("v1"))
	if !ok || string(s.Blob) != "v2" {
		t.Fatalf("redo expected v2, got %q", s.Blob)
	}
	s, ok = m.Redo("tpl", []byte("v2"))
	if !ok || string(s.Blob) != "v3" {
		t.Fatalf("redo expected v3, got %q", s.Blob)
	}
	if m.CanRedo("tpl") {
		t.Fatalf("redo should be exhausted")
	}
	if !m.CanUndo("tpl") {
		t.Fatalf("undo should be available after redo")
	}
}

func TestRecordInvalidatesRedo(t *testing.T) {
	m := NewManager(Config{})
	m.Record(Snapshot{Key: "a", Blob: []byte("1")})
	if _, ok := m.Undo("a", []byte("2")); !ok {
		t.Fatalf("undo failed")
	}
	m.Record(Snapshot{Key: "a", Blob: []byte("1")})
	if m.CanRedo("a") {
		t.Fatalf("new change must clear redo")
	}
}

func TestCoalesceKeepsEarliestState(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Second})
	t0 := time.Now()
	m.Record(Snapshot{Key: "a", Blob: []byte("first"), TS: t0})
	m.Record(Snapshot{Key: "a", Blob: []byte("second"), TS: t0.Add(100 * time.Millisecond)})
	_, _, total := m.Stats()
	if total != 1 {
		t.Fatalf("expected coalesced history of 1, got %d", total)
	}
	s, _ := m.Undo("a", []byte("now"))
	if string(s.Blob) != "first" {
		t.Fatalf("coalesced undo should restore earliest state, got %q", s.Blob)
	}
}

func TestMaxPerKeyDropsOldest(t *testing.T) {
	m := NewManager(Config{MaxPerKey: 2})
	for _, b := range []string{"1", "2", "3"} {
		m.Record(Snapshot{Key: "k", Blob: []byte(b)})
	}
	s, _ := m.Undo("k", []byte("4"))
	if string(s.Blob) != "3" {
		t.Fatalf("expected 3, got %q", s.Blob)
	}
	s, _ = m.Undo("k", []byte("3"))
	if string(s.Blob) != "2" {
		t.Fatalf("expected 2, got %q", s.Blob)
	}
	if m.CanUndo("k") {
		t.Fatalf("oldest entry should have been dropped")
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024})
	m.Record(Snapshot{Key: "x", Blob: []byte("abcdef")})
	tb, keys, total := m.Stats()
	if tb == 0 || keys != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d keys=%d total=%d", tb, keys, total)
	}
	m.Clear("x")
	tb, keys, total = m.Stats()
	if tb != 0 || keys != 0 || total != 0 {
		t.Fatalf("expected zero stats after clear, got tb=%d keys=%d total=%d", tb, keys, total)
	}
}

func TestGlobalPruneAcrossKeys(t *testing.T) {
	m := NewManager(Config{MaxBytes: 8})
	t0 := time.Now()
	m.Record(Snapshot{Key: "old", Blob: []byte("xxxx"), TS: t0})
	m.Record(Snapshot{Key: "new", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	m.Record(Snapshot{Key: "new", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})
	if m.CanUndo("old") {
		t.Fatalf("expected oldest key to be pruned")
	}
	if !m.CanUndo("new") {
		t.Fatalf("expected newer key to keep history")
	}
}
