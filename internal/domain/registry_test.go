/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "testing"

func TestDefaultLabels(t *testing.T) {
	want := map[string]string{
		"text":      "Text Field",
		"number":    "Number Field",
		"date":      "Date Field",
		"checkbox":  "Checkbox",
		"textarea":  "Text Area",
		"heading":   "Heading",
		"pie-chart": "Pie Chart",
		"bar-chart": "Bar Chart",
	}
	for kind, label := range want {
		if got := DefaultLabel(kind); got != label {
			t.Fatalf("DefaultLabel(%q) = %q, want %q", kind, got, label)
		}
		// deterministic
		if DefaultLabel(kind) != DefaultLabel(kind) {
			t.Fatalf("DefaultLabel(%q) not deterministic", kind)
		}
	}
	for _, unknown := range []string{"", "signature", "TEXT", "pie chart"} {
		if got := DefaultLabel(unknown); got != FallbackLabel {
			t.Fatalf("DefaultLabel(%q) = %q, want fallback", unknown, got)
		}
	}
}

func TestKindsAreKnown(t *testing.T) {
	ks := Kinds()
	if len(ks) != 8 {
		t.Fatalf("expected 8 kinds, got %d", len(ks))
	}
	for _, k := range ks {
		if !k.Known() {
			t.Fatalf("%q should be known", k)
		}
	}
	if FieldKind("image").Known() {
		t.Fatalf("image must not be a known kind")
	}
}

type nameVisitor struct{}

func (nameVisitor) Text(Field) string     { return "text" }
func (nameVisitor) Number(Field) string   { return "number" }
func (nameVisitor) Date(Field) string     { return "date" }
func (nameVisitor) Checkbox(Field) string { return "checkbox" }
func (nameVisitor) Textarea(Field) string { return "textarea" }
func (nameVisitor) Heading(Field) string  { return "heading" }
func (nameVisitor) PieChart(Field) string { return "pie-chart" }
func (nameVisitor) BarChart(Field) string { return "bar-chart" }
func (nameVisitor) Unknown(Field) string  { return "unknown" }

func TestDispatchCoversEveryKind(t *testing.T) {
	for _, k := range Kinds() {
		if got := Dispatch[string](Field{Type: k}, nameVisitor{}); got != string(k) {
			t.Fatalf("Dispatch(%q) = %q", k, got)
		}
	}
	if got := Dispatch[string](Field{Type: "qr"}, nameVisitor{}); got != "unknown" {
		t.Fatalf("Dispatch(unknown) = %q", got)
	}
}
