/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain defines the report template document exchanged with the
// medical-center API and persisted by the local library.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldKind identifies what a placed field represents on a report.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindNumber   FieldKind = "number"
	KindDate     FieldKind = "date"
	KindCheckbox FieldKind = "checkbox"
	KindTextarea FieldKind = "textarea"
	KindHeading  FieldKind = "heading"
	KindPieChart FieldKind = "pie-chart"
	KindBarChart FieldKind = "bar-chart"
)

// Kinds returns the closed set of field kinds in palette order.
func Kinds() []FieldKind {
	return []FieldKind{KindText, KindNumber, KindDate, KindCheckbox, KindTextarea, KindHeading, KindPieChart, KindBarChart}
}

// Known reports whether k is part of the closed enumeration.
func (k FieldKind) Known() bool {
	switch k {
	case KindText, KindNumber, KindDate, KindCheckbox, KindTextarea, KindHeading, KindPieChart, KindBarChart:
		return true
	}
	return false
}

// PaperSize is the simulated paper a template is laid out on.
type PaperSize string

const (
	PaperA4     PaperSize = "A4"
	PaperLetter PaperSize = "Letter"
)

// DefaultPaperSize is used when no template is loaded.
const DefaultPaperSize = PaperA4

// Canvas dimensions in CSS pixels (96 dpi).
const (
	a4WidthPx      = 794
	a4HeightPx     = 1123
	letterWidthPx  = 816
	letterHeightPx = 1056
)

// PxPerInch is the canvas resolution used for all field coordinates.
const PxPerInch = 96.0

var ErrInvalidPaperSize = errors.New("invalid paper size")

// ParsePaperSize accepts the canonical names case-insensitively.
func ParsePaperSize(s string) (PaperSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a4":
		return PaperA4, nil
	case "letter":
		return PaperLetter, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaperSize, s)
}

func (p PaperSize) Valid() bool { return p == PaperA4 || p == PaperLetter }

// Dimensions returns the canvas width and height in pixels.
// Unknown sizes fall back to A4.
func (p PaperSize) Dimensions() (w, h float64) {
	if p == PaperLetter {
		return letterWidthPx, letterHeightPx
	}
	return a4WidthPx, a4HeightPx
}

// Field is a placeable element on the template canvas.
// Type never changes after creation; X/Y are canvas pixels from the paper's top-left.
type Field struct {
	ID        string    `json:"id"`
	Type      FieldKind `json:"type"`
	Label     string    `json:"label"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	FontSize  int       `json:"fontSize"`
	Bold      bool      `json:"bold"`
	ShowLabel bool      `json:"showLabel"`
}

// TemplateDocument is the unit written to and read from persistence.
type TemplateDocument struct {
	Name      string    `json:"name"`
	PaperSize PaperSize `json:"paperSize"`
	Fields    []Field   `json:"fields"`
}

// Clone returns a deep copy; the Fields slice is never shared.
func (d TemplateDocument) Clone() TemplateDocument {
	out := d
	out.Fields = CloneFields(d.Fields)
	return out
}

// CloneFields copies a field collection. A nil input yields an empty, non-nil slice
// so serialized documents always carry "fields": [].
func CloneFields(in []Field) []Field {
	out := make([]Field, len(in))
	copy(out, in)
	return out
}

var (
	ErrEmptyName     = errors.New("template name is required")
	ErrNoFields      = errors.New("template has no fields")
	ErrDuplicateID   = errors.New("duplicate field id")
	ErrEmptyFieldID  = errors.New("field id is empty")
	ErrInvalidFont   = errors.New("font size must be positive")
	ErrInvalidFields = errors.New("invalid template fields")
)

// ValidateForSave reports the user-facing reasons a template cannot be saved.
func ValidateForSave(d TemplateDocument) error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if len(d.Fields) == 0 {
		return ErrNoFields
	}
	return nil
}

// Validate checks structural invariants of a persisted document. Unknown field kinds
// are tolerated; they render with the registry fallback.
func Validate(d TemplateDocument) error {
	if !d.PaperSize.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaperSize, d.PaperSize)
	}
	seen := make(map[string]struct{}, len(d.Fields))
	var errs []error
	for i, f := range d.Fields {
		if f.ID == "" {
			errs = append(errs, fmt.Errorf("field %d: %w", i, ErrEmptyFieldID))
			continue
		}
		if _, dup := seen[f.ID]; dup {
			errs = append(errs, fmt.Errorf("field %d (%s): %w", i, f.ID, ErrDuplicateID))
		}
		seen[f.ID] = struct{}{}
		if f.FontSize <= 0 {
			errs = append(errs, fmt.Errorf("field %d (%s): %w", i, f.ID, ErrInvalidFont))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFields, errors.Join(errs...))
	}
	return nil
}
