/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// FallbackLabel is used for kinds outside the closed enumeration.
const FallbackLabel = "Field"

// Default field attributes applied at creation.
const (
	DefaultFontSize = 14
	DefaultX        = 50.0
	DefaultY        = 50.0
)

var defaultLabels = map[FieldKind]string{
	KindText:     "Text Field",
	KindNumber:   "Number Field",
	KindDate:     "Date Field",
	KindCheckbox: "Checkbox",
	KindTextarea: "Text Area",
	KindHeading:  "Heading",
	KindPieChart: "Pie Chart",
	KindBarChart: "Bar Chart",
}

// DefaultLabel returns the label a new field of the given kind starts with.
func DefaultLabel(kind string) string {
	if l, ok := defaultLabels[FieldKind(kind)]; ok {
		return l
	}
	return FallbackLabel
}

// KindVisitor has one method per field kind. Renderers implement it so that a new
// kind cannot be added without every renderer handling it.
type KindVisitor[T any] interface {
	Text(f Field) T
	Number(f Field) T
	Date(f Field) T
	Checkbox(f Field) T
	Textarea(f Field) T
	Heading(f Field) T
	PieChart(f Field) T
	BarChart(f Field) T
	Unknown(f Field) T
}

// Dispatch calls the visitor method matching f.Type.
func Dispatch[T any](f Field, v KindVisitor[T]) T {
	switch f.Type {
	case KindText:
		return v.Text(f)
	case KindNumber:
		return v.Number(f)
	case KindDate:
		return v.Date(f)
	case KindCheckbox:
		return v.Checkbox(f)
	case KindTextarea:
		return v.Textarea(f)
	case KindHeading:
		return v.Heading(f)
	case KindPieChart:
		return v.PieChart(f)
	case KindBarChart:
		return v.BarChart(f)
	default:
		return v.Unknown(f)
	}
}
