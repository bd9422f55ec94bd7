/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package designer

import (
	"errors"

	"reportdesigner/internal/domain"
)

var ErrNoActiveField = errors.New("no active field")

// FieldProperties is the inspector's view of the active field.
type FieldProperties struct {
	ID        string
	Type      domain.FieldKind
	Label     string
	FontSize  int
	Bold      bool
	ShowLabel bool
}

// Inspector edits the active field of a designer. Every edit goes through UpdateField.
type Inspector struct {
	d *Designer
}

func NewInspector(d *Designer) *Inspector { return &Inspector{d: d} }

// Current returns the active field's properties, or false when nothing is selected.
func (in *Inspector) Current() (FieldProperties, bool) {
	id, ok := in.d.Active()
	if !ok {
		return FieldProperties{}, false
	}
	f, ok := in.d.Field(id)
	if !ok {
		return FieldProperties{}, false
	}
	return FieldProperties{
		ID:        f.ID,
		Type:      f.Type,
		Label:     f.Label,
		FontSize:  f.FontSize,
		Bold:      f.Bold,
		ShowLabel: f.ShowLabel,
	}, true
}

func (in *Inspector) Set(p Property, value any) error {
	id, ok := in.d.Active()
	if !ok {
		return ErrNoActiveField
	}
	return in.d.UpdateField(id, p, value)
}

func (in *Inspector) SetLabel(label string) error { return in.Set(PropLabel, label) }
func (in *Inspector) SetFontSize(px int) error    { return in.Set(PropFontSize, px) }
func (in *Inspector) SetBold(b bool) error        { return in.Set(PropBold, b) }
func (in *Inspector) SetShowLabel(b bool) error   { return in.Set(PropShowLabel, b) }
