/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"strings"
	"testing"

	"reportdesigner/internal/domain"
)

func TestValidateJSONAcceptsTemplate(t *testing.T) {
	doc := `{"name":"CBC","paperSize":"A4","fields":[
		{"id":"f1","type":"text","label":"Patient","x":50,"y":50,"fontSize":14,"bold":false,"showLabel":true},
		{"id":"f2","type":"signature","label":"Sign","x":10,"y":10,"fontSize":12,"bold":true,"showLabel":true}
	]}`
	if err := ValidateJSON([]byte(doc)); err != nil {
		t.Fatalf("expected valid document (unknown kinds allowed), got %v", err)
	}
}

func TestValidateJSONRejects(t *testing.T) {
	cases := map[string]string{
		"missing name":   `{"paperSize":"A4","fields":[]}`,
		"bad paper":      `{"name":"x","paperSize":"Legal","fields":[]}`,
		"zero font":      `{"name":"x","paperSize":"A4","fields":[{"id":"a","type":"text","label":"","x":0,"y":0,"fontSize":0,"bold":false,"showLabel":true}]}`,
		"fields not arr": `{"name":"x","paperSize":"A4","fields":{}}`,
		"not json":       `{`,
	}
	for name, doc := range cases {
		err := ValidateJSON([]byte(doc))
		if !errors.Is(err, ErrSchema) {
			t.Fatalf("%s: expected ErrSchema, got %v", name, err)
		}
	}
}

func TestValidateDocumentNilFields(t *testing.T) {
	if err := ValidateDocument(domain.TemplateDocument{Name: "x", PaperSize: domain.PaperLetter}); err != nil {
		t.Fatalf("nil fields should serialize as an empty array: %v", err)
	}
}

func TestSchemaJSONIsCopy(t *testing.T) {
	b := SchemaJSON()
	if !strings.Contains(string(b), `"paperSize"`) {
		t.Fatalf("schema missing paperSize property")
	}
	b[0] = 'X'
	if SchemaJSON()[0] == 'X' {
		t.Fatalf("SchemaJSON must return a copy")
	}
}
