/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"reportdesigner/internal/domain"
)

//go:embed schema/template.schema.json
var templateSchemaJSON []byte

// ErrSchema marks documents that do not match the template JSON schema.
var ErrSchema = errors.New("template does not match schema")

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(templateSchemaJSON))
	})
	return schema, schemaErr
}

// SchemaJSON returns the embedded JSON schema for template documents.
func SchemaJSON() []byte { return append([]byte(nil), templateSchemaJSON...) }

// ValidateJSON checks raw template JSON against the embedded schema.
func ValidateJSON(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}

// ValidateDocument serializes doc and checks it against the schema.
func ValidateDocument(doc domain.TemplateDocument) error {
	if doc.Fields == nil {
		doc.Fields = []domain.Field{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	return ValidateJSON(data)
}
