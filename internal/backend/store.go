/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend talks to the template persistence collaborators: the medical-center
// REST API and, for self-hosted setups, a Postgres table of report templates.
package backend

import (
	"context"

	"reportdesigner/internal/domain"
)

// ReportType is a report type as listed by a template store.
type ReportType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasTemplate bool   `json:"hasTemplate"`
	Version     int64  `json:"version,omitempty"`
}

// TemplateStore is implemented by Client and PGStore.
type TemplateStore interface {
	// LoadTemplate returns the template of a report type; ok is false when none exists yet.
	LoadTemplate(ctx context.Context, reportTypeID string) (doc domain.TemplateDocument, ok bool, err error)
	SaveTemplate(ctx context.Context, reportTypeID string, doc domain.TemplateDocument) error
	ListReportTypes(ctx context.Context) ([]ReportType, error)
}

var (
	_ TemplateStore = (*Client)(nil)
	_ TemplateStore = (*PGStore)(nil)
)

// Saver adapts a store to the designer's save collaborator for one report type.
func Saver(s TemplateStore, reportTypeID string) func(context.Context, domain.TemplateDocument) error {
	return func(ctx context.Context, doc domain.TemplateDocument) error {
		return s.SaveTemplate(ctx, reportTypeID, doc)
	}
}

func normalizeLoaded(doc domain.TemplateDocument) domain.TemplateDocument {
	if doc.Fields == nil {
		doc.Fields = []domain.Field{}
	}
	return doc
}
