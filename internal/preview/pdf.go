/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"reportdesigner/internal/domain"
	"reportdesigner/internal/telemetry"
	"reportdesigner/internal/version"
)

// pxToPt converts 96 dpi canvas pixels to PDF points.
const pxToPt = 72.0 / domain.PxPerInch

var ErrUnsupportedFormat = errors.New("unsupported preview format")

// WritePDF renders doc as a single-page PDF sized to its paper.
func WritePDF(w io.Writer, doc domain.TemplateDocument, opt Options) error {
	cw, ch := doc.PaperSize.Dimensions()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: cw * pxToPt, Ht: ch * pxToPt},
	})
	title := strings.TrimSpace(doc.Name)
	if title == "" {
		title = "Untitled template"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Report Designer", false)
	pdf.SetCreator("reportdesigner "+version.String(), false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, o := range displayList(doc, opt) {
		drawPDF(pdf, tr, o)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	telemetry.Event(telemetry.EventPreviewExported, map[string]any{"format": "pdf", "fields": len(doc.Fields)})
	return nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) { pdf.SetDrawColor(int(c.R), int(c.G), int(c.B)) }
func setFillColor(pdf *gofpdf.Fpdf, c color.RGBA) { pdf.SetFillColor(int(c.R), int(c.G), int(c.B)) }

func drawPDF(pdf *gofpdf.Fpdf, tr func(string) string, o op) {
	if o.dashed {
		pdf.SetDashPattern([]float64{3, 2}, 0)
		defer pdf.SetDashPattern([]float64{}, 0)
	}
	pdf.SetLineWidth(0.75)
	setDrawColor(pdf, o.stroke)
	switch o.kind {
	case opText:
		style := ""
		if o.bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, o.size*pxToPt)
		pdf.SetTextColor(int(o.stroke.R), int(o.stroke.G), int(o.stroke.B))
		pdf.Text(o.x*pxToPt, o.y*pxToPt, tr(o.text))
	case opLine:
		pdf.Line(o.x*pxToPt, o.y*pxToPt, o.x2*pxToPt, o.y2*pxToPt)
	case opRect:
		style := "D"
		if o.filled {
			setFillColor(pdf, o.fill)
			style = "FD"
		}
		pdf.Rect(o.rect.X*pxToPt, o.rect.Y*pxToPt, o.rect.W*pxToPt, o.rect.H*pxToPt, style)
	case opPoly:
		pts := make([]gofpdf.PointType, len(o.pts))
		for i, p := range o.pts {
			pts[i] = gofpdf.PointType{X: p.X * pxToPt, Y: p.Y * pxToPt}
		}
		style := "D"
		if o.filled {
			setFillColor(pdf, o.fill)
			style = "FD"
		}
		pdf.Polygon(pts, style)
	}
}

// WriteFile renders doc to path, choosing PDF or PNG by extension.
func WriteFile(path string, doc domain.TemplateDocument, opt Options) (err error) {
	var write func(io.Writer, domain.TemplateDocument, Options) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		write = WritePDF
	case ".png":
		write = WritePNG
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure out dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", filepath.Base(path), cerr)
		}
	}()
	return write(f, doc, opt)
}
