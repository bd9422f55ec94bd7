//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"reportdesigner/internal/config"
	"reportdesigner/internal/crash"
	"reportdesigner/internal/designer"
	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
	"reportdesigner/internal/preview"
	"reportdesigner/internal/session"
	"reportdesigner/internal/storage"
	"reportdesigner/internal/version"
)

const autosaveEvery = time.Minute

// Run opens the designer window on templateID from the library at libraryDir. An empty
// templateID starts a new template.
func Run(libraryDir, templateID string) error {
	cfg, _, err := config.Load()
	if err != nil {
		applog.WithComponent("ui").Warn("config load failed, using defaults", slog.Any("err", err))
	}
	l := applog.WithComponent("ui")
	if libraryDir == "" {
		if libraryDir, err = cfg.Storage.LibraryPath(); err != nil {
			return err
		}
	}
	lib, err := storage.InitLibrary(libraryDir)
	if err != nil {
		return err
	}
	defer lib.Close()

	var s *session.Session
	if templateID == "" {
		s = session.New(lib, cfg.Designer)
	} else if s, err = session.Open(lib, templateID, cfg.Designer); err != nil {
		return err
	}
	defer crash.Recover(s.Handle())
	l.Info("starting UI", slog.String("library", libraryDir), slog.String("template", s.ID))

	fyneApp := app.NewWithID("reportdesigner")
	w := fyneApp.NewWindow("Report Designer " + version.String())
	prefs := fyneApp.Preferences()
	w.Resize(fyne.NewSize(
		float32(max(prefs.IntWithFallback("window.width", 1280), 900)),
		float32(max(prefs.IntWithFallback("window.height", 860), 600)),
	))

	status := widget.NewLabel("Ready")
	setStatus := func(msg string) { fyne.Do(func() { status.SetText(msg) }) }

	tc := NewTemplateCanvas(s.Designer, s.Drag)
	insp := newInspectorPanel(s.Inspector, status)
	tc.OnSelect = insp.refresh

	var undoBtn, redoBtn *widget.ToolbarAction
	refreshHistory := func() {
		if s.Designer.CanUndo() {
			undoBtn.Enable()
		} else {
			undoBtn.Disable()
		}
		if s.Designer.CanRedo() {
			redoBtn.Enable()
		} else {
			redoBtn.Disable()
		}
	}
	s.OnChange(func([]domain.Field) {
		fyne.Do(func() {
			tc.Refresh()
			insp.refresh()
			refreshHistory()
		})
	})

	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Template name")
	nameEntry.SetText(s.Designer.Name())
	nameEntry.OnChanged = s.Designer.SetName

	paperNames := []string{string(domain.PaperA4), string(domain.PaperLetter)}
	paperSel := widget.NewSelect(paperNames, func(v string) {
		p, err := domain.ParsePaperSize(v)
		if err == nil && s.Designer.SetPaperSize(p) == nil {
			tc.Refresh()
		}
	})
	paperSel.SetSelected(string(s.Designer.PaperSize()))

	kinds := make([]string, 0, len(domain.Kinds()))
	for _, k := range domain.Kinds() {
		kinds = append(kinds, string(k))
	}
	var addSel *widget.Select
	addSel = widget.NewSelect(kinds, func(v string) {
		if v == "" {
			return
		}
		f := s.Designer.CreateField(v)
		s.Designer.Select(f.ID)
		insp.refresh()
		addSel.ClearSelected()
	})
	addSel.PlaceHolder = "Add field…"

	var saveBtn *widget.ToolbarAction
	save := func() {
		if s.Designer.Saving() {
			return
		}
		saveBtn.Disable()
		status.SetText("Saving…")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout())
			defer cancel()
			err := s.Save(ctx)
			fyne.Do(func() {
				saveBtn.Enable()
				switch {
				case errors.Is(err, domain.ErrEmptyName), errors.Is(err, domain.ErrNoFields):
					dialog.ShowInformation("Cannot save", err.Error(), w)
					status.SetText("Not saved")
				case err != nil:
					dialog.ShowError(err, w)
					status.SetText("Save failed")
				default:
					status.SetText("Saved " + time.Now().Format("15:04:05"))
				}
			})
		}()
	}
	saveBtn = widget.NewToolbarAction(theme.DocumentSaveIcon(), save)
	undoBtn = widget.NewToolbarAction(theme.ContentUndoIcon(), func() {
		if s.Designer.Undo() {
			tc.Refresh()
			insp.refresh()
		}
		refreshHistory()
	})
	redoBtn = widget.NewToolbarAction(theme.ContentRedoIcon(), func() {
		if s.Designer.Redo() {
			tc.Refresh()
			insp.refresh()
		}
		refreshHistory()
	})
	deleteBtn := widget.NewToolbarAction(theme.DeleteIcon(), func() {
		if id, ok := s.Designer.Active(); ok {
			s.Designer.DeleteField(id)
			insp.refresh()
		}
	})
	previewBtn := widget.NewToolbarAction(theme.DocumentPrintIcon(), func() {
		out := filepath.Join(lib.Root(), "previews", s.ID+".pdf")
		if err := preview.WriteFile(out, s.Designer.Export(), preview.Options{}); err != nil {
			dialog.ShowError(err, w)
			return
		}
		status.SetText("Preview written to " + out)
	})
	refreshHistory()

	toolbar := widget.NewToolbar(saveBtn, widget.NewToolbarSeparator(), undoBtn, redoBtn,
		widget.NewToolbarSeparator(), deleteBtn, previewBtn)
	top := container.NewBorder(nil, nil, toolbar, container.NewHBox(addSel, paperSel), nameEntry)

	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if w.Canvas().Focused() != nil {
			return
		}
		if ev.Name == fyne.KeyDelete {
			deleteBtn.OnActivated()
			return
		}
		if s.Drag.HandleKey(designer.ParseKey(string(ev.Name))) {
			tc.Refresh()
		}
	})

	split := container.NewHSplit(container.NewScroll(tc), insp.container())
	split.Offset = 0.75
	w.SetContent(container.NewBorder(top, status, nil, nil, split))

	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(autosaveEvery)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if wrote, err := s.Autosave(ctx); err != nil {
					setStatus("Autosave failed: " + err.Error())
				} else if wrote {
					setStatus("Autosaved " + time.Now().Format("15:04:05"))
				}
				cancel()
			}
		}
	}()

	w.SetCloseIntercept(func() {
		size := w.Canvas().Size()
		prefs.SetInt("window.width", int(size.Width))
		prefs.SetInt("window.height", int(size.Height))
		if !s.Designer.Dirty() {
			w.Close()
			return
		}
		dialog.ShowConfirm("Unsaved changes", "Discard changes to this template?", func(ok bool) {
			if ok {
				w.Close()
			}
		}, w)
	})
	w.ShowAndRun()
	close(stop)
	return nil
}

// inspectorPanel is the property form bound to the active field.
type inspectorPanel struct {
	in      *designer.Inspector
	status  *widget.Label
	syncing bool

	title     *widget.Label
	label     *widget.Entry
	fontSize  *widget.Entry
	bold      *widget.Check
	showLabel *widget.Check
	form      *widget.Form
}

func newInspectorPanel(in *designer.Inspector, status *widget.Label) *inspectorPanel {
	p := &inspectorPanel{in: in, status: status, title: widget.NewLabel("No field selected")}
	report := func(err error) {
		if err != nil {
			p.status.SetText(err.Error())
		}
	}
	p.label = widget.NewEntry()
	p.label.OnChanged = func(v string) {
		if !p.syncing {
			report(p.in.SetLabel(v))
		}
	}
	p.fontSize = widget.NewEntry()
	p.fontSize.OnSubmitted = func(v string) {
		n, err := strconv.Atoi(v)
		if err != nil {
			report(fmt.Errorf("font size: %w", designer.ErrInvalidValue))
			return
		}
		report(p.in.SetFontSize(n))
	}
	p.bold = widget.NewCheck("Bold", func(b bool) {
		if !p.syncing {
			report(p.in.SetBold(b))
		}
	})
	p.showLabel = widget.NewCheck("Show label", func(b bool) {
		if !p.syncing {
			report(p.in.SetShowLabel(b))
		}
	})
	p.form = widget.NewForm(
		widget.NewFormItem("Label", p.label),
		widget.NewFormItem("Font size", p.fontSize),
		widget.NewFormItem("", p.bold),
		widget.NewFormItem("", p.showLabel),
	)
	p.refresh()
	return p
}

func (p *inspectorPanel) container() fyne.CanvasObject {
	return container.NewVBox(p.title, p.form)
}

// refresh copies the active field into the form without writing back.
func (p *inspectorPanel) refresh() {
	p.syncing = true
	defer func() { p.syncing = false }()
	props, ok := p.in.Current()
	if !ok {
		p.title.SetText("No field selected")
		p.form.Hide()
		return
	}
	p.title.SetText(fmt.Sprintf("%s · %s", domain.DefaultLabel(string(props.Type)), props.ID))
	if p.label.Text != props.Label {
		p.label.SetText(props.Label)
	}
	p.fontSize.SetText(strconv.Itoa(props.FontSize))
	p.bold.SetChecked(props.Bold)
	p.showLabel.SetChecked(props.ShowLabel)
	p.form.Show()
}
