/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"reportdesigner/internal/backend"
	"reportdesigner/internal/config"
	"reportdesigner/internal/crash"
	"reportdesigner/internal/designer"
	"reportdesigner/internal/domain"
	applog "reportdesigner/internal/log"
	"reportdesigner/internal/preview"
	"reportdesigner/internal/session"
	"reportdesigner/internal/storage"
	"reportdesigner/internal/telemetry"
	"reportdesigner/internal/ui"
	"reportdesigner/internal/version"
)

func usage() {
	fmt.Println("Report Designer")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reportdesigner version                          Show version")
	fmt.Println("  reportdesigner init [dir]                       Create a template library")
	fmt.Println("  reportdesigner new <name> [A4|Letter]           Create an empty template")
	fmt.Println("  reportdesigner list [query]                     List or search templates")
	fmt.Println("  reportdesigner show <id>                        Print a template's fields")
	fmt.Println("  reportdesigner add <id> <kind>                  Add a field of kind")
	fmt.Println("  reportdesigner set <id> <field> <prop> <value>  Edit label|fontSize|bold|showLabel")
	fmt.Println("  reportdesigner move <id> <field> <dx> <dy>      Move a field by a delta")
	fmt.Println("  reportdesigner rm <id> <field>                  Delete a field")
	fmt.Println("  reportdesigner paper <id> <A4|Letter>           Switch paper size")
	fmt.Println("  reportdesigner preview <id> <out.pdf|out.png>   Render a preview")
	fmt.Println("  reportdesigner types                            List backend report types")
	fmt.Println("  reportdesigner pull <reportTypeID>              Copy a backend template into the library")
	fmt.Println("  reportdesigner push <id> [reportTypeID]         Save a library template to the backend")
	fmt.Println("  reportdesigner recover <id>                     Restore the latest autosave")
	fmt.Println("  reportdesigner ui [id]                          Launch desktop UI (build with -tags fyne)")
	fmt.Println()
	fmt.Printf("Field kinds: %s\n", strings.Join(kindNames(), ", "))
}

func kindNames() []string {
	var out []string
	for _, k := range domain.Kinds() {
		out = append(out, string(k))
	}
	return out
}

// cli carries what every command needs.
type cli struct {
	cfg   config.AppConfig
	token string
	l     *slog.Logger
	h     *storage.Handle
	lib   *storage.Library
}

// close releases the library opened by a command, if any.
func (c *cli) close() {
	if c.lib != nil {
		_ = c.lib.Close()
		c.lib = nil
	}
}

func main() {
	cfg, token, cfgErr := config.Load()
	applog.Init(cfg.Logging.Options())
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config", slog.Any("err", cfgErr))
	}
	tel := telemetry.FromEnv()
	tel.OptIn = tel.OptIn || cfg.General.TelemetryOptIn
	telemetry.SetDefault(telemetry.New(tel))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		telemetry.Flush(ctx)
	}()

	c := &cli{cfg: cfg, token: token, l: l, h: &storage.Handle{}}
	// Recover runs before close so a crash snapshot can still reach the library.
	defer c.close()
	defer crash.Recover(c.h)

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return
	}
	l.Debug("start", slog.String("cmd", args[0]), slog.Int("args", len(args)))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := c.run(ctx, args[0], args[1:]); err != nil {
		c.close()
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Println(ue.Error())
			usage()
			os.Exit(2)
		}
		l.Error(args[0]+" failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

// parseDelta reads a move delta. NaN and infinities are refused.
func parseDelta(x, y string) (dx, dy float64, err error) {
	dx, errX := strconv.ParseFloat(x, 64)
	dy, errY := strconv.ParseFloat(y, 64)
	if errors.Join(errX, errY) != nil || math.IsNaN(dx+dy) || math.IsInf(dx, 0) || math.IsInf(dy, 0) {
		return 0, 0, usageError("move: dx and dy must be finite numbers")
	}
	return dx, dy, nil
}

type usageError string

func (e usageError) Error() string { return string(e) }

func need(args []string, n int, what string) error {
	if len(args) < n {
		return usageError(what)
	}
	return nil
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "version", "--version", "-v":
		fmt.Println("Report Designer")
		fmt.Println(version.String())
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	case "init":
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return c.initLibrary(dir)
	case "new":
		if err := need(args, 1, "new requires <name>"); err != nil {
			return err
		}
		return c.withLibrary(func(lib *storage.Library) error { return c.newTemplate(ctx, lib, args) })
	case "list":
		return c.withLibrary(func(lib *storage.Library) error {
			return c.list(ctx, lib, strings.Join(args, " "))
		})
	case "show":
		if err := need(args, 1, "show requires <id>"); err != nil {
			return err
		}
		return c.withLibrary(func(lib *storage.Library) error { return c.show(lib, args[0]) })
	case "add":
		if err := need(args, 2, "add requires <id> and <kind>"); err != nil {
			return err
		}
		return c.edit(ctx, args[0], func(s *session.Session) error {
			f := s.Designer.CreateField(args[1])
			fmt.Printf("Added %s field %s at (%g, %g)\n", f.Type, f.ID, f.X, f.Y)
			return nil
		})
	case "set":
		if err := need(args, 4, "set requires <id> <field> <prop> <value>"); err != nil {
			return err
		}
		return c.edit(ctx, args[0], func(s *session.Session) error {
			p, err := designer.ParseProperty(args[2])
			if err != nil {
				return err
			}
			v, err := designer.ParseValue(p, strings.Join(args[3:], " "))
			if err != nil {
				return err
			}
			if _, ok := s.Designer.Field(args[1]); !ok {
				return fmt.Errorf("field %s: %w", args[1], storage.ErrNotFound)
			}
			return s.Designer.UpdateField(args[1], p, v)
		})
	case "move":
		if err := need(args, 4, "move requires <id> <field> <dx> <dy>"); err != nil {
			return err
		}
		dx, dy, err := parseDelta(args[2], args[3])
		if err != nil {
			return err
		}
		return c.edit(ctx, args[0], func(s *session.Session) error {
			// A keyboard-free drag applies the same clamping and snapping as the UI.
			if !s.Drag.Start(args[1]) {
				return fmt.Errorf("field %s: %w", args[1], storage.ErrNotFound)
			}
			s.Drag.Move(dx, dy)
			if f, ok := s.Drag.End(); ok {
				fmt.Printf("Moved %s to (%g, %g)\n", f.ID, f.X, f.Y)
			}
			return nil
		})
	case "rm":
		if err := need(args, 2, "rm requires <id> and <field>"); err != nil {
			return err
		}
		return c.edit(ctx, args[0], func(s *session.Session) error {
			if !s.Designer.DeleteField(args[1]) {
				return fmt.Errorf("field %s: %w", args[1], storage.ErrNotFound)
			}
			return nil
		})
	case "paper":
		if err := need(args, 2, "paper requires <id> and <A4|Letter>"); err != nil {
			return err
		}
		p, err := domain.ParsePaperSize(args[1])
		if err != nil {
			return err
		}
		return c.edit(ctx, args[0], func(s *session.Session) error { return s.Designer.SetPaperSize(p) })
	case "preview":
		if err := need(args, 2, "preview requires <id> and <out.pdf|out.png>"); err != nil {
			return err
		}
		return c.withLibrary(func(lib *storage.Library) error {
			doc, err := lib.Get(args[0])
			if err != nil {
				return err
			}
			if err := preview.WriteFile(args[1], doc, preview.Options{}); err != nil {
				return err
			}
			fmt.Println("Preview written to", args[1])
			return nil
		})
	case "types":
		return c.withStore(ctx, func(st backend.TemplateStore) error { return c.types(ctx, st) })
	case "pull":
		if err := need(args, 1, "pull requires <reportTypeID>"); err != nil {
			return err
		}
		return c.withLibrary(func(lib *storage.Library) error {
			return c.withStore(ctx, func(st backend.TemplateStore) error { return c.pull(ctx, lib, st, args[0]) })
		})
	case "push":
		if err := need(args, 1, "push requires <id>"); err != nil {
			return err
		}
		target := args[0]
		if len(args) > 1 {
			target = args[1]
		}
		return c.withLibrary(func(lib *storage.Library) error {
			return c.withStore(ctx, func(st backend.TemplateStore) error { return c.push(ctx, lib, st, args[0], target) })
		})
	case "recover":
		if err := need(args, 1, "recover requires <id>"); err != nil {
			return err
		}
		return c.withLibrary(func(lib *storage.Library) error { return c.recoverAutosave(ctx, lib, args[0]) })
	case "ui":
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		dir, err := c.cfg.Storage.LibraryPath()
		if err != nil {
			return err
		}
		c.l.Info("launch ui", slog.String("library", dir), slog.String("template", id))
		return ui.Run(dir, id)
	}
	return usageError("unknown command: " + cmd)
}

func (c *cli) initLibrary(dir string) error {
	if dir == "" {
		var err error
		if dir, err = c.cfg.Storage.LibraryPath(); err != nil {
			return err
		}
	}
	abs, _ := filepath.Abs(dir)
	lib, err := storage.InitLibrary(abs)
	if err != nil {
		return err
	}
	defer lib.Close()
	fmt.Println("Library ready at", abs)
	return nil
}

// withLibrary opens the configured library, creating it on first use. It stays open until
// main returns.
func (c *cli) withLibrary(fn func(lib *storage.Library) error) error {
	if c.lib != nil {
		return fn(c.lib)
	}
	dir, err := c.cfg.Storage.LibraryPath()
	if err != nil {
		return err
	}
	lib, err := storage.OpenLibrary(dir)
	if errors.Is(err, storage.ErrNotLibrary) {
		c.l.Info("creating library", slog.String("root", dir))
		lib, err = storage.InitLibrary(dir)
	}
	if err != nil {
		return err
	}
	c.lib, c.h.Library = lib, lib
	return fn(lib)
}

// withStore picks Postgres when a DSN is configured and the HTTP backend otherwise.
func (c *cli) withStore(ctx context.Context, fn func(st backend.TemplateStore) error) error {
	if dsn := strings.TrimSpace(c.cfg.Storage.PGDSN); dsn != "" {
		pg, err := backend.OpenPG(ctx, dsn)
		if err != nil {
			return err
		}
		defer pg.Close()
		return fn(pg)
	}
	cl := backend.NewClient(c.cfg.Backend.BaseURL, c.token,
		backend.WithTimeout(c.cfg.Backend.Timeout()),
		backend.WithCacheTTL(c.cfg.Backend.CacheTTL()),
		backend.WithInsecureTLS(c.cfg.Backend.TLSInsecure),
	)
	return fn(cl)
}

// edit opens template id, applies fn and saves the result.
func (c *cli) edit(ctx context.Context, id string, fn func(s *session.Session) error) error {
	return c.withLibrary(func(lib *storage.Library) error {
		s, err := session.Open(lib, id, c.cfg.Designer)
		if err != nil {
			return err
		}
		c.h.ID, c.h.Live = s.ID, s.Designer.Export
		if err := fn(s); err != nil {
			return err
		}
		if !s.Designer.Dirty() {
			fmt.Println("No changes")
			return nil
		}
		if err := s.Save(ctx); err != nil {
			return err
		}
		fmt.Println("Saved", id)
		return nil
	})
}

func (c *cli) newTemplate(ctx context.Context, lib *storage.Library, args []string) error {
	paper := c.cfg.Designer.Paper()
	if len(args) > 1 {
		p, err := domain.ParsePaperSize(args[1])
		if err != nil {
			return err
		}
		paper = p
	}
	rec, err := lib.Create(ctx, domain.TemplateDocument{Name: args[0], PaperSize: paper, Fields: []domain.Field{}})
	if err != nil {
		return err
	}
	fmt.Println(rec.ID)
	return nil
}

func (c *cli) list(ctx context.Context, lib *storage.Library, q string) error {
	recs, err := lib.Search(ctx, q)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPAPER\tFIELDS\tUPDATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.PaperSize, r.FieldCount, r.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *cli) show(lib *storage.Library, id string) error {
	doc, err := lib.Get(id)
	if err != nil {
		return err
	}
	w, h := doc.PaperSize.Dimensions()
	fmt.Printf("%s (%s, %gx%g px)\n", doc.Name, doc.PaperSize, w, h)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tLABEL\tX\tY\tSIZE\tBOLD\tLABEL SHOWN")
	for _, f := range doc.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%g\t%d\t%t\t%t\n", f.ID, f.Type, f.Label, f.X, f.Y, f.FontSize, f.Bold, f.ShowLabel)
	}
	return tw.Flush()
}

func (c *cli) types(ctx context.Context, st backend.TemplateStore) error {
	rts, err := st.ListReportTypes(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTEMPLATE\tVERSION")
	for _, rt := range rts {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", rt.ID, rt.Name, rt.HasTemplate, rt.Version)
	}
	return tw.Flush()
}

// pull stores the backend template of reportTypeID in the library under the same id.
func (c *cli) pull(ctx context.Context, lib *storage.Library, st backend.TemplateStore, reportTypeID string) error {
	s, err := session.OpenRemote(ctx, st, reportTypeID, lib, c.cfg.Designer)
	if err != nil {
		return err
	}
	doc := s.Designer.Export()
	if doc.Name == "" {
		doc.Name = reportTypeID
	}
	if err := lib.Put(ctx, reportTypeID, doc); err != nil {
		return err
	}
	fmt.Printf("Pulled %s (%d fields)\n", reportTypeID, len(doc.Fields))
	return nil
}

func (c *cli) push(ctx context.Context, lib *storage.Library, st backend.TemplateStore, id, reportTypeID string) error {
	doc, err := lib.Get(id)
	if err != nil {
		return err
	}
	if err := domain.ValidateForSave(doc); err != nil {
		return err
	}
	if err := st.SaveTemplate(ctx, reportTypeID, doc); err != nil {
		return err
	}
	fmt.Printf("Pushed %s to report type %s\n", id, reportTypeID)
	return nil
}

func (c *cli) recoverAutosave(ctx context.Context, lib *storage.Library, id string) error {
	doc, at, ok, err := lib.LatestAutosave(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no autosave for %s", id)
	}
	if err := lib.Put(ctx, id, doc); err != nil {
		return err
	}
	fmt.Printf("Restored %s from autosave of %s\n", id, at.Local().Format(time.DateTime))
	return nil
}
