// Command sqlitescope inspects SQLite database files: it decodes the
// page and b-tree structure and renders it as an interactive HTML
// visualization, a human-readable summary or a textual dump.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/sqlitescope/internal/btree"
	"github.com/FocuswithJustin/sqlitescope/internal/dump"
	"github.com/FocuswithJustin/sqlitescope/internal/format"
	"github.com/FocuswithJustin/sqlitescope/internal/logging"
	"github.com/FocuswithJustin/sqlitescope/internal/model"
	"github.com/FocuswithJustin/sqlitescope/internal/pager"
	"github.com/FocuswithJustin/sqlitescope/internal/source"
	"github.com/FocuswithJustin/sqlitescope/internal/viz"
	"github.com/FocuswithJustin/sqlitescope/internal/wal"
	"github.com/FocuswithJustin/sqlitescope/internal/web"
)

const version = "0.2.0"

// CLI defines the command-line interface for sqlitescope.
var CLI struct {
	Debug bool `help:"Enable debug logging"`

	Viz     VizCmd     `cmd:"" help:"Write a standalone HTML visualization"`
	Info    InfoCmd    `cmd:"" help:"Print a summary of the database"`
	Dump    DumpCmd    `cmd:"" help:"Write a textual dump of the database or a WAL file"`
	Serve   ServeCmd   `cmd:"" help:"Serve the visualization over HTTP with live reload"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// decode opens path and builds the model. The caller owns the returned
// pager and must close it.
func decode(path string) (*model.Model, *pager.Pager, error) {
	src, err := source.Open(path)
	if err != nil {
		return nil, nil, err
	}
	pgr, err := pager.New(src)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	m, err := model.Build(pgr, path)
	if err != nil {
		pgr.Close()
		return nil, nil, err
	}
	return m, pgr, nil
}

// VizCmd renders the standalone HTML document.
type VizCmd struct {
	Path   string   `arg:"" help:"Database file" type:"existingfile"`
	Output string   `short:"o" help:"Output file (default: <db>.html)"`
	Trees  []string `short:"t" name:"tree" help:"Only include the named b-trees"`
	Pages  []uint32 `short:"p" name:"page" help:"Only include the numbered pages"`
}

func (c *VizCmd) Run() error {
	m, pgr, err := decode(c.Path)
	if err != nil {
		return err
	}
	defer pgr.Close()

	filterModel(m, c.Trees, c.Pages)

	out := c.Output
	if out == "" {
		out = c.Path + ".html"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := viz.Render(f, m); err != nil {
		return err
	}
	logging.Info("visualization written", "file", out)
	return nil
}

// filterModel keeps only the trees and pages matching the union of the
// two filters. Empty filters keep everything.
func filterModel(m *model.Model, trees []string, pages []uint32) {
	if len(trees) == 0 && len(pages) == 0 {
		return
	}
	match := func(name string) bool {
		for _, t := range trees {
			if t == name {
				return true
			}
		}
		return false
	}

	keep := make(map[uint32]bool)
	for _, p := range pages {
		keep[p] = true
	}

	var bts []model.BTree
	for _, t := range m.BTrees {
		if !match(t.Name) {
			continue
		}
		bts = append(bts, t)
		for _, n := range t.Nodes {
			keep[n.PageNumber] = true
		}
	}
	m.BTrees = bts

	var pds []model.PageDesc
	for _, p := range m.Pages {
		if keep[p.PageNumber] {
			pds = append(pds, p)
		}
	}
	m.Pages = pds
}

// InfoCmd prints the header summary and schema.
type InfoCmd struct {
	Path    string `arg:"" help:"Database file" type:"existingfile"`
	Verbose bool   `short:"v" help:"Also list per-b-tree statistics"`
}

func (c *InfoCmd) Run() error {
	m, pgr, err := decode(c.Path)
	if err != nil {
		return err
	}
	defer pgr.Close()

	info := m.DatabaseInfo
	fmt.Printf("%s: SQLite %s, %d pages x %d bytes, %s\n",
		info.FileName, info.SQLiteVersion, info.PageCount, info.PageSize, info.TextEncoding)
	if info.HeaderPageCount != info.PageCount {
		fmt.Printf("  in-header page count %d differs from file-derived %d\n",
			info.HeaderPageCount, info.PageCount)
	}
	fmt.Printf("  %d tables, %d indexes\n", len(m.Schema.Tables), len(m.Schema.Indexes))

	if !c.Verbose {
		return nil
	}
	for _, t := range m.BTrees {
		pages, overflow := 0, 0
		for _, n := range t.Nodes {
			if n.PageType == "Overflow" {
				overflow++
			} else {
				pages++
			}
		}
		fmt.Printf("  %-8s %-24s root %-5d depth %d  %d pages, %d cells",
			t.TreeType, t.Name, t.RootPage, t.Depth, pages, t.TotalCells)
		if overflow > 0 {
			fmt.Printf(", %d overflow chains", overflow)
		}
		fmt.Println()
		if t.Error != "" {
			fmt.Printf("           error: %s\n", t.Error)
		}
	}
	return nil
}

// DumpCmd writes the textual report. WAL files are recognized by
// their magic and dumped frame by frame.
type DumpCmd struct {
	Path   string   `arg:"" help:"Database or WAL file" type:"existingfile"`
	Output string   `short:"o" help:"Output file (default: stdout)"`
	Trees  []string `short:"t" name:"tree" help:"Only dump the named b-trees"`
	Pages  []uint32 `short:"p" name:"page" help:"Only dump the numbered pages"`
	NoHex  bool     `help:"Omit hex views"`
}

func (c *DumpCmd) Run() error {
	var out io.Writer = os.Stdout
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	opts := dump.Options{Trees: c.Trees, Pages: c.Pages, Hex: !c.NoHex}

	src, err := source.Open(c.Path)
	if err != nil {
		return err
	}
	magic := make([]byte, 4)
	if _, err := src.ReadAt(magic, 0); err == nil && wal.IsWAL(magic) {
		defer src.Close()
		data, err := io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
		if err != nil {
			return err
		}
		f, err := wal.Decode(data)
		if err != nil {
			return err
		}
		return dump.WriteWAL(out, f, opts)
	}
	src.Close()

	m, pgr, err := decode(c.Path)
	if err != nil {
		return err
	}
	defer pgr.Close()
	return dump.Write(out, m, pgr, opts)
}

// ServeCmd runs the live-reloading HTTP server.
type ServeCmd struct {
	Path string `arg:"" help:"Database file" type:"existingfile"`
	Addr string `help:"Listen address" default:":8080" env:"SQLITESCOPE_ADDR"`
}

func (c *ServeCmd) Run() error {
	// Decode once up front so a broken file fails fast instead of on
	// the first request.
	if _, pgr, err := decode(c.Path); err != nil {
		return err
	} else {
		pgr.Close()
	}
	s := &web.Server{Addr: c.Addr, Path: c.Path}
	return s.ListenAndServe()
}

// VersionCmd prints the version string.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sqlitescope %s\n", version)
	return nil
}

// errKind maps an error chain to the taxonomy name reported on stderr.
func errKind(err error) string {
	switch {
	case errors.Is(err, format.ErrBadMagic), errors.Is(err, wal.ErrBadMagic):
		return "BadMagic"
	case errors.Is(err, format.ErrBadPageSize):
		return "BadPageSize"
	case errors.Is(err, format.ErrBadEncoding):
		return "BadEncoding"
	case errors.Is(err, btree.ErrBadPageType):
		return "BadPageType"
	case errors.Is(err, pager.ErrUnexpectedEOF), errors.Is(err, wal.ErrTruncated):
		return "UnexpectedEof"
	case errors.Is(err, pager.ErrPageOutOfBounds):
		return "BoundsViolation"
	case errors.Is(err, btree.ErrTraversalBudget):
		return "TraversalBudgetExceeded"
	default:
		return "Error"
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlitescope"),
		kong.Description("SQLite file format inspector and visualizer"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Exit(func(code int) {
			if code != 0 {
				// Usage problems exit 2; decode failures exit 1 below.
				os.Exit(2)
			}
			os.Exit(0)
		}),
	)

	if CLI.Debug {
		logging.InitLogger(logging.LevelDebug, logging.FormatText)
	}

	if err := ctx.Run(); err != nil {
		msg := err.Error()
		kind := errKind(err)
		if !strings.HasPrefix(msg, kind) {
			msg = kind + ": " + msg
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}
