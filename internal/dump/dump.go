// Package dump renders the decoded model as a plain-text report:
// header summary, schema listing, per-tree node walks and per-page
// detail with optional hex views. It also renders standalone WAL
// files.
package dump

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/FocuswithJustin/sqlitescope/internal/btree"
	"github.com/FocuswithJustin/sqlitescope/internal/model"
	"github.com/FocuswithJustin/sqlitescope/internal/wal"
)

// Options select what the dump includes. Empty Trees and Pages mean
// everything; otherwise a section is included when it matches either
// filter.
type Options struct {
	Trees []string
	Pages []uint32
	Hex   bool
}

func (o Options) filtered() bool { return len(o.Trees) > 0 || len(o.Pages) > 0 }

func (o Options) matchTree(name string) bool {
	if !o.filtered() {
		return true
	}
	for _, t := range o.Trees {
		if t == name {
			return true
		}
	}
	return false
}

func (o Options) matchPage(n uint32) bool {
	if !o.filtered() {
		return true
	}
	for _, p := range o.Pages {
		if p == n {
			return true
		}
	}
	return false
}

// PageSource supplies raw page bytes for hex views. The pager
// satisfies it.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// Write renders m to w. src may be nil when Options.Hex is false.
func Write(w io.Writer, m *model.Model, src PageSource, opts Options) error {
	dw := &dumpWriter{w: w}

	if !opts.filtered() {
		dw.header(m)
		dw.schema(m)
	}

	for _, t := range m.BTrees {
		if opts.matchTree(t.Name) {
			dw.btree(&t)
		}
	}

	for _, p := range m.Pages {
		if opts.matchPage(p.PageNumber) || opts.pageInMatchedTree(m, p.PageNumber) {
			dw.page(&p, src, opts.Hex)
		}
	}

	return dw.err
}

func (o Options) pageInMatchedTree(m *model.Model, page uint32) bool {
	if len(o.Trees) == 0 {
		return false
	}
	for _, t := range m.BTrees {
		if !o.matchTree(t.Name) {
			continue
		}
		for _, n := range t.Nodes {
			if n.PageNumber == page {
				return true
			}
		}
	}
	return false
}

type dumpWriter struct {
	w   io.Writer
	err error
}

func (d *dumpWriter) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dumpWriter) section(title string) {
	d.printf("%s\n%s\n%s\n", rule, title, rule)
}

func (d *dumpWriter) header(m *model.Model) {
	d.section("DATABASE HEADER")
	info := m.DatabaseInfo
	d.printf("File:            %s\n", info.FileName)
	d.printf("Page size:       %d\n", info.PageSize)
	d.printf("Page count:      %d\n", info.PageCount)
	if info.HeaderPageCount != info.PageCount {
		d.printf("In-header count: %d (differs from file-derived count)\n", info.HeaderPageCount)
	}
	d.printf("Usable size:     %d\n", info.UsableSize)
	d.printf("Schema format:   %d\n", info.SchemaFormat)
	d.printf("Text encoding:   %s\n", info.TextEncoding)
	d.printf("SQLite version:  %s\n", info.SQLiteVersion)
	d.printf("\n")
}

func (d *dumpWriter) schema(m *model.Model) {
	d.section("SCHEMA")
	if len(m.Schema.Tables) == 0 && len(m.Schema.Indexes) == 0 {
		d.printf("(empty)\n\n")
		return
	}
	if len(m.Schema.Tables) > 0 {
		d.printf("Tables:\n")
		for _, t := range m.Schema.Tables {
			d.printf("  %s (root page %d)\n", t.Name, t.RootPage)
		}
	}
	if len(m.Schema.Indexes) > 0 {
		d.printf("Indexes:\n")
		for _, ix := range m.Schema.Indexes {
			d.printf("  %s on %s (root page %d)\n", ix.Name, ix.TableName, ix.RootPage)
		}
	}
	d.printf("\n")
}

func (d *dumpWriter) btree(t *model.BTree) {
	d.section(fmt.Sprintf("B-TREE: %s (%s, root page %d)", t.Name, t.TreeType, t.RootPage))
	d.printf("Depth: %d   Nodes: %d   Cells: %d\n", t.Depth, len(t.Nodes), t.TotalCells)
	if t.Error != "" {
		d.printf("Error: %s\n", t.Error)
	}
	for _, n := range t.Nodes {
		indent := strings.Repeat("  ", n.Depth)
		d.printf("%snode %d: page %d (%s), %d cells\n",
			indent, n.ID, n.PageNumber, n.PageType, n.CellCount)
	}
	d.printf("\n")
}

func (d *dumpWriter) page(p *model.PageDesc, src PageSource, withHex bool) {
	d.section(fmt.Sprintf("PAGE %d (%s)", p.PageNumber, p.PageType))
	d.printf("Cells: %d   Free: %d   Content start: %d\n",
		p.CellCount, p.FreeSpace, p.CellContentStart)
	d.printf("Checksum: %s\n", p.Checksum)

	for _, c := range p.Cells {
		d.printf("%s\n", thinRule)
		d.printf("Cell %d (%s) @ %d, %d bytes", c.Index, c.CellType, c.Offset, c.Size)
		if c.RowID != nil {
			d.printf(", rowid=%d", *c.RowID)
		}
		if c.LeftChild != nil {
			d.printf(", left child=%d", *c.LeftChild)
		}
		if c.PayloadSize != nil {
			d.printf(", payload=%d", *c.PayloadSize)
		}
		if c.HasOverflow && c.OverflowPage != nil {
			d.printf(", overflow=%d", *c.OverflowPage)
		}
		d.printf("\n")
		d.printf("  %s\n", c.FullContent)
	}

	if withHex && src != nil {
		data, err := src.Page(p.PageNumber)
		if err != nil {
			d.printf("hex unavailable: %v\n", err)
		} else {
			d.printf("%s", hex.Dump(data))
		}
	}
	d.printf("\n")
}

// WriteWAL renders a decoded WAL file to w.
func WriteWAL(w io.Writer, f *wal.File, opts Options) error {
	dw := &dumpWriter{w: w}
	h := f.Header

	dw.section("WAL HEADER")
	order := "little-endian"
	if h.BigEndianChecksum() {
		order = "big-endian"
	}
	dw.printf("Magic:           0x%08x (%s checksums)\n", h.Magic, order)
	dw.printf("Format version:  %d\n", h.Version)
	dw.printf("Page size:       %d\n", h.PageSize)
	dw.printf("Checkpoint seq:  %d\n", h.CheckpointSeq)
	dw.printf("Salt:            %08x %08x\n", h.Salt1, h.Salt2)
	dw.printf("Checksum:        %08x %08x\n", h.Checksum1, h.Checksum2)
	dw.printf("Frames:          %d\n", len(f.Frames))
	if f.Truncated {
		dw.printf("Note: file ends mid-frame\n")
	}
	dw.printf("\n")

	for _, fr := range f.Frames {
		if len(opts.Pages) > 0 && !opts.matchPage(fr.PageNumber) {
			continue
		}
		commit := ""
		if fr.Commit() {
			commit = fmt.Sprintf("  COMMIT (db size %d)", fr.DBSizeAfter)
		}
		dw.printf("frame %d: page %d%s\n", fr.Index, fr.PageNumber, commit)
		if page, err := btree.ParsePage(fr.PageNumber, fr.Data); err != nil {
			dw.printf("  image not a b-tree page: %v\n", err)
		} else {
			dw.printf("  %s, %d cells, content start %d\n",
				page.Type, page.CellCount, page.ContentStart)
		}
		if opts.Hex {
			dw.printf("%s", hex.Dump(fr.Data))
		}
	}

	return dw.err
}
