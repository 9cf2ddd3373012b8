package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/sqlitescope/internal/btree"
	"github.com/FocuswithJustin/sqlitescope/internal/format"
	"github.com/FocuswithJustin/sqlitescope/internal/pager"
	"github.com/FocuswithJustin/sqlitescope/internal/record"
	"github.com/FocuswithJustin/sqlitescope/internal/schema"
)

// Build decodes the whole database behind pgr into a Model. Header and
// page classification failures are fatal and returned; damage local to
// a cell or a single tree is recorded in-band on the affected entity.
func Build(pgr *pager.Pager, fileName string) (*Model, error) {
	h := pgr.Header()

	m := &Model{
		DatabaseInfo: DatabaseInfo{
			FileName:        fileName,
			PageSize:        h.PageSize,
			PageCount:       pgr.PageCount(),
			HeaderPageCount: h.DatabaseSize,
			UsableSize:      h.UsableSize(),
			SchemaFormat:    h.SchemaFormat,
			TextEncoding:    h.TextEncoding.String(),
			SQLiteVersion:   h.VersionString(),
		},
	}

	sch, err := schema.Load(pgr, h.UsableSize(), h.TextEncoding)
	if err != nil {
		return nil, err
	}

	for _, t := range sch.Tables() {
		m.Schema.Tables = append(m.Schema.Tables, SchemaTable{Name: t.Name, RootPage: t.RootPage})
	}
	for _, ix := range sch.Indexes() {
		m.Schema.Indexes = append(m.Schema.Indexes, SchemaIndex{
			Name: ix.Name, TableName: ix.TableName, RootPage: ix.RootPage,
		})
	}

	b := &builder{
		pgr:    pgr,
		usable: h.UsableSize(),
		enc:    h.TextEncoding,
		pages:  make(map[uint32]*PageDesc),
	}

	// The catalog tree is walked for its page descriptors (page 1 is
	// always listed) but is not itself a btrees entry. Tables and
	// indexes follow in file order; views and triggers have no tree.
	b.walkTree("sqlite_schema", "table", 1, -1)
	for _, o := range sch.Objects {
		if o.RootPage == 0 {
			continue
		}
		switch o.Type {
		case "table":
			m.BTrees = append(m.BTrees, b.walkTree(o.Name, "table", o.RootPage, o.IntegerPrimaryKeyColumn()))
		case "index":
			m.BTrees = append(m.BTrees, b.walkTree(o.Name, "index", o.RootPage, -1))
		}
	}

	if b.fatal != nil {
		return nil, b.fatal
	}

	nums := make([]uint32, 0, len(b.pages))
	for n := range b.pages {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	for _, n := range nums {
		m.Pages = append(m.Pages, *b.pages[n])
	}

	return m, nil
}

// builder carries the per-decode scratch state.
type builder struct {
	pgr    *pager.Pager
	usable uint32
	enc    format.TextEncoding
	pages  map[uint32]*PageDesc
	fatal  error
}

// nodeScratch remembers what link emission needs from a visited node.
type nodeScratch struct {
	node     *btree.Node
	overflow []uint32 // First overflow page per cell, in cell order, 0 for none
}

// walkTree traverses one b-tree and produces its graph. ipk is the
// column index aliasing the rowid for table trees, -1 when absent.
func (b *builder) walkTree(name, treeType string, root uint32, ipk int) BTree {
	t := BTree{Name: name, TreeType: treeType, RootPage: root}
	w := &btree.Walker{Reader: b.pgr, Usable: b.usable}

	var scratch []nodeScratch
	pageToID := make(map[uint32]int)

	err := w.Walk(root, func(n *btree.Node) error {
		desc := NodeDesc{
			ID:         n.ID,
			PageNumber: n.Page.Number,
			PageType:   n.Page.Type.String(),
			CellCount:  int(n.Page.CellCount),
			Depth:      n.Depth,
			Children:   n.Children,
		}
		t.Nodes = append(t.Nodes, desc)
		pageToID[n.Page.Number] = n.ID
		t.TotalCells += len(n.Cells)
		if n.Depth+1 > t.Depth {
			t.Depth = n.Depth + 1
		}

		ns := nodeScratch{node: n}
		for _, vc := range n.Cells {
			var of uint32
			if vc.Cell != nil {
				of = vc.Cell.OverflowPage
			}
			ns.overflow = append(ns.overflow, of)
		}
		scratch = append(scratch, ns)

		b.describePage(n, treeType, ipk)
		return nil
	})
	if err != nil {
		if errors.Is(err, btree.ErrTraversalBudget) {
			t.Error = err.Error()
		} else if b.fatal == nil {
			b.fatal = err
		}
	}

	b.emitLinks(&t, scratch, pageToID)
	return t
}

// emitLinks appends child and overflow links node by node. Overflow
// chains appear as one extra node per chain root; child pages missing
// from pageToID (out of bounds in a damaged file) get no link.
func (b *builder) emitLinks(t *BTree, scratch []nodeScratch, pageToID map[uint32]int) {
	overflowID := make(map[uint32]int)

	for _, ns := range scratch {
		n := ns.node
		cellChild := 0
		for i, vc := range n.Cells {
			if of := ns.overflow[i]; of != 0 && of <= b.pgr.PageCount() {
				id, ok := overflowID[of]
				if !ok {
					id = len(t.Nodes)
					overflowID[of] = id
					t.Nodes = append(t.Nodes, NodeDesc{
						ID:         id,
						PageNumber: of,
						PageType:   "Overflow",
						Depth:      n.Depth + 1,
					})
				}
				t.Links = append(t.Links, Link{Source: n.ID, Target: id, LinkType: "overflow"})
			}
			if vc.Cell != nil && (vc.Cell.Type == btree.CellTableInterior || vc.Cell.Type == btree.CellIndexInterior) {
				if cellChild < len(n.Children) {
					if id, ok := pageToID[n.Children[cellChild]]; ok {
						t.Links = append(t.Links, Link{Source: n.ID, Target: id, LinkType: "child"})
					}
					cellChild++
				}
			}
		}
		if n.Page.Type.IsInterior() && len(n.Children) > 0 {
			if id, ok := pageToID[n.Children[len(n.Children)-1]]; ok {
				t.Links = append(t.Links, Link{Source: n.ID, Target: id, LinkType: "child"})
			}
		}
	}
}

// describePage records the PageDesc for a visited node and for every
// overflow page its cells reach. The first tree to touch a page wins;
// revisits from another tree do not overwrite.
func (b *builder) describePage(n *btree.Node, treeType string, ipk int) {
	if _, ok := b.pages[n.Page.Number]; !ok {
		desc := &PageDesc{
			PageNumber:       n.Page.Number,
			PageType:         n.Page.Type.String(),
			CellCount:        int(n.Page.CellCount),
			FreeSpace:        n.Page.FreeSpace(),
			CellContentStart: n.Page.ContentStart,
			Checksum:         pageChecksum(n.Page.Data),
			Cells:            []CellDesc{},
		}
		for _, vc := range n.Cells {
			desc.Cells = append(desc.Cells, b.cellDesc(n.Page, vc, ipk))
		}
		b.pages[n.Page.Number] = desc
	}

	for _, vc := range n.Cells {
		if vc.Payload == nil {
			continue
		}
		for _, of := range vc.Payload.Chain {
			if _, ok := b.pages[of]; ok {
				continue
			}
			data, err := b.pgr.Page(of)
			if err != nil {
				continue
			}
			b.pages[of] = &PageDesc{
				PageNumber: of,
				PageType:   "Overflow",
				Checksum:   pageChecksum(data),
				Cells:      []CellDesc{},
			}
		}
	}
}

// cellDesc renders one cell, substituting the rowid for a NULL integer
// primary key column on table leaves.
func (b *builder) cellDesc(p *btree.Page, vc btree.VisitedCell, ipk int) CellDesc {
	d := CellDesc{
		Index:    vc.Index,
		CellType: cellTypeFor(p.Type),
		Offset:   uint32(vc.Pointer),
	}

	if vc.Cell == nil {
		d.Preview = "<malformed>"
		d.FullContent = fmt.Sprintf("<malformed: %v>", vc.Err)
		return d
	}

	c := vc.Cell
	d.Size = c.Size
	if c.Type == btree.CellTableInterior || c.Type == btree.CellTableLeaf {
		rowid := c.RowID
		d.RowID = &rowid
	}
	if c.Type == btree.CellTableInterior || c.Type == btree.CellIndexInterior {
		child := c.LeftChild
		d.LeftChild = &child
	}

	if c.Type == btree.CellTableInterior {
		d.Preview = "rowid=" + strconv.FormatInt(c.RowID, 10)
		d.FullContent = d.Preview
		return d
	}

	size := c.PayloadSize
	d.PayloadSize = &size
	d.HasOverflow = c.OverflowPage != 0
	if c.OverflowPage != 0 {
		of := c.OverflowPage
		d.OverflowPage = &of
	}

	rec, err := record.Decode(vc.Payload.Data, b.enc)
	switch {
	case err != nil:
		d.Preview = "<malformed>"
		d.FullContent = fmt.Sprintf("<malformed: %v>", err)
	default:
		if c.Type == btree.CellTableLeaf && ipk >= 0 && ipk < len(rec.Values) &&
			rec.Values[ipk].Kind == record.KindNull {
			rec.Values[ipk] = record.Value{Kind: record.KindInt, Int: c.RowID}
		}
		d.Preview = rec.Preview()
		d.FullContent = rec.FullContent()
	}
	if vc.Err != nil {
		d.FullContent += fmt.Sprintf(" <%v>", vc.Err)
	}
	return d
}

// cellTypeFor names the cell layout of a page type for the JSON
// surface.
func cellTypeFor(t btree.PageType) string {
	switch t {
	case btree.InteriorTable:
		return "TableInterior"
	case btree.LeafTable:
		return "TableLeaf"
	case btree.InteriorIndex:
		return "IndexInterior"
	default:
		return "IndexLeaf"
	}
}

// pageChecksum returns the lowercase hex BLAKE3-128 digest of the raw
// page bytes.
func pageChecksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
