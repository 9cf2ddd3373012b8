package btree

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Cell decode errors, reported per cell rather than failing the page.
var (
	ErrCellBounds      = errors.New("cell offset out of bounds")
	ErrVarintTruncated = errors.New("varint truncated")
)

// CellType identifies the cell layout, determined by the page type.
type CellType uint8

const (
	CellTableInterior CellType = iota
	CellTableLeaf
	CellIndexInterior
	CellIndexLeaf
)

// String returns the canonical spelling used in the model JSON.
func (t CellType) String() string {
	switch t {
	case CellTableInterior:
		return "TableInterior"
	case CellTableLeaf:
		return "TableLeaf"
	case CellIndexInterior:
		return "IndexInterior"
	case CellIndexLeaf:
		return "IndexLeaf"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// cellTypeFor maps a page type to the layout of its cells.
func cellTypeFor(t PageType) CellType {
	switch t {
	case InteriorTable:
		return CellTableInterior
	case LeafTable:
		return CellTableLeaf
	case InteriorIndex:
		return CellIndexInterior
	default:
		return CellIndexLeaf
	}
}

// Cell is a decoded b-tree cell. Which fields are meaningful depends
// on Type: interior cells carry LeftChild, table cells carry RowID,
// payload-bearing cells carry PayloadSize/Local/OverflowPage.
type Cell struct {
	Type   CellType
	Offset uint16 // Cell start, from the beginning of the page
	Size   uint32 // Total cell length in bytes, including varints and overflow pointer

	LeftChild uint32 // Table and index interior cells
	RowID     int64  // Table cells

	PayloadSize  uint64 // Declared total payload length (P)
	Local        []byte // Payload bytes stored on this page
	OverflowPage uint32 // First overflow page, 0 when payload is all local
}

// HasPayload reports whether cells of this type carry a record payload.
// Table interior cells carry only a child pointer and a key.
func (c *Cell) HasPayload() bool { return c.Type != CellTableInterior }

// ParseCell decodes the cell at offset off within page p. usable is
// the page size minus reserved space, which governs how much payload
// stays local before spilling to overflow pages.
func ParseCell(p *Page, off uint16, usable uint32) (*Cell, error) {
	data := p.Data
	if int(off) >= len(data) || off == 0 {
		return nil, fmt.Errorf("%w: offset %d on page %d", ErrCellBounds, off, p.Number)
	}
	if uint32(off) < p.ContentStart || int(off) < p.ContentOffset() {
		return nil, fmt.Errorf("%w: offset %d before content area on page %d", ErrCellBounds, off, p.Number)
	}

	c := &Cell{Type: cellTypeFor(p.Type), Offset: off}
	pos := int(off)

	if c.Type == CellTableInterior || c.Type == CellIndexInterior {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: child pointer at %d on page %d", ErrCellBounds, off, p.Number)
		}
		c.LeftChild = binary.BigEndian.Uint32(data[pos:])
		pos += 4
	}

	if c.Type == CellTableInterior {
		key, n := Varint(data[pos:])
		if n == 0 {
			return nil, fmt.Errorf("%w: rowid at %d on page %d", ErrVarintTruncated, off, p.Number)
		}
		c.RowID = int64(key)
		c.Size = uint32(pos+n) - uint32(off)
		return c, nil
	}

	size, n := Varint(data[pos:])
	if n == 0 {
		return nil, fmt.Errorf("%w: payload size at %d on page %d", ErrVarintTruncated, off, p.Number)
	}
	c.PayloadSize = size
	pos += n

	if c.Type == CellTableLeaf {
		key, n := Varint(data[pos:])
		if n == 0 {
			return nil, fmt.Errorf("%w: rowid at %d on page %d", ErrVarintTruncated, off, p.Number)
		}
		c.RowID = int64(key)
		pos += n
	}

	local := localPayload(size, usable, p.Type.IsTable())
	end := pos + int(local)
	if end > len(data) {
		return nil, fmt.Errorf("%w: payload [%d:%d) on page %d", ErrCellBounds, pos, end, p.Number)
	}
	c.Local = data[pos:end]

	if uint64(local) < size {
		if end+4 > len(data) {
			return nil, fmt.Errorf("%w: overflow pointer at %d on page %d", ErrCellBounds, end, p.Number)
		}
		c.OverflowPage = binary.BigEndian.Uint32(data[end:])
		end += 4
	}
	c.Size = uint32(end) - uint32(off)

	return c, nil
}

// localPayload computes how many payload bytes of a P-byte payload are
// stored on the b-tree page itself. U is the usable page size. The
// thresholds follow the file format: X = U-35 for table leaves and
// ((U-12)*64/255)-23 for index pages, M = ((U-12)*32/255)-23, and a
// spilled payload keeps K = M + (P-M) mod (U-4) bytes local unless
// that would exceed X.
func localPayload(p uint64, usable uint32, table bool) uint32 {
	u := uint64(usable)
	var x uint64
	if table {
		x = u - 35
	} else {
		x = (u-12)*64/255 - 23
	}
	if p <= x {
		return uint32(p)
	}
	m := (u-12)*32/255 - 23
	k := m + (p-m)%(u-4)
	if k <= x {
		return uint32(k)
	}
	return uint32(m)
}
