// Package btree decodes SQLite b-tree pages: page headers, cell
// pointer arrays, cells, overflow chains and whole-tree traversal.
//
// All decoding is read-only over raw page bytes supplied by the pager.
// Structural damage inside a page is reported per cell where possible;
// only an unrecognized page type is fatal for the page itself.
package btree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/FocuswithJustin/sqlitescope/internal/format"
)

// Common errors.
var (
	ErrBadPageType       = errors.New("bad page type")
	ErrOverflowCycle     = errors.New("overflow chain cycle")
	ErrOverflowTruncated = errors.New("overflow chain truncated")
	ErrTraversalBudget   = errors.New("traversal budget exceeded")
)

// PageType identifies the kind of b-tree page, from the first byte of
// the page header.
type PageType uint8

const (
	InteriorIndex PageType = 0x02
	InteriorTable PageType = 0x05
	LeafIndex     PageType = 0x0a
	LeafTable     PageType = 0x0d
)

// IsLeaf reports whether pages of this type carry payload cells only.
func (t PageType) IsLeaf() bool { return t == LeafIndex || t == LeafTable }

// IsInterior reports whether pages of this type carry child pointers.
func (t PageType) IsInterior() bool { return t == InteriorIndex || t == InteriorTable }

// IsTable reports whether this type belongs to a table b-tree.
func (t PageType) IsTable() bool { return t == InteriorTable || t == LeafTable }

// String returns the canonical spelling used in the model JSON.
func (t PageType) String() string {
	switch t {
	case InteriorIndex:
		return "InteriorIndex"
	case InteriorTable:
		return "InteriorTable"
	case LeafIndex:
		return "LeafIndex"
	case LeafTable:
		return "LeafTable"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Page header field offsets, relative to the start of the header.
const (
	offType           = 0 // Page type (1 byte)
	offFirstFreeblock = 1 // First freeblock offset (2 bytes)
	offCellCount      = 3 // Number of cells (2 bytes)
	offContentStart   = 5 // Start of cell content area (2 bytes; 0 means 65536)
	offFragmented     = 7 // Fragmented free bytes (1 byte)
	offRightMost      = 8 // Right-most child pointer, interior pages only (4 bytes)

	leafHeaderSize     = 8
	interiorHeaderSize = 12
)

// Page is a decoded b-tree page header together with the raw page
// bytes it was decoded from.
type Page struct {
	Number          uint32
	Type            PageType
	FirstFreeblock  uint16
	CellCount       uint16
	ContentStart    uint32 // 0 in the file decodes to 65536
	FragmentedBytes uint8
	RightMost       uint32 // Interior pages only

	// HeaderOffset is where the page header begins inside Data.
	// 100 on page 1, 0 everywhere else.
	HeaderOffset int

	Data []byte
}

// ParsePage decodes the b-tree page header of page number in data.
// Page 1 shares its first 100 bytes with the database file header, so
// its page header starts at offset 100.
func ParsePage(number uint32, data []byte) (*Page, error) {
	hdr := 0
	if number == 1 {
		hdr = format.HeaderSize
	}
	if len(data) < hdr+leafHeaderSize {
		return nil, fmt.Errorf("page %d: %w: %d bytes", number, ErrBadPageType, len(data))
	}

	t := PageType(data[hdr+offType])
	switch t {
	case InteriorIndex, InteriorTable, LeafIndex, LeafTable:
	default:
		return nil, fmt.Errorf("page %d: %w: 0x%02x", number, ErrBadPageType, uint8(t))
	}

	p := &Page{
		Number:          number,
		Type:            t,
		FirstFreeblock:  binary.BigEndian.Uint16(data[hdr+offFirstFreeblock:]),
		CellCount:       binary.BigEndian.Uint16(data[hdr+offCellCount:]),
		FragmentedBytes: data[hdr+offFragmented],
		HeaderOffset:    hdr,
		Data:            data,
	}

	raw := binary.BigEndian.Uint16(data[hdr+offContentStart:])
	if raw == 0 {
		p.ContentStart = 65536
	} else {
		p.ContentStart = uint32(raw)
	}

	if t.IsInterior() {
		if len(data) < hdr+interiorHeaderSize {
			return nil, fmt.Errorf("page %d: %w: interior header truncated", number, ErrBadPageType)
		}
		p.RightMost = binary.BigEndian.Uint32(data[hdr+offRightMost:])
	}

	return p, nil
}

// HeaderSize returns the page header length for this page's type:
// 12 bytes for interior pages, 8 for leaves.
func (p *Page) HeaderSize() int {
	if p.Type.IsInterior() {
		return interiorHeaderSize
	}
	return leafHeaderSize
}

// ContentOffset returns the offset of the first byte past the cell
// pointer array.
func (p *Page) ContentOffset() int {
	return p.HeaderOffset + p.HeaderSize() + 2*int(p.CellCount)
}

// FreeSpace returns the unallocated gap between the cell pointer array
// and the cell content area, plus fragmented free bytes. Freeblocks
// inside the content area are not counted.
func (p *Page) FreeSpace() uint32 {
	end := uint32(p.ContentOffset())
	if p.ContentStart < end {
		return uint32(p.FragmentedBytes)
	}
	return p.ContentStart - end + uint32(p.FragmentedBytes)
}

// CellPointer returns the i'th entry of the cell pointer array, an
// offset from the start of the page. ok is false when the pointer
// array entry itself lies outside the page.
func (p *Page) CellPointer(i int) (uint16, bool) {
	pos := p.HeaderOffset + p.HeaderSize() + 2*i
	if pos+2 > len(p.Data) {
		return 0, false
	}
	return binary.BigEndian.Uint16(p.Data[pos:]), true
}
