package btree

// Shared helpers: synthetic page construction and an in-memory
// PageReader. Pages are laid out the way sqlite does, cell content
// packed at the end of the page and the pointer array after the header.

import (
	"encoding/binary"
	"fmt"
	"testing"
)

const testPageSize = 512

// buildPage assembles a b-tree page of pageSize bytes. Cell content is
// written back to front; pointer array entries are in cell order.
func buildPage(t *testing.T, pageSize int, number uint32, typ PageType, rightMost uint32, cells [][]byte) []byte {
	t.Helper()

	data := make([]byte, pageSize)
	hdr := 0
	if number == 1 {
		hdr = 100
	}
	data[hdr+offType] = byte(typ)
	binary.BigEndian.PutUint16(data[hdr+offCellCount:], uint16(len(cells)))

	hsize := leafHeaderSize
	if typ.IsInterior() {
		hsize = interiorHeaderSize
		binary.BigEndian.PutUint32(data[hdr+offRightMost:], rightMost)
	}

	pos := pageSize
	ptrs := make([]uint16, len(cells))
	for i := len(cells) - 1; i >= 0; i-- {
		pos -= len(cells[i])
		if pos < hdr+hsize+2*len(cells) {
			t.Fatalf("cells overflow a %d-byte page", pageSize)
		}
		copy(data[pos:], cells[i])
		ptrs[i] = uint16(pos)
	}
	binary.BigEndian.PutUint16(data[hdr+offContentStart:], uint16(pos))
	for i, p := range ptrs {
		binary.BigEndian.PutUint16(data[hdr+hsize+2*i:], p)
	}
	return data
}

// tableLeafCell encodes a table leaf cell with a fully local payload.
func tableLeafCell(t *testing.T, rowid int64, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, 9)
	n := PutVarint(buf, uint64(len(payload)))
	out := append([]byte(nil), buf[:n]...)
	n = PutVarint(buf, uint64(rowid))
	out = append(out, buf[:n]...)
	return append(out, payload...)
}

// tableInteriorCell encodes a child pointer plus rowid key.
func tableInteriorCell(t *testing.T, child uint32, rowid int64) []byte {
	t.Helper()
	out := make([]byte, 4, 13)
	binary.BigEndian.PutUint32(out, child)
	buf := make([]byte, 9)
	n := PutVarint(buf, uint64(rowid))
	return append(out, buf[:n]...)
}

// indexLeafCell encodes an index leaf cell with a fully local payload.
func indexLeafCell(t *testing.T, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, 9)
	n := PutVarint(buf, uint64(len(payload)))
	return append(append([]byte(nil), buf[:n]...), payload...)
}

// memReader serves pages from a map.
type memReader struct {
	pages    map[uint32][]byte
	pageSize uint32
	count    uint32
}

func (r *memReader) Page(n uint32) ([]byte, error) {
	data, ok := r.pages[n]
	if !ok {
		return nil, fmt.Errorf("page %d missing", n)
	}
	return data, nil
}

func (r *memReader) PageSize() uint32  { return r.pageSize }
func (r *memReader) PageCount() uint32 { return r.count }
