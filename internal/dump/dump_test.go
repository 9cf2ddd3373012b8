package dump

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/FocuswithJustin/sqlitescope/internal/model"
	"github.com/FocuswithJustin/sqlitescope/internal/wal"
)

// fakePages serves synthetic page bytes for hex views.
type fakePages map[uint32][]byte

func (f fakePages) Page(n uint32) ([]byte, error) {
	data, ok := f[n]
	if !ok {
		return nil, fmt.Errorf("page %d missing", n)
	}
	return data, nil
}

func ptr[T any](v T) *T { return &v }

// testModel is a small two-tree model with one overflow page.
func testModel() *model.Model {
	return &model.Model{
		DatabaseInfo: model.DatabaseInfo{
			FileName:        "test.db",
			PageSize:        512,
			PageCount:       4,
			HeaderPageCount: 4,
			UsableSize:      512,
			SchemaFormat:    4,
			TextEncoding:    "UTF-8",
			SQLiteVersion:   "3.46.1",
		},
		Schema: model.SchemaInfo{
			Tables:  []model.SchemaTable{{Name: "users", RootPage: 2}},
			Indexes: []model.SchemaIndex{{Name: "idx_users", TableName: "users", RootPage: 3}},
		},
		Pages: []model.PageDesc{
			{
				PageNumber: 1, PageType: "LeafTable", CellCount: 1,
				FreeSpace: 400, CellContentStart: 450, Checksum: "aa11",
				Cells: []model.CellDesc{{
					Index: 0, CellType: "TableLeaf", Offset: 450, Size: 30,
					RowID: ptr(int64(1)), PayloadSize: ptr(uint64(25)),
					Preview: "('table', 'users', ...)", FullContent: "('table', 'users', 'users', 2, 'CREATE TABLE users (id)')",
				}},
			},
			{
				PageNumber: 2, PageType: "LeafTable", CellCount: 1,
				FreeSpace: 470, CellContentStart: 500, Checksum: "bb22",
				Cells: []model.CellDesc{{
					Index: 0, CellType: "TableLeaf", Offset: 500, Size: 12,
					RowID: ptr(int64(7)), PayloadSize: ptr(uint64(8)),
					HasOverflow: true, OverflowPage: ptr(uint32(4)),
					Preview: "(7, 'hello')", FullContent: "(7, 'hello')",
				}},
			},
			{
				PageNumber: 3, PageType: "LeafIndex", CellCount: 0,
				FreeSpace: 500, CellContentStart: 512, Checksum: "cc33",
				Cells: []model.CellDesc{},
			},
			{PageNumber: 4, PageType: "Overflow", Checksum: "dd44", Cells: []model.CellDesc{}},
		},
		BTrees: []model.BTree{
			{
				Name: "users", TreeType: "table", RootPage: 2, Depth: 1, TotalCells: 1,
				Nodes: []model.NodeDesc{{ID: 0, PageNumber: 2, PageType: "LeafTable", CellCount: 1}},
			},
			{
				Name: "idx_users", TreeType: "index", RootPage: 3, Depth: 1,
				Nodes: []model.NodeDesc{{ID: 0, PageNumber: 3, PageType: "LeafIndex"}},
			},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testModel(), nil, Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"DATABASE HEADER",
		"Page size:       512",
		"SCHEMA",
		"users (root page 2)",
		"idx_users on users (root page 3)",
		"B-TREE: users (table, root page 2)",
		"B-TREE: idx_users (index, root page 3)",
		"PAGE 1 (LeafTable)",
		"PAGE 4 (Overflow)",
		"rowid=7",
		"overflow=4",
		"(7, 'hello')",
		"Checksum: bb22",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "hex unavailable") {
		t.Error("hex attempted with a nil source")
	}
}

func TestWriteTreeFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testModel(), nil, Options{Trees: []string{"users"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "DATABASE HEADER") || strings.Contains(out, "SCHEMA") {
		t.Error("filtered dump still has header or schema sections")
	}
	if !strings.Contains(out, "B-TREE: users") {
		t.Error("matched tree missing")
	}
	if strings.Contains(out, "B-TREE: idx_users") {
		t.Error("unmatched tree present")
	}
	if !strings.Contains(out, "PAGE 2 (LeafTable)") {
		t.Error("page of matched tree missing")
	}
	if strings.Contains(out, "PAGE 3 (LeafIndex)") {
		t.Error("page of unmatched tree present")
	}
}

func TestWritePageFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testModel(), nil, Options{Pages: []uint32{3}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "PAGE 3 (LeafIndex)") {
		t.Error("listed page missing")
	}
	for _, absent := range []string{"PAGE 1 ", "PAGE 2 ", "PAGE 4 "} {
		if strings.Contains(out, absent) {
			t.Errorf("unlisted page present: %s", absent)
		}
	}
}

func TestWriteHex(t *testing.T) {
	src := fakePages{
		1: bytes.Repeat([]byte{0xab}, 32),
		2: bytes.Repeat([]byte{0xcd}, 32),
		3: {}, 4: {},
	}

	var buf bytes.Buffer
	if err := Write(&buf, testModel(), src, Options{Hex: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "ab ab ab ab") {
		t.Error("hex view missing")
	}

	buf.Reset()
	if err := Write(&buf, testModel(), src, Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.Contains(buf.String(), "ab ab ab ab") {
		t.Error("hex view present with Hex disabled")
	}
}

func TestWriteWAL(t *testing.T) {
	leafImage := make([]byte, 512)
	leafImage[0] = 0x0d // leaf table page

	f := &wal.File{
		Header: &wal.Header{
			Magic:         wal.MagicBE,
			Version:       3007000,
			PageSize:      512,
			CheckpointSeq: 2,
			Salt1:         0x1111, Salt2: 0x2222,
		},
		Frames: []*wal.Frame{
			{Index: 0, PageNumber: 3, Data: leafImage},
			{Index: 1, PageNumber: 5, DBSizeAfter: 6, Data: make([]byte, 512)},
		},
	}

	var buf bytes.Buffer
	if err := WriteWAL(&buf, f, Options{}); err != nil {
		t.Fatalf("WriteWAL failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"WAL HEADER",
		"big-endian checksums",
		"Frames:          2",
		"frame 0: page 3",
		"LeafTable, 0 cells",
		"frame 1: page 5  COMMIT (db size 6)",
		"image not a b-tree page",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestWriteWALPageFilter(t *testing.T) {
	f := &wal.File{
		Header: &wal.Header{Magic: wal.MagicLE, PageSize: 512},
		Frames: []*wal.Frame{
			{Index: 0, PageNumber: 3, Data: make([]byte, 512)},
			{Index: 1, PageNumber: 5, Data: make([]byte, 512)},
		},
	}

	var buf bytes.Buffer
	if err := WriteWAL(&buf, f, Options{Pages: []uint32{5}}); err != nil {
		t.Fatalf("WriteWAL failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "frame 0") {
		t.Error("filtered frame present")
	}
	if !strings.Contains(out, "frame 1: page 5") {
		t.Error("matched frame missing")
	}
}
