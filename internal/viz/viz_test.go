package viz

import (
	"bytes"
	"strings"
	"testing"

	"github.com/FocuswithJustin/sqlitescope/internal/model"
)

func testModel() *model.Model {
	return &model.Model{
		DatabaseInfo: model.DatabaseInfo{
			FileName:      "viz.db",
			PageSize:      4096,
			PageCount:     2,
			UsableSize:    4096,
			TextEncoding:  "UTF-8",
			SQLiteVersion: "3.46.1",
		},
		Pages: []model.PageDesc{
			{PageNumber: 1, PageType: "LeafTable", Checksum: "ff00", Cells: []model.CellDesc{}},
		},
		BTrees: []model.BTree{
			{
				Name: "users", TreeType: "table", RootPage: 2, Depth: 1,
				Nodes: []model.NodeDesc{{ID: 0, PageNumber: 2, PageType: "LeafTable"}},
			},
		},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testModel()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Error("output is not an HTML document")
	}
	for _, want := range []string{
		"<title>sqlitescope — viz.db</title>",
		`<script id="model" type="application/json">`,
		`"file_name":"viz.db"`,
		`"page_count":2`,
		`"name":"users"`,
		"renderTrees();",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderEmptyModel(t *testing.T) {
	m := &model.Model{}
	m.DatabaseInfo.FileName = "empty.db"

	var buf bytes.Buffer
	if err := Render(&buf, m); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"btrees":null`) {
		t.Error("empty model JSON not embedded")
	}
}

func TestRenderEscapesTitle(t *testing.T) {
	m := testModel()
	m.DatabaseInfo.FileName = `<script>alert(1)</script>.db`

	var buf bytes.Buffer
	if err := Render(&buf, m); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(buf.String(), "<title>sqlitescope — <script>") {
		t.Error("title not escaped")
	}
}
