// Package schema decodes the sqlite_schema catalog: the table b-tree
// rooted at page 1 whose rows name every table, index, view and
// trigger in the database.
package schema

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/sqlitescope/internal/btree"
	"github.com/FocuswithJustin/sqlitescope/internal/format"
	"github.com/FocuswithJustin/sqlitescope/internal/record"
)

// Object is one row of sqlite_schema.
type Object struct {
	Type      string // "table", "index", "view" or "trigger"
	Name      string
	TableName string // The table this object is attached to
	RootPage  uint32 // 0 for views and triggers
	SQL       string // Empty for auto-created indexes
}

// Schema is the decoded catalog, in file order.
type Schema struct {
	Objects []Object

	// Warnings describe rows that could not be fully decoded. A
	// damaged row is skipped, not fatal.
	Warnings []string
}

// Tables returns the table objects, in file order.
func (s *Schema) Tables() []Object { return s.byType("table") }

// Indexes returns the index objects, in file order.
func (s *Schema) Indexes() []Object { return s.byType("index") }

func (s *Schema) byType(t string) []Object {
	var out []Object
	for _, o := range s.Objects {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return out
}

// Load walks the catalog b-tree rooted at page 1 and decodes its rows.
// enc is the database text encoding.
func Load(r btree.PageReader, usable uint32, enc format.TextEncoding) (*Schema, error) {
	s := &Schema{}
	w := &btree.Walker{Reader: r, Usable: usable}

	err := w.Walk(1, func(n *btree.Node) error {
		if n.Page.Type != btree.LeafTable {
			return nil
		}
		for _, vc := range n.Cells {
			if vc.Err != nil {
				s.Warnings = append(s.Warnings,
					fmt.Sprintf("page %d cell %d: %v", n.Page.Number, vc.Index, vc.Err))
				continue
			}
			obj, err := decodeRow(vc, enc)
			if err != nil {
				s.Warnings = append(s.Warnings,
					fmt.Sprintf("page %d cell %d: %v", n.Page.Number, vc.Index, err))
				continue
			}
			s.Objects = append(s.Objects, obj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// decodeRow turns one leaf cell into a catalog object. The row layout
// is fixed: type, name, tbl_name, rootpage, sql.
func decodeRow(vc btree.VisitedCell, enc format.TextEncoding) (Object, error) {
	rec, err := record.Decode(vc.Payload.Data, enc)
	if err != nil {
		return Object{}, err
	}
	if len(rec.Values) < 5 {
		return Object{}, fmt.Errorf("catalog row has %d columns, want 5", len(rec.Values))
	}

	obj := Object{
		Type:      rec.Values[0].Text,
		Name:      rec.Values[1].Text,
		TableName: rec.Values[2].Text,
		SQL:       rec.Values[4].Text,
	}
	if rec.Values[3].Kind == record.KindInt && rec.Values[3].Int >= 0 {
		obj.RootPage = uint32(rec.Values[3].Int)
	}
	return obj, nil
}

// IntegerPrimaryKeyColumn returns the index of the column declared
// INTEGER PRIMARY KEY, whose stored value is NULL and aliases the
// rowid. It returns -1 when the table has no such column or is a
// WITHOUT ROWID table.
func (o Object) IntegerPrimaryKeyColumn() int {
	if o.Type != "table" || o.SQL == "" {
		return -1
	}
	upper := strings.ToUpper(o.SQL)
	if strings.Contains(upper, "WITHOUT ROWID") {
		return -1
	}

	open := strings.Index(o.SQL, "(")
	end := strings.LastIndex(o.SQL, ")")
	if open < 0 || end <= open {
		return -1
	}

	for i, col := range splitColumns(o.SQL[open+1 : end]) {
		u := strings.ToUpper(strings.TrimSpace(col))
		if isTableConstraint(u) {
			continue
		}
		if strings.Contains(u, "INTEGER") && strings.Contains(u, "PRIMARY KEY") {
			return i
		}
	}
	return -1
}

// splitColumns splits a column definition list on commas at paren
// depth zero, ignoring commas inside quotes.
func splitColumns(s string) []string {
	var cols []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`' || c == '[':
			quote = c
			if c == '[' {
				quote = ']'
			}
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			cols = append(cols, s[start:i])
			start = i + 1
		}
	}
	cols = append(cols, s[start:])
	return cols
}

// isTableConstraint reports whether a definition entry is a table-level
// constraint rather than a column definition.
func isTableConstraint(u string) bool {
	for _, kw := range []string{"PRIMARY KEY", "UNIQUE", "CHECK", "FOREIGN KEY", "CONSTRAINT"} {
		if strings.HasPrefix(u, kw) {
			return true
		}
	}
	return false
}
