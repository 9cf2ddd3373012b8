// Package model assembles the decoded database into a single
// JSON-serializable document: header summary, schema listing, per-page
// descriptors and per-b-tree graphs.
//
// Field order in the structs below is the field order in the emitted
// JSON. Encoding the same file twice yields byte-identical output:
// pages are sorted by page number, b-trees follow schema file order
// (the catalog tree contributes page descriptors but has no b-tree
// entry), cells follow the pointer array and links follow emission
// order within each node.
package model

// DatabaseInfo summarizes the file header.
type DatabaseInfo struct {
	FileName        string `json:"file_name"`
	PageSize        uint32 `json:"page_size"`
	PageCount       uint32 `json:"page_count"`
	HeaderPageCount uint32 `json:"header_page_count"`
	UsableSize      uint32 `json:"usable_size"`
	SchemaFormat    uint32 `json:"schema_format"`
	TextEncoding    string `json:"text_encoding"`
	SQLiteVersion   string `json:"sqlite_version"`
}

// SchemaTable is one table listed in the catalog.
type SchemaTable struct {
	Name     string `json:"name"`
	RootPage uint32 `json:"root_page"`
}

// SchemaIndex is one index listed in the catalog.
type SchemaIndex struct {
	Name      string `json:"name"`
	TableName string `json:"table_name"`
	RootPage  uint32 `json:"root_page"`
}

// SchemaInfo lists the traversable catalog objects in file order.
type SchemaInfo struct {
	Tables  []SchemaTable `json:"tables"`
	Indexes []SchemaIndex `json:"indexes"`
}

// CellDesc describes one cell of a page. Fields that do not apply to
// the cell's type are null.
type CellDesc struct {
	Index        int     `json:"index"`
	CellType     string  `json:"cell_type"`
	Offset       uint32  `json:"offset"`
	Size         uint32  `json:"size"`
	RowID        *int64  `json:"rowid"`
	LeftChild    *uint32 `json:"left_child"`
	PayloadSize  *uint64 `json:"payload_size"`
	HasOverflow  bool    `json:"has_overflow"`
	OverflowPage *uint32 `json:"overflow_page"`
	Preview      string  `json:"preview"`
	FullContent  string  `json:"full_content"`
}

// PageDesc describes one page reachable from some b-tree root.
type PageDesc struct {
	PageNumber       uint32     `json:"page_number"`
	PageType         string     `json:"page_type"`
	CellCount        int        `json:"cell_count"`
	FreeSpace        uint32     `json:"free_space"`
	CellContentStart uint32     `json:"cell_content_start"`
	Checksum         string     `json:"checksum"`
	Cells            []CellDesc `json:"cells"`
}

// NodeDesc is one node of a b-tree graph. IDs index the tree's nodes
// array in visit order.
type NodeDesc struct {
	ID         int      `json:"id"`
	PageNumber uint32   `json:"page_number"`
	PageType   string   `json:"page_type"`
	CellCount  int      `json:"cell_count"`
	Depth      int      `json:"depth"`
	Children   []uint32 `json:"children"`
}

// Link is one parent-to-child or cell-to-overflow edge.
type Link struct {
	Source   int    `json:"source"`
	Target   int    `json:"target"`
	LinkType string `json:"link_type"` // "child" or "overflow"
}

// BTree is the traversal graph of one catalog object.
type BTree struct {
	Name       string     `json:"name"`
	TreeType   string     `json:"tree_type"` // "table" or "index"
	RootPage   uint32     `json:"root_page"`
	Depth      int        `json:"depth"`
	TotalCells int        `json:"total_cells"`
	Nodes      []NodeDesc `json:"nodes"`
	Links      []Link     `json:"links"`
	Error      string     `json:"error,omitempty"`
}

// Model is the complete document handed to the renderer and the dump
// formatter.
type Model struct {
	DatabaseInfo DatabaseInfo `json:"database_info"`
	Schema       SchemaInfo   `json:"schema"`
	Pages        []PageDesc   `json:"pages"`
	BTrees       []BTree      `json:"btrees"`
}
