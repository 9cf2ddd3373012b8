// Package format defines SQLite file format constants and the database
// header decoder.
//
// Every SQLite database file begins with a 100-byte header carrying the
// magic string, the page size, the text encoding and assorted counters.
// This package decodes and validates that header; page-level structures
// are handled by the btree package.
//
// Reference: https://www.sqlite.org/fileformat.html
package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the database header size in bytes (first 100 bytes of the file).
	HeaderSize = 100

	// MagicString is the magic header string for SQLite 3 database files.
	// Exactly 16 bytes including the null terminator.
	MagicString = "SQLite format 3\000"

	// MinPageSize is the minimum allowed page size (512 bytes).
	MinPageSize = 512

	// MaxPageSize is the maximum allowed page size (65536 bytes).
	MaxPageSize = 65536
)

// Header offsets - byte positions in the 100-byte database header.
const (
	OffsetMagic             = 0  // Magic header string (16 bytes)
	OffsetPageSize          = 16 // Page size (2 bytes big-endian; 1 means 65536)
	OffsetWriteVersion      = 18 // File format write version (1 byte)
	OffsetReadVersion       = 19 // File format read version (1 byte)
	OffsetReservedSpace     = 20 // Reserved bytes at the end of each page (1 byte)
	OffsetMaxPayloadFrac    = 21 // Maximum embedded payload fraction, must be 64
	OffsetMinPayloadFrac    = 22 // Minimum embedded payload fraction, must be 32
	OffsetLeafPayloadFrac   = 23 // Leaf payload fraction, must be 32
	OffsetFileChangeCounter = 24 // File change counter (4 bytes big-endian)
	OffsetDatabaseSize      = 28 // Database size in pages (4 bytes big-endian)
	OffsetFirstFreelist     = 32 // First freelist trunk page (4 bytes big-endian)
	OffsetFreelistCount     = 36 // Total freelist pages (4 bytes big-endian)
	OffsetSchemaCookie      = 40 // Schema cookie (4 bytes big-endian)
	OffsetSchemaFormat      = 44 // Schema format number 1..4 (4 bytes big-endian)
	OffsetDefaultCacheSize  = 48 // Suggested cache size (4 bytes big-endian)
	OffsetLargestRootPage   = 52 // Largest root b-tree page, vacuum modes only
	OffsetTextEncoding      = 56 // Text encoding: 1=UTF-8, 2=UTF-16le, 3=UTF-16be
	OffsetUserVersion       = 60 // PRAGMA user_version (4 bytes big-endian)
	OffsetIncrVacuum        = 64 // Non-zero if incremental vacuum is enabled
	OffsetAppID             = 68 // PRAGMA application_id (4 bytes big-endian)
	OffsetReserved          = 72 // Reserved for expansion (20 bytes, zero)
	OffsetVersionValidFor   = 92 // Version-valid-for number (4 bytes big-endian)
	OffsetSQLiteVersion     = 96 // SQLite version number (4 bytes big-endian)
)

// Decode failures that are fatal to the whole file.
var (
	ErrBadMagic    = errors.New("bad magic header")
	ErrBadPageSize = errors.New("bad page size")
	ErrBadEncoding = errors.New("bad text encoding")
)

// TextEncoding is the database-level text encoding declared in the header.
type TextEncoding uint32

const (
	EncodingUTF8    TextEncoding = 1
	EncodingUTF16LE TextEncoding = 2
	EncodingUTF16BE TextEncoding = 3
)

// String returns the canonical spelling used in the model JSON.
func (e TextEncoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF-8"
	case EncodingUTF16LE:
		return "UTF-16LE"
	case EncodingUTF16BE:
		return "UTF-16BE"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(e))
	}
}

// Header is the decoded 100-byte database file header.
type Header struct {
	PageSize          uint32 // Actual page size in bytes (1 in the file means 65536)
	WriteVersion      uint8
	ReadVersion       uint8
	ReservedSpace     uint8 // Unused bytes at the end of every page
	MaxPayloadFrac    uint8
	MinPayloadFrac    uint8
	LeafPayloadFrac   uint8
	FileChangeCounter uint32
	DatabaseSize      uint32 // In-header database size in pages
	FirstFreelist     uint32
	FreelistCount     uint32
	SchemaCookie      uint32
	SchemaFormat      uint32
	DefaultCacheSize  uint32
	LargestRootPage   uint32
	TextEncoding      TextEncoding
	UserVersion       uint32
	IncrVacuum        uint32
	AppID             uint32
	VersionValidFor   uint32
	SQLiteVersion     uint32
}

// ParseHeader decodes and validates the first 100 bytes of a database file.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header truncated: got %d bytes, want %d", len(data), HeaderSize)
	}

	if string(data[OffsetMagic:OffsetMagic+16]) != MagicString {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, data[OffsetMagic:OffsetMagic+16])
	}

	h := &Header{
		WriteVersion:      data[OffsetWriteVersion],
		ReadVersion:       data[OffsetReadVersion],
		ReservedSpace:     data[OffsetReservedSpace],
		MaxPayloadFrac:    data[OffsetMaxPayloadFrac],
		MinPayloadFrac:    data[OffsetMinPayloadFrac],
		LeafPayloadFrac:   data[OffsetLeafPayloadFrac],
		FileChangeCounter: binary.BigEndian.Uint32(data[OffsetFileChangeCounter:]),
		DatabaseSize:      binary.BigEndian.Uint32(data[OffsetDatabaseSize:]),
		FirstFreelist:     binary.BigEndian.Uint32(data[OffsetFirstFreelist:]),
		FreelistCount:     binary.BigEndian.Uint32(data[OffsetFreelistCount:]),
		SchemaCookie:      binary.BigEndian.Uint32(data[OffsetSchemaCookie:]),
		SchemaFormat:      binary.BigEndian.Uint32(data[OffsetSchemaFormat:]),
		DefaultCacheSize:  binary.BigEndian.Uint32(data[OffsetDefaultCacheSize:]),
		LargestRootPage:   binary.BigEndian.Uint32(data[OffsetLargestRootPage:]),
		TextEncoding:      TextEncoding(binary.BigEndian.Uint32(data[OffsetTextEncoding:])),
		UserVersion:       binary.BigEndian.Uint32(data[OffsetUserVersion:]),
		IncrVacuum:        binary.BigEndian.Uint32(data[OffsetIncrVacuum:]),
		AppID:             binary.BigEndian.Uint32(data[OffsetAppID:]),
		VersionValidFor:   binary.BigEndian.Uint32(data[OffsetVersionValidFor:]),
		SQLiteVersion:     binary.BigEndian.Uint32(data[OffsetSQLiteVersion:]),
	}

	raw := binary.BigEndian.Uint16(data[OffsetPageSize:])
	switch {
	case raw == 1:
		h.PageSize = MaxPageSize
	case IsValidPageSize(int(raw)):
		h.PageSize = uint32(raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadPageSize, raw)
	}

	if h.TextEncoding < EncodingUTF8 || h.TextEncoding > EncodingUTF16BE {
		return nil, fmt.Errorf("%w: %d", ErrBadEncoding, uint32(h.TextEncoding))
	}

	return h, nil
}

// UsableSize returns the page size minus the per-page reserved space.
func (h *Header) UsableSize() uint32 {
	return h.PageSize - uint32(h.ReservedSpace)
}

// VersionString formats the SQLite version integer as "major.minor.patch".
func (h *Header) VersionString() string {
	v := h.SQLiteVersion
	return fmt.Sprintf("%d.%d.%d", v/1_000_000, (v/1_000)%1_000, v%1_000)
}

// PageCount reconciles the in-header database size with the file length.
// The in-header size is authoritative only when the change counter matches
// the version-valid-for counter; otherwise the file length wins. The larger
// file-derived count is also preferred when the header undercounts.
func (h *Header) PageCount(fileLen int64) uint32 {
	fromFile := uint32(fileLen / int64(h.PageSize))
	if h.FileChangeCounter != h.VersionValidFor {
		return fromFile
	}
	if h.DatabaseSize == 0 || fromFile > h.DatabaseSize {
		return fromFile
	}
	return h.DatabaseSize
}

// IsValidPageSize reports whether size is a power of two in [512, 65536].
func IsValidPageSize(size int) bool {
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}
