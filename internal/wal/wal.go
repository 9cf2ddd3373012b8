// Package wal decodes standalone SQLite write-ahead log files: the
// 32-byte log header and the sequence of frames that follow. Frames
// are reported, never applied to a database image.
//
// Reference: https://www.sqlite.org/walformat.html
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the WAL file header size in bytes.
	HeaderSize = 32

	// FrameHeaderSize is the per-frame header size in bytes.
	FrameHeaderSize = 24

	// MagicBE and MagicLE are the two accepted magic numbers; the low
	// bit selects the byte order used for frame checksums.
	MagicBE = 0x377f0683
	MagicLE = 0x377f0682
)

var (
	ErrBadMagic  = errors.New("bad WAL magic")
	ErrTruncated = errors.New("WAL truncated")
)

// IsWAL reports whether data begins with a WAL magic number.
func IsWAL(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	m := binary.BigEndian.Uint32(data)
	return m == MagicBE || m == MagicLE
}

// Header is the decoded 32-byte WAL file header.
type Header struct {
	Magic          uint32
	Version        uint32
	PageSize       uint32
	CheckpointSeq  uint32
	Salt1, Salt2   uint32
	Checksum1      uint32
	Checksum2      uint32
}

// BigEndianChecksum reports whether frame checksums use big-endian
// byte order.
func (h *Header) BigEndianChecksum() bool { return h.Magic == MagicBE }

// Frame is one decoded WAL frame header plus its page image.
type Frame struct {
	Index       int    // Position in the log, from 0
	PageNumber  uint32 // Database page this frame carries
	DBSizeAfter uint32 // Database size in pages after commit; nonzero marks a commit frame
	Salt1       uint32
	Salt2       uint32
	Checksum1   uint32
	Checksum2   uint32
	Data        []byte // Page image, Header.PageSize bytes
}

// Commit reports whether this frame ends a transaction.
func (f *Frame) Commit() bool { return f.DBSizeAfter != 0 }

// File is a decoded WAL file. Frames holds every frame whose salts
// match the header; Truncated is true when the file ended mid-frame.
type File struct {
	Header    *Header
	Frames    []*Frame
	Truncated bool
}

// Decode parses data as a complete WAL file. Scanning stops silently
// at the first frame whose salts disagree with the header, which is
// how a log marks frames left over from an earlier checkpoint.
func Decode(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d header bytes, want %d", ErrTruncated, len(data), HeaderSize)
	}

	h := &Header{
		Magic:         binary.BigEndian.Uint32(data[0:]),
		Version:       binary.BigEndian.Uint32(data[4:]),
		PageSize:      binary.BigEndian.Uint32(data[8:]),
		CheckpointSeq: binary.BigEndian.Uint32(data[12:]),
		Salt1:         binary.BigEndian.Uint32(data[16:]),
		Salt2:         binary.BigEndian.Uint32(data[20:]),
		Checksum1:     binary.BigEndian.Uint32(data[24:]),
		Checksum2:     binary.BigEndian.Uint32(data[28:]),
	}
	if h.Magic != MagicBE && h.Magic != MagicLE {
		return nil, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if !isValidWALPageSize(h.PageSize) {
		return nil, fmt.Errorf("bad WAL page size: %d", h.PageSize)
	}

	f := &File{Header: h}
	frameSize := FrameHeaderSize + int(h.PageSize)
	pos := HeaderSize
	for i := 0; ; i++ {
		if pos == len(data) {
			break
		}
		if pos+frameSize > len(data) {
			f.Truncated = true
			break
		}
		fh := data[pos : pos+FrameHeaderSize]
		fr := &Frame{
			Index:       i,
			PageNumber:  binary.BigEndian.Uint32(fh[0:]),
			DBSizeAfter: binary.BigEndian.Uint32(fh[4:]),
			Salt1:       binary.BigEndian.Uint32(fh[8:]),
			Salt2:       binary.BigEndian.Uint32(fh[12:]),
			Checksum1:   binary.BigEndian.Uint32(fh[16:]),
			Checksum2:   binary.BigEndian.Uint32(fh[20:]),
			Data:        data[pos+FrameHeaderSize : pos+frameSize],
		}
		if fr.Salt1 != h.Salt1 || fr.Salt2 != h.Salt2 {
			break
		}
		f.Frames = append(f.Frames, fr)
		pos += frameSize
	}

	return f, nil
}

// isValidWALPageSize accepts powers of two in [512, 65536].
func isValidWALPageSize(size uint32) bool {
	return size >= 512 && size <= 65536 && size&(size-1) == 0
}
