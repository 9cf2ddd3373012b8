// Package source provides read-only byte sources for database input.
//
// A Source abstracts over plain files, in-memory buffers and
// xz-compressed snapshots so the pager can address any of them by byte
// offset. Compressed input is inflated once into memory; database
// files are read in place.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// xzMagic is the 6-byte stream header of the xz container format.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Source is a random-access view of database bytes.
type Source interface {
	io.ReaderAt
	io.Closer

	// Size returns the total length of the source in bytes.
	Size() int64
}

// Open opens path as a Source. Files beginning with the xz stream
// header are decompressed into memory; everything else is served
// directly from the file.
func Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	magic := make([]byte, len(xzMagic))
	n, err := f.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if n == len(xzMagic) && bytes.Equal(magic, xzMagic) {
		defer f.Close()
		return openXZ(f, path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{f: f, size: info.Size()}, nil
}

// openXZ inflates an xz stream fully into memory.
func openXZ(f *os.File, path string) (Source, error) {
	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open xz stream %s: %w", path, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return NewMem(data), nil
}

// fileSource serves bytes straight from an open file.
type fileSource struct {
	f    *os.File
	size int64
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return s.size }
func (s *fileSource) Close() error                            { return s.f.Close() }

// memSource serves bytes from an in-memory buffer.
type memSource struct {
	r    *bytes.Reader
	size int64
}

// NewMem wraps data in a Source. The caller must not mutate data after
// the call.
func NewMem(data []byte) Source {
	return &memSource{r: bytes.NewReader(data), size: int64(len(data))}
}

func (s *memSource) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }
func (s *memSource) Size() int64                             { return s.size }
func (s *memSource) Close() error                            { return nil }
