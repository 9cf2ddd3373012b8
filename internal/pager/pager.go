// Package pager provides read-only page access over a byte source.
//
// Pages are numbered from 1; page n occupies bytes
// (n-1)*page_size .. n*page_size of the source. Raw page bytes are held
// in a size-bounded cache so repeated traversals of large files do not
// re-read the same pages.
package pager

import (
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/FocuswithJustin/sqlitescope/internal/format"
	"github.com/FocuswithJustin/sqlitescope/internal/source"
)

// Common errors.
var (
	ErrPageOutOfBounds = errors.New("page number out of bounds")
	ErrUnexpectedEOF   = errors.New("unexpected end of file")
)

// cacheBudget caps the total bytes of cached pages (16 MiB).
const cacheBudget = 16 << 20

// Pager reads fixed-size pages from a Source. It never writes.
type Pager struct {
	src    source.Source
	header *format.Header
	count  uint32
	cache  *ristretto.Cache[uint32, []byte]
}

// New reads and validates the database header from src and returns a
// pager for its pages.
func New(src source.Source) (*Pager, error) {
	buf := make([]byte, format.HeaderSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: file shorter than %d-byte header", ErrUnexpectedEOF, format.HeaderSize)
		}
		return nil, err
	}
	h, err := format.ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint32, []byte]{
		NumCounters: 1 << 14,
		MaxCost:     cacheBudget,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Pager{
		src:    src,
		header: h,
		count:  h.PageCount(src.Size()),
		cache:  cache,
	}, nil
}

// Header returns the decoded database header.
func (p *Pager) Header() *format.Header { return p.header }

// PageSize returns the page size in bytes.
func (p *Pager) PageSize() uint32 { return p.header.PageSize }

// PageCount returns the number of pages in the database.
func (p *Pager) PageCount() uint32 { return p.count }

// Page returns the raw bytes of page n. The returned slice is shared
// with the cache and must not be modified.
func (p *Pager) Page(n uint32) ([]byte, error) {
	if n == 0 || n > p.count {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfBounds, n, p.count)
	}
	if data, ok := p.cache.Get(n); ok {
		return data, nil
	}

	size := int64(p.header.PageSize)
	data := make([]byte, size)
	off := int64(n-1) * size
	read, err := p.src.ReadAt(data, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read page %d: %w", n, err)
	}
	if int64(read) < size {
		return nil, fmt.Errorf("%w: short read on page %d", ErrUnexpectedEOF, n)
	}

	p.cache.Set(n, data, size)
	return data, nil
}

// Close releases the cache and the underlying source.
func (p *Pager) Close() error {
	p.cache.Close()
	return p.src.Close()
}
