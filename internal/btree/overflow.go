package btree

import (
	"encoding/binary"
	"fmt"
)

// PageReader supplies raw page bytes to the overflow walker and the
// tree walker. The pager satisfies it.
type PageReader interface {
	Page(n uint32) ([]byte, error)
	PageSize() uint32
	PageCount() uint32
}

// maxOverflowPages bounds a single overflow chain. A chain longer than
// this cannot occur in a well-formed file of any supported page size.
const maxOverflowPages = 100000

// Payload is an assembled cell payload together with the overflow
// pages that were read to build it.
type Payload struct {
	Data  []byte
	Chain []uint32
}

// ResolvePayload assembles the full payload of c, following its
// overflow chain if any. Each overflow page holds a 4-byte next-page
// pointer followed by payload bytes; a zero pointer ends the chain.
//
// On a damaged chain the bytes collected so far are returned together
// with a non-nil error wrapping ErrOverflowCycle or
// ErrOverflowTruncated, so callers can still describe the cell.
func ResolvePayload(r PageReader, c *Cell, usable uint32) (*Payload, error) {
	p := &Payload{Data: c.Local}
	if c.OverflowPage == 0 {
		if uint64(len(c.Local)) != c.PayloadSize {
			return p, fmt.Errorf("%w: %d of %d bytes local, no overflow pointer",
				ErrOverflowTruncated, len(c.Local), c.PayloadSize)
		}
		return p, nil
	}

	// Copy before appending: Local aliases the page buffer.
	p.Data = append([]byte(nil), c.Local...)
	remaining := c.PayloadSize - uint64(len(c.Local))
	avail := uint64(usable - 4)

	seen := make(map[uint32]bool)
	next := c.OverflowPage
	for next != 0 {
		if seen[next] {
			return p, fmt.Errorf("%w: page %d revisited", ErrOverflowCycle, next)
		}
		if len(seen) >= maxOverflowPages {
			return p, fmt.Errorf("%w: chain exceeds %d pages", ErrOverflowCycle, maxOverflowPages)
		}
		seen[next] = true
		p.Chain = append(p.Chain, next)

		data, err := r.Page(next)
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrOverflowTruncated, err)
		}

		take := avail
		if remaining < take {
			take = remaining
		}
		if uint64(len(data)) < 4+take {
			return p, fmt.Errorf("%w: page %d shorter than %d payload bytes",
				ErrOverflowTruncated, next, take)
		}
		p.Data = append(p.Data, data[4:4+take]...)
		remaining -= take

		next = binary.BigEndian.Uint32(data[:4])
		if remaining == 0 {
			break
		}
	}

	if remaining > 0 {
		return p, fmt.Errorf("%w: chain ended %d bytes short of %d",
			ErrOverflowTruncated, remaining, c.PayloadSize)
	}
	return p, nil
}
