// Package arena implements the Real Memory Arena: a single contiguous byte
// region partitioned into a page-table sub-arena (fixed prefix) and a data
// sub-arena (remainder). It also implements the Page Table Allocator (a
// bump allocator over the page-table sub-arena) and the raw bump side of
// the Frame Allocator (the Replacement Engine takes over once the data
// sub-arena is exhausted; that policy lives in package vmsim, not here).
package arena

import (
	"encoding/binary"
	"errors"
	"fmt"

	"vmsim/internal/pagetable"
)

// ErrOutOfBounds is returned by any access outside [0, size).
var ErrOutOfBounds = errors.New("arena: real address out of bounds")

// ErrTableAreaFull is returned when the page-table sub-arena is exhausted.
var ErrTableAreaFull = errors.New("arena: page-table sub-arena exhausted")

// Arena is a contiguous region of real memory. Real address 0 is reserved
// as "null" and is never handed out by either bump allocator: the
// page-table cursor starts one page in, so address 0 always lands inside
// the page reserved for that purpose.
type Arena struct {
	mem         []byte
	size        uint32
	ptAreaSize  uint32
	tableCursor uint32
	dataCursor  uint32
}

// New allocates a zeroed arena of size bytes, with the first ptAreaSize
// bytes reserved for page tables. Both must be page-aligned and
// ptAreaSize must be smaller than size and at least one page (so the null
// page can be reserved from it).
func New(size, ptAreaSize uint32) (*Arena, error) {
	if size%pagetable.PageSize != 0 {
		return nil, fmt.Errorf("arena: size %d is not a multiple of page size %d", size, pagetable.PageSize)
	}
	if ptAreaSize%pagetable.PageSize != 0 {
		return nil, fmt.Errorf("arena: page-table area size %d is not a multiple of page size %d", ptAreaSize, pagetable.PageSize)
	}
	if ptAreaSize < pagetable.PageSize || ptAreaSize >= size {
		return nil, fmt.Errorf("arena: page-table area size %d must be in [%d, %d)", ptAreaSize, pagetable.PageSize, size)
	}
	return &Arena{
		mem:         make([]byte, size),
		size:        size,
		ptAreaSize:  ptAreaSize,
		tableCursor: pagetable.PageSize, // page 0 reserved as the null address
		dataCursor:  ptAreaSize,
	}, nil
}

// Size returns the total arena size in bytes.
func (a *Arena) Size() uint32 { return a.size }

// PTAreaSize returns the size of the page-table sub-arena in bytes.
func (a *Arena) PTAreaSize() uint32 { return a.ptAreaSize }

// DataFrameCount returns the number of page-sized frames in the data
// sub-arena: the length the Resident-Set Index must be sized to.
func (a *Arena) DataFrameCount() uint32 {
	return (a.size - a.ptAreaSize) / pagetable.PageSize
}

// FrameIndex converts a data-frame real address into its Resident-Set
// Index slot number.
func (a *Arena) FrameIndex(frameRA uint32) uint32 {
	return (frameRA - a.ptAreaSize) / pagetable.PageSize
}

// FrameAddr is the inverse of FrameIndex.
func (a *Arena) FrameAddr(index uint32) uint32 {
	return a.ptAreaSize + index*pagetable.PageSize
}

func (a *Arena) bounds(ra, n uint32) error {
	if ra == 0 {
		return fmt.Errorf("%w: real address 0 is reserved", ErrOutOfBounds)
	}
	if ra >= a.size || n > a.size-ra {
		return fmt.Errorf("%w: ra=%#x n=%d size=%#x", ErrOutOfBounds, ra, n, a.size)
	}
	return nil
}

// ReadAt copies len(buf) bytes starting at ra into buf.
func (a *Arena) ReadAt(ra uint32, buf []byte) error {
	if err := a.bounds(ra, uint32(len(buf))); err != nil {
		return err
	}
	copy(buf, a.mem[ra:ra+uint32(len(buf))])
	return nil
}

// WriteAt copies buf into the arena starting at ra.
func (a *Arena) WriteAt(ra uint32, buf []byte) error {
	if err := a.bounds(ra, uint32(len(buf))); err != nil {
		return err
	}
	copy(a.mem[ra:ra+uint32(len(buf))], buf)
	return nil
}

// ZeroAt clears n bytes starting at ra.
func (a *Arena) ZeroAt(ra, n uint32) error {
	if err := a.bounds(ra, n); err != nil {
		return err
	}
	clear(a.mem[ra : ra+n])
	return nil
}

// ReadWord reads a little-endian 32-bit word (a PTE) at ra.
func (a *Arena) ReadWord(ra uint32) (uint32, error) {
	if err := a.bounds(ra, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.mem[ra : ra+4]), nil
}

// WriteWord writes a little-endian 32-bit word (a PTE) at ra.
func (a *Arena) WriteWord(ra uint32, v uint32) error {
	if err := a.bounds(ra, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.mem[ra:ra+4], v)
	return nil
}

// AllocateTablePage returns a fresh, zeroed, page-aligned page from the
// page-table sub-arena, advancing the bump cursor. It fails once the
// cursor would run past the page-table sub-arena.
func (a *Arena) AllocateTablePage() (uint32, error) {
	if a.tableCursor+pagetable.PageSize > a.ptAreaSize {
		return 0, ErrTableAreaFull
	}
	ra := a.tableCursor
	a.tableCursor += pagetable.PageSize
	clear(a.mem[ra : ra+pagetable.PageSize])
	return ra, nil
}

// BumpDataFrame returns a fresh, zeroed, page-aligned frame from the data
// sub-arena if the bump cursor has room, advancing it. The second return
// value is false once the data sub-arena is exhausted; the caller (the
// Frame Allocator in package vmsim) must then fall back to the Replacement
// Engine.
func (a *Arena) BumpDataFrame() (uint32, bool) {
	if a.dataCursor >= a.size {
		return 0, false
	}
	ra := a.dataCursor
	a.dataCursor += pagetable.PageSize
	clear(a.mem[ra : ra+pagetable.PageSize])
	return ra, true
}
