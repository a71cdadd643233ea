// Package pte models the page-table entry: a 32-bit tagged union whose
// RESIDENT bit selects between a resident layout (high bits hold a frame
// real address) and a non-resident layout (bits 10-23 hold a backing-store
// block number). The zero value is the empty (never-allocated) entry.
package pte

// Flags holds the low bits of a PTE that are not part of either payload:
// RESIDENT, REFERENCED and DIRTY.
type Flags uint32

const (
	Resident   Flags = 1 << 0
	Referenced Flags = 1 << 1
	Dirty      Flags = 1 << 2

	residentFlagMask    = 0xFFF  // low 12 bits, resident layout
	nonResidentFlagMask = 0x3FF  // low 10 bits, non-resident layout
	frameAddrMask       = ^uint32(0xFFF)
	blockShift          = 10
	blockMask           = 0x3FFF // bits 10..23
)

// PTE is a single page-table entry.
type PTE uint32

// NewResidentPTE builds a resident-layout entry pointing at the page-aligned
// frame real address frameRA. The RESIDENT bit is always set regardless of
// flags; frameRA's low 12 bits are discarded (the caller must already have a
// page-aligned address, but this constructor never produces a malformed
// entry even if it is not).
func NewResidentPTE(frameRA uint32, flags Flags) PTE {
	f := (flags | Resident) & residentFlagMask
	return PTE((frameRA & frameAddrMask) | uint32(f))
}

// NewNonResidentPTE builds a non-resident-layout entry recording block as
// the backing-store block number. The RESIDENT bit is always clear.
func NewNonResidentPTE(block uint32, flags Flags) PTE {
	f := (flags &^ Resident) & nonResidentFlagMask
	return PTE((block&blockMask)<<blockShift | uint32(f))
}

// IsEmpty reports whether the entry has never been allocated.
func (p PTE) IsEmpty() bool { return p == 0 }

// IsResident reports whether the RESIDENT bit is set.
func (p PTE) IsResident() bool { return p&PTE(Resident) != 0 }

// Referenced reports whether the REFERENCED bit is set.
func (p PTE) Referenced() bool { return p&PTE(Referenced) != 0 }

// Dirty reports whether the DIRTY bit is set.
func (p PTE) Dirty() bool { return p&PTE(Dirty) != 0 }

// AsResident decodes the entry under the resident layout: the page-aligned
// frame real address and the low-bit flags. Callers should only trust this
// when IsResident() is true.
func (p PTE) AsResident() (frameRA uint32, flags Flags) {
	return uint32(p) & frameAddrMask, Flags(p) & residentFlagMask &^ Resident
}

// AsNonResident decodes the entry under the non-resident layout: the block
// number and the low-bit flags. Callers should only trust this when
// IsResident() is false and IsEmpty() is false.
func (p PTE) AsNonResident() (block uint32, flags Flags) {
	return (uint32(p) >> blockShift) & blockMask, Flags(p) & nonResidentFlagMask
}

// WithReferenced returns a copy of p with the REFERENCED bit set.
func (p PTE) WithReferenced() PTE { return p | PTE(Referenced) }

// WithoutReferenced returns a copy of p with the REFERENCED bit cleared.
func (p PTE) WithoutReferenced() PTE { return p &^ PTE(Referenced) }

// WithDirty returns a copy of p with the DIRTY bit set.
func (p PTE) WithDirty() PTE { return p | PTE(Dirty) }
