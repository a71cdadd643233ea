// Package rsi implements the Resident-Set Index: a dense array, one slot
// per data frame, mapping a resident frame to the real address of the
// lower-table entry that currently owns it. This is a back-index, not an
// owning reference — slots hold plain real addresses, never pointers back
// into page-table structures.
package rsi

// ResidentSet is the Resident-Set Index.
type ResidentSet struct {
	owner    []uint32
	occupied []bool
}

// New creates a Resident-Set Index sized for n data frames.
func New(n uint32) *ResidentSet {
	return &ResidentSet{
		owner:    make([]uint32, n),
		occupied: make([]bool, n),
	}
}

// Len returns the number of frame slots.
func (r *ResidentSet) Len() uint32 { return uint32(len(r.owner)) }

// Record notes that the frame at frameIndex is now owned by the lower-table
// entry at lowerPTERA. Called on every new or swapped-in frame.
func (r *ResidentSet) Record(frameIndex uint32, lowerPTERA uint32) {
	r.owner[frameIndex] = lowerPTERA
	r.occupied[frameIndex] = true
}

// Lookup returns the lower-table entry real address owning frameIndex, and
// whether the slot has ever been assigned.
func (r *ResidentSet) Lookup(frameIndex uint32) (uint32, bool) {
	if !r.occupied[frameIndex] {
		return 0, false
	}
	return r.owner[frameIndex], true
}
