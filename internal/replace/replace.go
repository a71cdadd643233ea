// Package replace implements the Replacement Engine's victim-selection
// policy. The Swap Controller only needs a real address to evict; how that
// address is chosen is kept behind the Selector interface so alternative
// policies can be substituted without touching the Swap Controller, per
// the "replacement engine is pure policy" design note.
package replace

import (
	"errors"
	"math/rand"

	"vmsim/internal/arena"
	"vmsim/internal/pte"
	"vmsim/internal/rsi"
)

// ErrNoVictim is returned when the resident set has no occupied slot to
// evict, which should not happen given the Frame Allocator only asks for a
// victim once the data sub-arena is full.
var ErrNoVictim = errors.New("replace: no occupied resident-set slot")

// Selector chooses the next resident-set slot to evict.
type Selector interface {
	// SelectVictim returns the frame index and the real address of the
	// lower-table entry currently occupying it.
	SelectVictim(rs *rsi.ResidentSet, ar *arena.Arena) (frameIndex uint32, lowerPTERA uint32, err error)
	// Notify is called by the core (first-touch fault handling and swap-in)
	// every time a frame becomes (or becomes again) resident, immediately
	// after rsi.Record. Policies
	// that need insertion order (FIFO) use it; CLOCK and Random ignore it.
	Notify(frameIndex uint32)
}

// Clock is the CLOCK replacement policy: a hand sweeps the resident set,
// clearing REFERENCED bits as it passes, and selects the first slot found
// with REFERENCED already clear. The hand is not advanced past a selected
// victim; the next sweep re-examines it, which is harmless because by then
// the Swap Controller has rewritten it as non-resident and its slot will be
// overwritten by whatever frame takes its place. A slot whose entry is
// non-resident is never selected: the hand passes over it.
type Clock struct {
	hand uint32
}

// NewClock constructs a CLOCK selector with the hand at slot 0.
func NewClock() *Clock { return &Clock{} }

// SelectVictim implements Selector.
func (c *Clock) SelectVictim(rs *rsi.ResidentSet, ar *arena.Arena) (uint32, uint32, error) {
	n := rs.Len()
	if n == 0 {
		return 0, 0, ErrNoVictim
	}
	// With every slot holding a resident entry, one full sweep clears every
	// REFERENCED bit still set; the following entry examined is therefore
	// guaranteed clear, so n+1 checks suffice to find a victim.
	for i := uint32(0); i <= n; i++ {
		if c.hand >= n {
			c.hand = 0
		}
		pteRA, ok := rs.Lookup(c.hand)
		if !ok {
			c.hand++
			continue
		}
		word, err := ar.ReadWord(pteRA)
		if err != nil {
			return 0, 0, err
		}
		p := pte.PTE(word)
		if !p.IsResident() {
			c.hand = (c.hand + 1) % n
			continue
		}
		if p.Referenced() {
			if err := ar.WriteWord(pteRA, uint32(p.WithoutReferenced())); err != nil {
				return 0, 0, err
			}
			c.hand = (c.hand + 1) % n
			continue
		}
		return c.hand, pteRA, nil
	}
	return 0, 0, ErrNoVictim
}

// Notify implements Selector; CLOCK tracks state purely via the hand and
// the REFERENCED bit, so there is nothing to record here.
func (c *Clock) Notify(uint32) {}

// FIFO evicts the longest-resident frame regardless of its REFERENCED bit,
// tracking insertion order as Record is mirrored into it via Notify.
type FIFO struct {
	queue  []uint32 // frame indices, oldest first
	queued map[uint32]bool
}

// NewFIFO constructs an empty FIFO selector.
func NewFIFO() *FIFO {
	return &FIFO{queued: make(map[uint32]bool)}
}

// Notify implements Selector: it records that frameIndex was just
// (re)populated, making it the youngest entry for FIFO purposes.
func (f *FIFO) Notify(frameIndex uint32) {
	if !f.queued[frameIndex] {
		f.queue = append(f.queue, frameIndex)
		f.queued[frameIndex] = true
	}
}

// SelectVictim implements Selector.
func (f *FIFO) SelectVictim(rs *rsi.ResidentSet, ar *arena.Arena) (uint32, uint32, error) {
	for len(f.queue) > 0 {
		idx := f.queue[0]
		f.queue = f.queue[1:]
		delete(f.queued, idx)
		if pteRA, ok := rs.Lookup(idx); ok {
			return idx, pteRA, nil
		}
	}
	return 0, 0, ErrNoVictim
}

// Random picks a uniformly random occupied slot. Useful as a baseline in
// tests that want to assert selector-agnostic Swap Controller behavior.
type Random struct {
	rng *rand.Rand
}

// NewRandom constructs a Random selector seeded from seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// SelectVictim implements Selector.
func (r *Random) SelectVictim(rs *rsi.ResidentSet, ar *arena.Arena) (uint32, uint32, error) {
	n := rs.Len()
	if n == 0 {
		return 0, 0, ErrNoVictim
	}
	start := uint32(r.rng.Intn(int(n)))
	for i := uint32(0); i < n; i++ {
		idx := (start + i) % n
		if pteRA, ok := rs.Lookup(idx); ok {
			return idx, pteRA, nil
		}
	}
	return 0, 0, ErrNoVictim
}

// Notify implements Selector; Random needs no per-access bookkeeping.
func (r *Random) Notify(uint32) {}
