// Package vmsim is the translation engine: a two-level page-table walk,
// on-demand page allocation, and CLOCK-style page replacement with
// swap-out/swap-in against a backing store. All mutable state — the
// arena, bump cursors, the upper table's address, the clock hand and the
// block counter — lives in a single VM value; nothing is scattered across
// package-level variables.
package vmsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"vmsim/internal/arena"
	"vmsim/internal/config"
	"vmsim/internal/pagetable"
	"vmsim/internal/pte"
	"vmsim/internal/replace"
	"vmsim/internal/rsi"
	"vmsim/internal/store"
)

// ErrNotInitialized is returned by any operation performed before Init.
var ErrNotInitialized = errors.New("vmsim: not initialized")

// ErrStraddlesPage is returned by Read/Write when the requested range would
// cross a page boundary; per the design, callers needing larger transfers
// must split them at page boundaries themselves.
var ErrStraddlesPage = errors.New("vmsim: transfer straddles a page boundary")

// VM bundles every piece of process-wide state the core needs: the arena,
// the backing store, the replacement policy, the resident-set index, the
// upper table's real address, the simulated-address bump cursor and the
// backing-store block counter.
type VM struct {
	arena    *arena.Arena
	store    store.BackingStore
	selector replace.Selector
	rs       *rsi.ResidentSet

	upperPT     uint32
	nextBlock   uint32
	allocCursor uint32
	initialized bool
}

// New constructs a VM from a validated configuration and explicit
// collaborators. It does not allocate anything yet; call Init.
func New(cfg config.Config, st store.BackingStore, selector replace.Selector) (*VM, error) {
	ar, err := arena.New(cfg.ArenaSize, cfg.PTAreaSize)
	if err != nil {
		return nil, err
	}
	return &VM{
		arena:    ar,
		store:    st,
		selector: selector,
		rs:       rsi.New(ar.DataFrameCount()),
	}, nil
}

// NewDefault wires the common case: configuration from the environment, an
// in-memory backing store, and the CLOCK replacement policy. This is what
// cmd/vmsim-monitor uses; cmd/vmsim calls New with its own configuration.
func NewDefault() (*VM, error) {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return nil, err
	}
	return New(cfg, store.NewMemory(), replace.NewClock())
}

// Init creates the upper table and resets the block counter and
// simulated-address allocator. It is idempotent: calling it again leaves
// all observable state unchanged.
func (vm *VM) Init() error {
	if vm.initialized {
		return nil
	}
	if err := vm.store.Init(); err != nil {
		return fmt.Errorf("vmsim: backing store init: %w", err)
	}
	upperPT, err := vm.arena.AllocateTablePage()
	if err != nil {
		return fmt.Errorf("vmsim: allocating upper table: %w", err)
	}
	vm.upperPT = upperPT
	vm.nextBlock = 1
	vm.allocCursor = pagetable.PageSize // simulated address 0 is reserved as null
	vm.initialized = true
	return nil
}

func (vm *VM) checkInit() error {
	if !vm.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Alloc is the simulated-address bump allocator: it never reclaims, and it
// never returns 0.
func (vm *VM) Alloc(size uint32) (uint32, error) {
	if err := vm.checkInit(); err != nil {
		return 0, err
	}
	sa := vm.allocCursor
	vm.allocCursor += size
	return sa, nil
}

// Free is a no-op: the simulated address space is never reclaimed.
func (vm *VM) Free(sa uint32) {}

// resolveLowerEntry walks the upper table for sa, allocating a lower table
// on first touch of that upper slot, and returns the real address of sa's
// lower-table entry.
func (vm *VM) resolveLowerEntry(sa uint32) (uint32, error) {
	upperEntryRA := pagetable.EntryAddr(vm.upperPT, pagetable.UpperIndex(sa))
	lowerPT, err := vm.arena.ReadWord(upperEntryRA)
	if err != nil {
		return 0, err
	}
	if lowerPT == 0 {
		lowerPT, err = vm.arena.AllocateTablePage()
		if err != nil {
			return 0, err
		}
		if err := vm.arena.WriteWord(upperEntryRA, lowerPT); err != nil {
			return 0, err
		}
	}
	return pagetable.EntryAddr(lowerPT, pagetable.LowerIndex(sa)), nil
}

// allocateFrame is the Frame Allocator (4.3): it hands out a frame from the
// data sub-arena's bump cursor while there is room, and otherwise asks the
// Replacement Engine for a victim and evicts it.
func (vm *VM) allocateFrame() (uint32, error) {
	if ra, ok := vm.arena.BumpDataFrame(); ok {
		return ra, nil
	}
	_, victimPTERA, err := vm.selector.SelectVictim(vm.rs, vm.arena)
	if err != nil {
		return 0, fmt.Errorf("vmsim: selecting eviction victim: %w", err)
	}
	return vm.evict(victimPTERA)
}

// evict is the Swap Controller's eviction half (4.7): write the victim's
// frame to the backing store under a fresh block number, rewrite the
// owning entry in non-resident layout, and scrub the freed frame.
func (vm *VM) evict(victimPTERA uint32) (uint32, error) {
	word, err := vm.arena.ReadWord(victimPTERA)
	if err != nil {
		return 0, err
	}
	victim := pte.PTE(word)
	frameRA, _ := victim.AsResident()

	buf := make([]byte, pagetable.PageSize)
	if err := vm.arena.ReadAt(frameRA, buf); err != nil {
		return 0, err
	}
	block := vm.nextBlock
	if err := vm.store.Write(block, buf); err != nil {
		return 0, fmt.Errorf("vmsim: writing evicted page to block %d: %w", block, err)
	}
	vm.nextBlock++

	// The baseline policy unconditionally assigns a fresh block even if the
	// page was already paged out once before; DIRTY and REFERENCED are not
	// preserved. See DESIGN.md for the recorded open-question decision.
	nonResident := pte.NewNonResidentPTE(block, 0)
	if err := vm.arena.WriteWord(victimPTERA, uint32(nonResident)); err != nil {
		return 0, err
	}

	if err := vm.arena.ZeroAt(frameRA, pagetable.PageSize); err != nil {
		return 0, err
	}
	return frameRA, nil
}

// swapIn is the Swap Controller's swap-in half (4.7): read the target
// entry's block from the backing store into the freed frame, rewrite the
// entry in resident layout, and record the new mapping in the Resident-Set
// Index.
func (vm *VM) swapIn(targetPTERA uint32, freedFrameRA uint32) error {
	word, err := vm.arena.ReadWord(targetPTERA)
	if err != nil {
		return err
	}
	block, _ := pte.PTE(word).AsNonResident()

	buf := make([]byte, pagetable.PageSize)
	if err := vm.store.Read(block, buf); err != nil {
		return fmt.Errorf("vmsim: reading block %d for swap-in: %w", block, err)
	}
	if err := vm.arena.WriteAt(freedFrameRA, buf); err != nil {
		return err
	}

	resident := pte.NewResidentPTE(freedFrameRA, 0)
	if err := vm.arena.WriteWord(targetPTERA, uint32(resident)); err != nil {
		return err
	}
	frameIdx := vm.arena.FrameIndex(freedFrameRA)
	vm.rs.Record(frameIdx, targetPTERA)
	vm.selector.Notify(frameIdx)
	return nil
}

// swap evicts outPTERA and swaps inPTERA in using the freed frame; kept as
// a named operation mirroring evict+swap_in as a single step.
func (vm *VM) swap(inPTERA, outPTERA uint32) error {
	freed, err := vm.evict(outPTERA)
	if err != nil {
		return err
	}
	return vm.swapIn(inPTERA, freed)
}

// handleFault is the Fault Handler (4.8). It is invoked for a lower entry
// that is either empty (first touch) or non-resident (paged out), and
// leaves it resident, recording the new mapping.
func (vm *VM) handleFault(lowerEntryRA uint32, p pte.PTE) (pte.PTE, error) {
	if p.IsEmpty() {
		frameRA, err := vm.allocateFrame()
		if err != nil {
			return 0, fmt.Errorf("vmsim: allocating frame on first touch: %w", err)
		}
		resident := pte.NewResidentPTE(frameRA, 0)
		if err := vm.arena.WriteWord(lowerEntryRA, uint32(resident)); err != nil {
			return 0, err
		}
		frameIdx := vm.arena.FrameIndex(frameRA)
		vm.rs.Record(frameIdx, lowerEntryRA)
		vm.selector.Notify(frameIdx)
		return resident, nil
	}

	// Paged out: swap it back in, evicting a selector-chosen victim to make
	// room. select+evict+swap-in, rather than going through the Frame
	// Allocator's bump-first path, because a swap always needs a victim.
	_, victimPTERA, err := vm.selector.SelectVictim(vm.rs, vm.arena)
	if err != nil {
		return 0, fmt.Errorf("vmsim: selecting eviction victim for swap-in: %w", err)
	}
	if err := vm.swap(lowerEntryRA, victimPTERA); err != nil {
		return 0, err
	}
	word, err := vm.arena.ReadWord(lowerEntryRA)
	if err != nil {
		return 0, err
	}
	return pte.PTE(word), nil
}

// Map is the MMU's translate operation: it walks the page tables, invoking
// the Fault Handler on a miss, and sets REFERENCED (and DIRTY, for writes)
// on the lower entry before returning the translated real address.
func (vm *VM) Map(sa uint32, isWrite bool) (uint32, error) {
	if err := vm.checkInit(); err != nil {
		return 0, err
	}
	lowerEntryRA, err := vm.resolveLowerEntry(sa)
	if err != nil {
		return 0, err
	}
	word, err := vm.arena.ReadWord(lowerEntryRA)
	if err != nil {
		return 0, err
	}
	p := pte.PTE(word)
	if p.IsEmpty() || !p.IsResident() {
		p, err = vm.handleFault(lowerEntryRA, p)
		if err != nil {
			return 0, err
		}
	}

	frameRA, flags := p.AsResident()
	flags |= pte.Referenced
	if isWrite {
		flags |= pte.Dirty
	}
	newPTE := pte.NewResidentPTE(frameRA, flags)
	if err := vm.arena.WriteWord(lowerEntryRA, uint32(newPTE)); err != nil {
		return 0, err
	}
	return frameRA + pagetable.Offset(sa), nil
}

// LowerPTE returns the raw lower page-table entry for sa, without
// triggering a fault. It is primarily a test and monitor hook.
func (vm *VM) LowerPTE(sa uint32) (pte.PTE, error) {
	if err := vm.checkInit(); err != nil {
		return 0, err
	}
	upperEntryRA := pagetable.EntryAddr(vm.upperPT, pagetable.UpperIndex(sa))
	lowerPT, err := vm.arena.ReadWord(upperEntryRA)
	if err != nil {
		return 0, err
	}
	if lowerPT == 0 {
		return 0, nil
	}
	word, err := vm.arena.ReadWord(pagetable.EntryAddr(lowerPT, pagetable.LowerIndex(sa)))
	if err != nil {
		return 0, err
	}
	return pte.PTE(word), nil
}

// Read copies n bytes starting at sa into buf, translating (and faulting
// in) as needed. n must not carry the transfer past the end of sa's page.
func (vm *VM) Read(buf []byte, sa uint32, n uint32) error {
	if pagetable.Offset(sa)+n > pagetable.PageSize {
		return ErrStraddlesPage
	}
	ra, err := vm.Map(sa, false)
	if err != nil {
		return err
	}
	return vm.arena.ReadAt(ra, buf[:n])
}

// Write copies n bytes from buf to sa, translating (and faulting in) as
// needed. n must not carry the transfer past the end of sa's page.
func (vm *VM) Write(buf []byte, sa uint32, n uint32) error {
	if pagetable.Offset(sa)+n > pagetable.PageSize {
		return ErrStraddlesPage
	}
	ra, err := vm.Map(sa, true)
	if err != nil {
		return err
	}
	return vm.arena.WriteAt(ra, buf[:n])
}

// ReadReal copies n bytes starting at the real address ra directly out of
// the arena, bypassing translation.
func (vm *VM) ReadReal(buf []byte, ra uint32, n uint32) error {
	return vm.arena.ReadAt(ra, buf[:n])
}

// WriteReal copies n bytes into the arena at the real address ra directly,
// bypassing translation.
func (vm *VM) WriteReal(buf []byte, ra uint32, n uint32) error {
	return vm.arena.WriteAt(ra, buf[:n])
}

// ArenaSize, PTAreaSize, DataFrameCount and UpperTable expose read-only
// state for the monitor and for tests asserting invariants.
func (vm *VM) ArenaSize() uint32      { return vm.arena.Size() }
func (vm *VM) PTAreaSize() uint32     { return vm.arena.PTAreaSize() }
func (vm *VM) DataFrameCount() uint32 { return vm.arena.DataFrameCount() }
func (vm *VM) UpperTable() uint32     { return vm.upperPT }
func (vm *VM) NextBlock() uint32      { return vm.nextBlock }

// FrameIndexOf converts a resident frame's real address to its
// Resident-Set Index slot, for tests that check invariant 1.
func (vm *VM) FrameIndexOf(frameRA uint32) uint32 { return vm.arena.FrameIndex(frameRA) }

// RSILookup exposes the Resident-Set Index for diagnostics and the monitor.
func (vm *VM) RSILookup(frameIndex uint32) (uint32, bool) { return vm.rs.Lookup(frameIndex) }

// ResidentOccupancy reports how many of the Resident-Set Index's slots are
// currently occupied, out of the total. Used by the interactive monitor to
// render arena pressure.
func (vm *VM) ResidentOccupancy() (occupied, total uint32) {
	total = vm.rs.Len()
	for i := uint32(0); i < total; i++ {
		if _, ok := vm.rs.Lookup(i); ok {
			occupied++
		}
	}
	return occupied, total
}

// PutUint32 and GetUint32 are tiny byte-order helpers used by tests that
// build raw payloads; kept here so callers never have to import
// encoding/binary themselves just to poke at vmsim.
func PutUint32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }
func GetUint32(buf []byte) uint32    { return binary.LittleEndian.Uint32(buf) }
