package vmsim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmsim/internal/config"
	"vmsim/internal/pagetable"
	"vmsim/internal/pte"
	"vmsim/internal/replace"
	"vmsim/internal/store"
	"vmsim/vmsim"
)

func newVM(t *testing.T, arenaSize uint32) *vmsim.VM {
	t.Helper()
	cfg := config.Config{ArenaSize: arenaSize, PTAreaSize: config.PTAreaSize}
	vm, err := vmsim.New(cfg, store.NewMemory(), replace.NewClock())
	require.NoError(t, err)
	require.NoError(t, vm.Init())
	return vm
}

func defaultVM(t *testing.T) *vmsim.VM {
	t.Helper()
	return newVM(t, config.DefaultArenaSize)
}

// S1: single-page write/read.
func TestSinglePageWriteRead(t *testing.T) {
	vm := defaultVM(t)

	buf := make([]byte, 4)
	vmsim.PutUint32(buf, 0xDEADBEEF)
	require.NoError(t, vm.Write(buf, 0x1000, 4))

	out := make([]byte, 4)
	require.NoError(t, vm.Read(out, 0x1000, 4))
	assert.Equal(t, uint32(0xDEADBEEF), vmsim.GetUint32(out))
}

// S2: cold touch allocates tables.
func TestColdTouchAllocatesTables(t *testing.T) {
	vm := defaultVM(t)

	const sa = 0x00401234
	require.Equal(t, uint32(1), pagetable.UpperIndex(sa))
	require.Equal(t, uint32(1), pagetable.LowerIndex(sa))

	ra, err := vm.Map(sa, false)
	require.NoError(t, err)

	p, err := vm.LowerPTE(sa)
	require.NoError(t, err)
	assert.True(t, p.IsResident())

	frameRA, _ := p.AsResident()
	assert.GreaterOrEqual(t, frameRA, vm.PTAreaSize())
	assert.Less(t, frameRA, vm.PTAreaSize()+pagetable.PageSize)
	assert.Equal(t, frameRA+pagetable.Offset(sa), ra)
}

// S3: overflow forces eviction.
func TestOverflowForcesEviction(t *testing.T) {
	dataFrames := uint32(2)
	arenaSize := config.PTAreaSize + dataFrames*pagetable.PageSize
	vm := newVM(t, arenaSize)
	require.Equal(t, dataFrames, vm.DataFrameCount())

	sentinel := func(n uint32) []byte {
		b := make([]byte, 4)
		vmsim.PutUint32(b, n)
		return b
	}

	require.NoError(t, vm.Write(sentinel(0xAAAA0001), 0x1000, 4))
	require.NoError(t, vm.Write(sentinel(0xAAAA0002), 0x2000, 4))
	require.NoError(t, vm.Write(sentinel(0xAAAA0003), 0x3000, 4))

	p1, err := vm.LowerPTE(0x1000)
	require.NoError(t, err)
	p2, err := vm.LowerPTE(0x2000)
	require.NoError(t, err)
	p3, err := vm.LowerPTE(0x3000)
	require.NoError(t, err)

	assert.True(t, p3.IsResident())

	firstTwo := map[uint32]pte.PTE{0x1000: p1, 0x2000: p2}
	var evictedSA uint32
	var evictedPTE pte.PTE
	residentCount := 0
	for sa, p := range firstTwo {
		if p.IsResident() {
			residentCount++
			continue
		}
		evictedSA, evictedPTE = sa, p
	}
	require.Equal(t, 1, residentCount)

	block, _ := evictedPTE.AsNonResident()
	assert.Equal(t, uint32(1), block)

	out := make([]byte, 4)
	require.NoError(t, vm.Read(out, evictedSA, 4))
	if evictedSA == 0x1000 {
		assert.Equal(t, uint32(0xAAAA0001), vmsim.GetUint32(out))
	} else {
		assert.Equal(t, uint32(0xAAAA0002), vmsim.GetUint32(out))
	}
}

// S4: CLOCK clears reference bits.
func TestClockClearsReferenceBits(t *testing.T) {
	dataFrames := uint32(3)
	arenaSize := config.PTAreaSize + dataFrames*pagetable.PageSize
	vm := newVM(t, arenaSize)

	addrs := []uint32{0x1000, 0x2000, 0x3000}
	for _, sa := range addrs {
		_, err := vm.Map(sa, true) // write sets REFERENCED and DIRTY
		require.NoError(t, err)
	}
	for _, sa := range addrs {
		p, err := vm.LowerPTE(sa)
		require.NoError(t, err)
		require.True(t, p.Referenced())
	}

	// A fourth distinct page forces exactly one eviction.
	_, err := vm.Map(0x4000, false)
	require.NoError(t, err)

	nonResident, referencedCleared := 0, 0
	for _, sa := range addrs {
		p, err := vm.LowerPTE(sa)
		require.NoError(t, err)
		if !p.IsResident() {
			nonResident++
			continue
		}
		if !p.Referenced() {
			referencedCleared++
		}
	}
	assert.Equal(t, 1, nonResident)
	assert.Equal(t, 2, referencedCleared)
}

// S5: null address reserved.
func TestAllocNeverReturnsZero(t *testing.T) {
	vm := defaultVM(t)
	sa, err := vm.Alloc(pagetable.PageSize)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sa, uint32(pagetable.PageSize))
	assert.NotZero(t, sa)
}

// S6: write sets DIRTY via MMU.
func TestWriteSetsDirty(t *testing.T) {
	vm := defaultVM(t)
	_, err := vm.Map(0x5000, true)
	require.NoError(t, err)

	p, err := vm.LowerPTE(0x5000)
	require.NoError(t, err)
	assert.True(t, p.IsResident())
	assert.True(t, p.Referenced())
	assert.True(t, p.Dirty())
}

// Invariant 1: resident round-trip via the Resident-Set Index.
func TestResidentRoundTripInvariant(t *testing.T) {
	vm := defaultVM(t)
	_, err := vm.Map(0x1000, false)
	require.NoError(t, err)

	p, err := vm.LowerPTE(0x1000)
	require.NoError(t, err)
	require.True(t, p.IsResident())

	frameRA, _ := p.AsResident()
	lowerPTERA, ok := vm.RSILookup(vm.FrameIndexOf(frameRA))
	require.True(t, ok)

	word, err := vmRawLowerPTERA(vm, lowerPTERA)
	require.NoError(t, err)
	assert.Equal(t, uint32(p), word)
}

// vmRawLowerPTERA reads the raw word at a real address via ReadReal, used
// only to assert the RSI's back-pointer lands on the same entry we wrote.
func vmRawLowerPTERA(vm *vmsim.VM, ra uint32) (uint32, error) {
	buf := make([]byte, 4)
	if err := vm.ReadReal(buf, ra, 4); err != nil {
		return 0, err
	}
	return vmsim.GetUint32(buf), nil
}

// Invariant 3 / monotone block counter across repeated eviction.
func TestMonotoneBlockCounter(t *testing.T) {
	dataFrames := uint32(1)
	arenaSize := config.PTAreaSize + dataFrames*pagetable.PageSize
	vm := newVM(t, arenaSize)

	require.NoError(t, must(vm.Map(0x1000, false)))
	assert.Equal(t, uint32(1), vm.NextBlock())
	require.NoError(t, must(vm.Map(0x2000, false)))
	assert.Equal(t, uint32(2), vm.NextBlock())
	require.NoError(t, must(vm.Map(0x3000, false)))
	assert.Equal(t, uint32(3), vm.NextBlock())
}

func must(_ uint32, err error) error { return err }

// Idempotence of Init.
func TestInitIdempotent(t *testing.T) {
	cfg := config.Config{ArenaSize: config.DefaultArenaSize, PTAreaSize: config.PTAreaSize}
	vm, err := vmsim.New(cfg, store.NewMemory(), replace.NewClock())
	require.NoError(t, err)

	require.NoError(t, vm.Init())
	upperBefore := vm.UpperTable()
	blockBefore := vm.NextBlock()

	require.NoError(t, vm.Init())
	assert.Equal(t, upperBefore, vm.UpperTable())
	assert.Equal(t, blockBefore, vm.NextBlock())
}

// Straddling transfers are rejected rather than silently truncated.
func TestReadWriteRejectsStraddlingTransfer(t *testing.T) {
	vm := defaultVM(t)
	buf := make([]byte, 8)
	err := vm.Write(buf, pagetable.PageSize-4, 8)
	assert.ErrorIs(t, err, vmsim.ErrStraddlesPage)
}

// Operations before Init fail rather than panicking.
func TestOperationsBeforeInit(t *testing.T) {
	cfg := config.Config{ArenaSize: config.DefaultArenaSize, PTAreaSize: config.PTAreaSize}
	vm, err := vmsim.New(cfg, store.NewMemory(), replace.NewClock())
	require.NoError(t, err)

	_, err = vm.Map(0x1000, false)
	assert.ErrorIs(t, err, vmsim.ErrNotInitialized)
}
