package pte_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vmsim/internal/pte"
)

func TestEmptyPTE(t *testing.T) {
	var p pte.PTE
	assert.True(t, p.IsEmpty())
	assert.False(t, p.IsResident())
}

func TestResidentLayoutRoundTrip(t *testing.T) {
	p := pte.NewResidentPTE(0x00403000, 0)
	assert.False(t, p.IsEmpty())
	assert.True(t, p.IsResident())

	frameRA, _ := p.AsResident()
	assert.Equal(t, uint32(0x00403000), frameRA)
}

func TestResidentLayoutDiscardsLowBitsOfFrameAddr(t *testing.T) {
	// A caller passing a non-page-aligned address never produces a
	// malformed entry: the low 12 bits are discarded.
	p := pte.NewResidentPTE(0x00403123, 0)
	frameRA, _ := p.AsResident()
	assert.Equal(t, uint32(0x00403000), frameRA)
}

func TestNonResidentLayoutRoundTrip(t *testing.T) {
	p := pte.NewNonResidentPTE(42, 0)
	assert.False(t, p.IsResident())
	assert.False(t, p.IsEmpty())

	block, _ := p.AsNonResident()
	assert.Equal(t, uint32(42), block)
}

func TestReferencedAndDirtyBits(t *testing.T) {
	p := pte.NewResidentPTE(0x00403000, 0)
	assert.False(t, p.Referenced())
	assert.False(t, p.Dirty())

	p = p.WithReferenced()
	assert.True(t, p.Referenced())
	assert.False(t, p.Dirty())

	p = p.WithDirty()
	assert.True(t, p.Referenced())
	assert.True(t, p.Dirty())

	p = p.WithoutReferenced()
	assert.False(t, p.Referenced())
	assert.True(t, p.Dirty())
}

func TestBitExclusivity(t *testing.T) {
	resident := pte.NewResidentPTE(0x00403000, pte.Referenced|pte.Dirty)
	nonResident := pte.NewNonResidentPTE(7, pte.Referenced|pte.Dirty)

	assert.True(t, resident.IsResident())
	assert.False(t, nonResident.IsResident())

	// Constructing a non-resident entry never leaves RESIDENT set, even if
	// the caller passes it in flags.
	sneaky := pte.NewNonResidentPTE(7, pte.Resident)
	assert.False(t, sneaky.IsResident())
}
