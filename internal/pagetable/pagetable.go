// Package pagetable holds the pure arithmetic for the two-level page-table
// walk: splitting a simulated address into upper/lower/offset fields and
// computing the real address of a table entry.
package pagetable

const (
	// PageSize is the size, in bytes, of a page, a frame and a table.
	PageSize = 4096

	// EntrySize is the width, in bytes, of a single page-table entry.
	EntrySize = 4

	// EntriesPerTable is the number of entries in an upper or lower table.
	EntriesPerTable = PageSize / EntrySize

	upperShift = 22
	lowerShift = 12
	indexMask  = EntriesPerTable - 1
	offsetMask = PageSize - 1
)

// UpperIndex extracts the upper 10 bits of a simulated address: the index
// into the upper table.
func UpperIndex(sa uint32) uint32 {
	return (sa >> upperShift) & indexMask
}

// LowerIndex extracts the middle 10 bits of a simulated address: the index
// into the lower table selected by UpperIndex.
func LowerIndex(sa uint32) uint32 {
	return (sa >> lowerShift) & indexMask
}

// Offset extracts the low 12 bits of a simulated address: the byte offset
// within the mapped page.
func Offset(sa uint32) uint32 {
	return sa & offsetMask
}

// EntryAddr computes the real address of the entry at index within the
// table based at tableBase.
func EntryAddr(tableBase uint32, index uint32) uint32 {
	return tableBase + index*EntrySize
}
