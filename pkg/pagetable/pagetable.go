// Package pagetable inspects 32-bit x86 two-level paging structures.
//
// All lookups are read-only walks over an already-resident image: no
// page-table page is ever created as a side effect of inspection.
package pagetable

import (
	"errors"

	"github.com/utotu/MIT-6.828/pkg/memory"
)

const (
	// PageShift is log2 of the page size.
	PageShift = 12
	// PageSize is the size of one page in bytes.
	PageSize = 1 << PageShift

	// entries per page directory or page table
	tableEntries = 1024

	entrySize = 4
)

// Page table and directory entry flags.
const (
	FlagPresent  PTE = 1 << 0
	FlagWritable PTE = 1 << 1
	FlagUser     PTE = 1 << 2
)

// PTE is a raw page-table (or page-directory) entry. The physical frame
// address and the flag bits are only meaningful when Present is set.
type PTE uint32

// Present reports whether the entry maps a frame.
func (e PTE) Present() bool { return e&FlagPresent != 0 }

// Writable reports whether the mapping allows writes.
func (e PTE) Writable() bool { return e&FlagWritable != 0 }

// User reports whether the mapping is accessible from user mode.
func (e PTE) User() bool { return e&FlagUser != 0 }

// Frame returns the physical address bits of the entry, page aligned.
func (e PTE) Frame() uint32 { return uint32(e) &^ (PageSize - 1) }

// Bit returns the flag as a 0/1 indicator, derived by masking and
// shifting the raw entry.
func (e PTE) Bit(flag PTE) uint32 {
	switch flag {
	case FlagPresent:
		return uint32(e & FlagPresent)
	case FlagWritable:
		return uint32(e&FlagWritable) >> 1
	case FlagUser:
		return uint32(e&FlagUser) >> 2
	}
	return 0
}

func pdx(va uint32) uint32 { return va >> 22 }
func ptx(va uint32) uint32 { return (va >> PageShift) & (tableEntries - 1) }

// Walk looks up the page-table entry covering va under the page
// directory rooted at root. mem must read physical addresses. The bool
// result reports whether a page table covers va at all; a covered entry
// may still not be Present.
func Walk(mem memory.Reader, root, va uint32) (PTE, bool, error) {
	pde, err := memory.ReadUint32(mem, root+pdx(va)*entrySize)
	if err != nil {
		return 0, false, err
	}
	if !PTE(pde).Present() {
		return 0, false, nil
	}
	pte, err := memory.ReadUint32(mem, PTE(pde).Frame()+ptx(va)*entrySize)
	if err != nil {
		return 0, false, err
	}
	return PTE(pte), true, nil
}

// Mapping is the inspection report for one page-aligned virtual address.
type Mapping struct {
	VA  uint32
	PTE PTE
	// Mapped is set when a present entry covers VA.
	Mapped bool
}

// ErrInvertedRange is returned when the end of a requested range lies
// before its start.
var ErrInvertedRange = errors.New("va_end < va_start")

// InspectRange reports the mapping of every page in [vaStart, vaEnd],
// inclusive on both ends. The span is rounded up to whole pages, and the
// walk covers the full range: a missing mapping does not terminate it.
func InspectRange(mem memory.Reader, root, vaStart, vaEnd uint32) ([]Mapping, error) {
	if vaEnd < vaStart {
		return nil, ErrInvertedRange
	}
	// 64-bit span arithmetic: vaEnd may be the top of the address space.
	span := uint64(vaEnd) - uint64(vaStart) + 1
	npages := (span + PageSize - 1) >> PageShift

	mappings := make([]Mapping, 0, npages)
	for i := uint64(0); i < npages; i++ {
		va := vaStart + uint32(i)<<PageShift
		pte, ok, err := Walk(mem, root, va)
		if err != nil {
			return mappings, err
		}
		mappings = append(mappings, Mapping{VA: va, PTE: pte, Mapped: ok && pte.Present()})
	}
	return mappings, nil
}
