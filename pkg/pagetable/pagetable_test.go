package pagetable

import (
	"testing"

	"github.com/utotu/MIT-6.828/pkg/memory"
)

const testRoot = 0x00010000

// mapPage installs va -> pa in a synthetic two-level table. Page-table
// pages are placed at fixed physical addresses derived from the
// directory index so fixtures stay readable.
func mapPage(mem *memory.Sparse, va, pa uint32, flags PTE) {
	table := uint32(0x00020000) + pdx(va)*PageSize
	pde, _ := memory.ReadUint32(mem, testRoot+pdx(va)*entrySize)
	if !PTE(pde).Present() {
		mem.Add(table, make([]byte, tableEntries*entrySize))
		mem.SetUint32(testRoot+pdx(va)*entrySize, table|uint32(FlagPresent|FlagWritable))
	}
	mem.SetUint32(table+ptx(va)*entrySize, pa|uint32(flags))
}

func emptyTables() *memory.Sparse {
	var mem memory.Sparse
	mem.Add(testRoot, make([]byte, tableEntries*entrySize))
	return &mem
}

func TestWalkAbsentDirectory(t *testing.T) {
	mem := emptyTables()
	pte, ok, err := Walk(mem, testRoot, 0x1000)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if ok || pte != 0 {
		t.Fatalf("Walk = (%#x, %v), want absent", pte, ok)
	}
}

func TestWalkDoesNotAllocate(t *testing.T) {
	// The walker sees only a Reader; at the type level it cannot create
	// page-table pages. This test pins the behavioral half: walking an
	// unmapped address leaves every directory slot untouched.
	mem := emptyTables()
	if _, _, err := Walk(mem, testRoot, 0xdeadb000); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for i := uint32(0); i < tableEntries; i++ {
		pde, err := memory.ReadUint32(mem, testRoot+i*entrySize)
		if err != nil {
			t.Fatalf("reading directory slot %d: %v", i, err)
		}
		if pde != 0 {
			t.Fatalf("directory slot %d modified by inspection: %#x", i, pde)
		}
	}
}

func TestWalkFlags(t *testing.T) {
	mem := emptyTables()
	mapPage(mem, 0x00002000, 0x00345000, FlagPresent|FlagWritable|FlagUser)

	pte, ok, err := Walk(mem, testRoot, 0x00002abc)
	if err != nil || !ok {
		t.Fatalf("Walk = (%v, %v)", ok, err)
	}
	if pte.Frame() != 0x00345000 {
		t.Fatalf("Frame() = %#x, want 0x00345000", pte.Frame())
	}
	if !pte.Present() || !pte.Writable() || !pte.User() {
		t.Fatalf("flags not decoded: %#x", uint32(pte))
	}
	if pte.Bit(FlagPresent) != 1 || pte.Bit(FlagWritable) != 1 || pte.Bit(FlagUser) != 1 {
		t.Fatalf("Bit() decode: p=%d w=%d u=%d", pte.Bit(FlagPresent), pte.Bit(FlagWritable), pte.Bit(FlagUser))
	}
}

func TestInspectRangePageCount(t *testing.T) {
	tests := []struct {
		name     string
		vaStart  uint32
		vaEnd    uint32
		expected int
	}{
		{"exactly one page", 0x1000, 0x1fff, 1},
		{"one byte into the next page", 0x1000, 0x2000, 2},
		{"single address", 0x1000, 0x1000, 1},
		{"two full pages", 0x1000, 0x2fff, 2},
		{"top of address space", 0xfffff000, 0xffffffff, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := emptyTables()
			mappings, err := InspectRange(mem, testRoot, tt.vaStart, tt.vaEnd)
			if err != nil {
				t.Fatalf("InspectRange: %v", err)
			}
			if len(mappings) != tt.expected {
				t.Fatalf("inspected %d pages, want %d", len(mappings), tt.expected)
			}
		})
	}
}

func TestInspectRangeInverted(t *testing.T) {
	mem := emptyTables()
	mappings, err := InspectRange(mem, testRoot, 0x2000, 0x1000)
	if err != ErrInvertedRange {
		t.Fatalf("err = %v, want ErrInvertedRange", err)
	}
	if len(mappings) != 0 {
		t.Fatalf("inverted range produced %d reports, want 0", len(mappings))
	}
}

func TestInspectRangeMappedUnmapped(t *testing.T) {
	mem := emptyTables()
	mapPage(mem, 0x2000, 0x00100000, FlagPresent|FlagWritable|FlagUser)

	mappings, err := InspectRange(mem, testRoot, 0x1000, 0x3000)
	if err != nil {
		t.Fatalf("InspectRange: %v", err)
	}
	if len(mappings) != 3 {
		t.Fatalf("got %d reports, want 3", len(mappings))
	}

	want := []struct {
		va     uint32
		mapped bool
	}{
		{0x1000, false},
		{0x2000, true},
		{0x3000, false},
	}
	for i, w := range want {
		if mappings[i].VA != w.va || mappings[i].Mapped != w.mapped {
			t.Fatalf("report %d: got (%#x, %v), want (%#x, %v)",
				i, mappings[i].VA, mappings[i].Mapped, w.va, w.mapped)
		}
	}
	if m := mappings[1]; m.PTE.Frame() != 0x00100000 || !m.PTE.Writable() || !m.PTE.User() {
		t.Fatalf("mapped report: %#v", m)
	}
}

func TestInspectRangeNotPresentEntry(t *testing.T) {
	// A page-table entry that exists but has Present clear reports as
	// unmapped; its address bits are undefined and must be ignored.
	mem := emptyTables()
	mapPage(mem, 0x5000, 0x00700000, FlagWritable)

	mappings, err := InspectRange(mem, testRoot, 0x5000, 0x5fff)
	if err != nil {
		t.Fatalf("InspectRange: %v", err)
	}
	if len(mappings) != 1 || mappings[0].Mapped {
		t.Fatalf("non-present entry reported as mapped: %#v", mappings)
	}
}
