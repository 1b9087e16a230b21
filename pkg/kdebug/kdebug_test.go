package kdebug

import (
	"reflect"
	"testing"
)

func testIndex() *Index {
	return NewIndex([]Symbol{
		{Name: "monitor:F(0,25)", Addr: 0xf0100800, Size: 0x100, File: "kern/monitor.c", Line: 178},
		{Name: "runcmd:f(0,1)", Addr: 0xf0100600, Size: 0x200, File: "kern/monitor.c", Line: 139},
		{Name: "i386_init", Addr: 0xf0100040, Size: 0x80, File: "kern/init.c", Line: 24},
		{Name: "end", Addr: 0xf0117950}, // layout marker, size 0
	})
}

func TestIndexLen(t *testing.T) {
	if got := testIndex().Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4", got)
	}
	if got := NewIndex(nil).Len(); got != 0 {
		t.Fatalf("empty index Len() = %d, want 0", got)
	}
}

func TestResolve(t *testing.T) {
	idx := testIndex()

	tests := []struct {
		name  string
		pc    uint32
		found bool
		fn    string
		addr  uint32
	}{
		{"function entry", 0xf0100800, true, "monitor", 0xf0100800},
		{"inside function", 0xf0100823, true, "monitor", 0xf0100800},
		{"last byte", 0xf01008ff, true, "monitor", 0xf0100800},
		{"one past the end", 0xf0100900, false, "", 0},
		{"below all symbols", 0xf0000000, false, "", 0},
		{"between functions", 0xf01000f0, false, "", 0},
		{"other function", 0xf0100700, true, "runcmd", 0xf0100600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, found := idx.Resolve(tt.pc)
			if found != tt.found {
				t.Fatalf("Resolve(%#x) found = %v, want %v", tt.pc, found, tt.found)
			}
			if !found {
				return
			}
			if got := info.FnName[:info.FnNameLen]; got != tt.fn {
				t.Fatalf("Resolve(%#x) name = %q, want %q", tt.pc, got, tt.fn)
			}
			if info.FnAddr != tt.addr {
				t.Fatalf("Resolve(%#x) fn addr = %#x, want %#x", tt.pc, info.FnAddr, tt.addr)
			}
		})
	}
}

func TestResolveOffset(t *testing.T) {
	idx := testIndex()
	pc := uint32(0xf0100823)
	info, found := idx.Resolve(pc)
	if !found {
		t.Fatalf("Resolve(%#x): not found", pc)
	}
	if off := pc - info.FnAddr; off != 0x23 {
		t.Fatalf("offset = %#x, want 0x23", off)
	}
}

func TestResolveCached(t *testing.T) {
	idx := testIndex()
	first, found1 := idx.Resolve(0xf0100823)
	second, found2 := idx.Resolve(0xf0100823)
	if !found1 || !found2 || !reflect.DeepEqual(first, second) {
		t.Fatalf("cached resolution differs: %#v vs %#v", first, second)
	}
	// Misses are cached too and must stay misses.
	if _, found := idx.Resolve(0xf0000000); found {
		t.Fatal("miss resolved on first try")
	}
	if _, found := idx.Resolve(0xf0000000); found {
		t.Fatal("miss resolved after caching")
	}
}

func TestNameLen(t *testing.T) {
	idx := testIndex()
	info, found := idx.Resolve(0xf0100700)
	if !found {
		t.Fatal("Resolve: not found")
	}
	// Stabs-style names carry a type descriptor after the identifier;
	// only the identifier is displayed.
	if info.FnName != "runcmd:f(0,1)" || info.FnNameLen != len("runcmd") {
		t.Fatalf("name = %q len = %d", info.FnName, info.FnNameLen)
	}
}

func TestLookup(t *testing.T) {
	idx := testIndex()
	sym, ok := idx.Lookup("monitor")
	if !ok || sym.Addr != 0xf0100800 {
		t.Fatalf("Lookup(monitor) = %#v, %v", sym, ok)
	}
	if _, ok := idx.Lookup("nonexistent"); ok {
		t.Fatal("Lookup found a symbol that does not exist")
	}
	// Zero-size layout markers are visible to name lookup even though
	// they never resolve an address.
	if sym, ok := idx.Lookup("end"); !ok || sym.Addr != 0xf0117950 {
		t.Fatalf("Lookup(end) = %#v, %v", sym, ok)
	}
	if _, found := idx.Resolve(0xf0117950); found {
		t.Fatal("zero-size symbol resolved an address")
	}
}

func TestComplete(t *testing.T) {
	idx := testIndex()
	got := idx.Complete("r")
	want := []string{"runcmd"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Complete(r) = %#v, want %#v", got, want)
	}
	if got := idx.Complete("zzz"); len(got) != 0 {
		t.Fatalf("Complete(zzz) = %#v, want none", got)
	}
}
