// Package kdebug resolves kernel addresses to source-level debug
// information.
package kdebug

import (
	"sort"
	"strings"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"
)

const resolveCacheSize = 256

// Symbol associates the address range [Addr, Addr+Size) with a function
// and its declaration site.
type Symbol struct {
	Name string
	Addr uint32
	Size uint32
	File string
	Line int
}

// Info describes the code location of one resolved address.
type Info struct {
	// File and Line of the symbol covering the address.
	File string
	Line int
	// FnName is the recorded function name. Stabs-style records carry a
	// ":type-descriptor" suffix after the identifier, so the display name
	// is FnName[:FnNameLen].
	FnName    string
	FnNameLen int
	// FnAddr is the first address of the function; the displayed offset
	// of a resolved address pc is pc - FnAddr.
	FnAddr uint32
}

// Index is a read-only debug symbol index. Lookups never fail hard: an
// address no entry covers resolves to "not found".
type Index struct {
	syms  []Symbol // sorted by Addr
	names *trie.Trie
	cache *lru.Cache
}

// NewIndex builds an index over syms.
func NewIndex(syms []Symbol) *Index {
	sorted := make([]Symbol, len(syms))
	copy(sorted, syms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	names := trie.New()
	for i := range sorted {
		names.Add(displayName(sorted[i].Name), sorted[i])
	}

	// lru.New only fails for a non-positive size.
	cache, _ := lru.New(resolveCacheSize)

	return &Index{syms: sorted, names: names, cache: cache}
}

// Resolve finds the symbol covering pc. The second return value reports
// whether any entry covers it.
func (idx *Index) Resolve(pc uint32) (Info, bool) {
	if v, ok := idx.cache.Get(pc); ok {
		info, found := v.(Info)
		return info, found
	}
	info, found := idx.resolve(pc)
	if found {
		idx.cache.Add(pc, info)
	} else {
		idx.cache.Add(pc, nil)
	}
	return info, found
}

func (idx *Index) resolve(pc uint32) (Info, bool) {
	i := sort.Search(len(idx.syms), func(i int) bool { return idx.syms[i].Addr > pc })
	if i == 0 {
		return Info{}, false
	}
	sym := idx.syms[i-1]
	if uint64(pc) >= uint64(sym.Addr)+uint64(sym.Size) {
		return Info{}, false
	}
	return Info{
		File:      sym.File,
		Line:      sym.Line,
		FnName:    sym.Name,
		FnNameLen: nameLen(sym.Name),
		FnAddr:    sym.Addr,
	}, true
}

// Lookup finds a symbol by its display name.
func (idx *Index) Lookup(name string) (Symbol, bool) {
	node, ok := idx.names.Find(name)
	if !ok {
		return Symbol{}, false
	}
	sym, ok := node.Meta().(Symbol)
	return sym, ok
}

// Complete returns the display names of all symbols starting with
// prefix, sorted.
func (idx *Index) Complete(prefix string) []string {
	matches := idx.names.PrefixSearch(prefix)
	sort.Strings(matches)
	return matches
}

// Len returns the number of indexed symbols.
func (idx *Index) Len() int { return len(idx.syms) }

// nameLen returns the length of the identifier part of a recorded name.
// Symbol names are not necessarily terminated at the identifier.
func nameLen(name string) int {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return i
	}
	return len(name)
}

func displayName(name string) string {
	return name[:nameLen(name)]
}
