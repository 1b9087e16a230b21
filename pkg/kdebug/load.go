package kdebug

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"

	"github.com/utotu/MIT-6.828/pkg/logflags"
)

// Load extracts the debug symbols of an ELF kernel image. DWARF
// subprogram entries are preferred for functions because they carry the
// declaration file and line; the ELF symbol table fills in everything
// DWARF does not describe, notably the linker layout markers (_start,
// etext, edata, end) that kerninfo reports.
func Load(f *elf.File) ([]Symbol, error) {
	var syms []Symbol
	if d, err := f.DWARF(); err == nil {
		syms, err = loadDwarf(d)
		if err != nil {
			logflags.SymbolsLogger().Warnf("ignoring malformed DWARF: %v", err)
			syms = nil
		}
	}

	tab, err := loadSymtab(f)
	if err != nil {
		if len(syms) == 0 {
			return nil, fmt.Errorf("no debug information in image: %v", err)
		}
		return syms, nil
	}

	seen := make(map[string]bool, len(syms))
	for i := range syms {
		seen[displayName(syms[i].Name)] = true
	}
	for _, s := range tab {
		if !seen[displayName(s.Name)] {
			seen[displayName(s.Name)] = true
			syms = append(syms, s)
		}
	}
	logflags.SymbolsLogger().Debugf("indexed %d symbols", len(syms))
	return syms, nil
}

func loadDwarf(d *dwarf.Data) ([]Symbol, error) {
	var syms []Symbol
	var files []*dwarf.LineFile

	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			files = nil
			if lr, err := d.LineReader(entry); err == nil && lr != nil {
				files = lr.Files()
			}
		case dwarf.TagSubprogram:
			sym, ok := subprogram(entry, files)
			if ok {
				syms = append(syms, sym)
			}
		}
	}
	return syms, nil
}

func subprogram(entry *dwarf.Entry, files []*dwarf.LineFile) (Symbol, bool) {
	name, ok := entry.Val(dwarf.AttrName).(string)
	if !ok {
		return Symbol{}, false
	}
	lowpc, ok := entry.Val(dwarf.AttrLowpc).(uint64)
	if !ok {
		// Declaration-only entry.
		return Symbol{}, false
	}

	sym := Symbol{Name: name, Addr: uint32(lowpc)}

	switch highpc := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		sym.Size = uint32(highpc - lowpc)
	case int64:
		// DWARF 4 encodes highpc as an offset from lowpc.
		sym.Size = uint32(highpc)
	}

	if line, ok := entry.Val(dwarf.AttrDeclLine).(int64); ok {
		sym.Line = int(line)
	}
	if fileno, ok := entry.Val(dwarf.AttrDeclFile).(int64); ok {
		if fileno > 0 && int(fileno) < len(files) && files[fileno] != nil {
			sym.File = files[fileno].Name
		}
	}
	return sym, true
}

// loadSymtab keeps function symbols plus the named non-function markers
// the monitor can still look up by name. Size-zero entries never resolve
// an address range but remain visible to lookup and completion.
func loadSymtab(f *elf.File) ([]Symbol, error) {
	elfsyms, err := f.Symbols()
	if err != nil {
		return nil, err
	}
	var syms []Symbol
	for _, s := range elfsyms {
		if s.Name == "" || elf.ST_TYPE(s.Info) == elf.STT_SECTION || elf.ST_TYPE(s.Info) == elf.STT_FILE {
			continue
		}
		syms = append(syms, Symbol{Name: s.Name, Addr: uint32(s.Value), Size: uint32(s.Size)})
	}
	return syms, nil
}
