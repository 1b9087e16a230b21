// Package image loads kernel memory images for inspection. Two kinds of
// input are understood: an ELF core (a RAM snapshot, segments keyed by
// physical address, registers in NT_PRSTATUS notes) and a kernel
// executable (segments keyed by both virtual and load address, debug
// symbols in DWARF or the ELF symbol table).
package image

import (
	"debug/elf"
	"fmt"
	"io/ioutil"

	"github.com/utotu/MIT-6.828/pkg/kdebug"
	"github.com/utotu/MIT-6.828/pkg/logflags"
	"github.com/utotu/MIT-6.828/pkg/memory"
)

// Image is the raw content of a loaded memory image.
type Image struct {
	Path string

	// Phys and Virt are the two address-space views of the image.
	Phys *memory.Sparse
	Virt *memory.Sparse

	// Register state from core notes, valid when HasRegs is set.
	EIP, EBP, ESP uint32
	HasRegs       bool

	// Symbols from the kernel's debug information.
	Symbols []kdebug.Symbol
}

// Open loads the ELF image at path.
func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	defer f.Close()

	img := &Image{
		Path: path,
		Phys: &memory.Sparse{},
		Virt: &memory.Sparse{},
	}
	if err := img.loadSegments(f); err != nil {
		return nil, err
	}

	if f.Type == elf.ET_CORE {
		if err := img.loadNotes(f); err != nil {
			return nil, err
		}
		return img, nil
	}

	img.Symbols, err = kdebug.Load(f)
	if err != nil {
		logflags.ImageLogger().Warnf("%s: %v", path, err)
	}
	return img, nil
}

// LoadKernel merges the symbols and loadable segments of a kernel
// executable into an image opened from a core. It lets an operator
// inspect a raw RAM dump with full symbolization.
func (img *Image) LoadKernel(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}
	defer f.Close()

	if err := img.loadSegments(f); err != nil {
		return err
	}
	syms, err := kdebug.Load(f)
	if err != nil {
		return err
	}
	img.Symbols = append(img.Symbols, syms...)
	logflags.ImageLogger().Debugf("loaded %d symbols from %s", len(syms), path)
	return nil
}

func (img *Image) loadSegments(f *elf.File) error {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		data, err := ioutil.ReadAll(prog.Open())
		if err != nil {
			return fmt.Errorf("reading segment at %#x: %v", prog.Vaddr, err)
		}
		if logflags.Image() {
			logflags.ImageLogger().Debugf("segment vaddr %#08x paddr %#08x size %#x", prog.Vaddr, prog.Paddr, len(data))
		}
		// Cores key their segments by the physical location of the RAM;
		// executables carry both the link (virtual) and load (physical)
		// address of each section.
		if f.Type == elf.ET_CORE {
			img.Phys.Add(uint32(prog.Paddr), data)
			continue
		}
		img.Virt.Add(uint32(prog.Vaddr), data)
		if prog.Paddr != prog.Vaddr {
			img.Phys.Add(uint32(prog.Paddr), data)
		}
	}
	return nil
}
