// Package machine bundles the state of one inspected kernel image: its
// memory views, saved register state, paging root and debug symbol
// index. The monitor commands hold a Machine for the duration of the
// session but only ever read through it.
package machine

import (
	"github.com/utotu/MIT-6.828/pkg/kdebug"
	"github.com/utotu/MIT-6.828/pkg/memory"
)

// KernBase is the virtual address the kernel is linked at; physical
// address = virtual address - KernBase for the kernel's own sections.
const KernBase = 0xF0000000

// Registers is the saved register state of the image, as far as the
// monitor needs it.
type Registers struct {
	// EIP is the program counter at the time the image was taken.
	EIP uint32
	// EBP is the frame pointer, the entry point of a stack unwind.
	EBP uint32
	// ESP is the stack pointer.
	ESP uint32
}

// Machine is the execution context the monitor commands run against.
type Machine struct {
	// Phys reads physical addresses of the image.
	Phys memory.Reader
	// Virt reads kernel virtual addresses.
	Virt memory.Reader
	// Regs is the saved register state.
	Regs Registers
	// PageDir is the physical address of the page-directory root.
	PageDir uint32
	// Symbols resolves addresses to debug information.
	Symbols *kdebug.Index
	// Path names the loaded image, for display only.
	Path string
}

// FramePointer returns the frame pointer of the context the image was
// taken in. This is the single register read the stack unwinder starts
// from.
func (m *Machine) FramePointer() uint32 {
	return m.Regs.EBP
}

// PC returns the saved program counter.
func (m *Machine) PC() uint32 {
	return m.Regs.EIP
}

// SpecialSymbols are the link-time layout symbols kerninfo reports, in
// display order.
var SpecialSymbols = []string{"_start", "entry", "etext", "edata", "end"}
