package machine

import (
	"fmt"

	"github.com/utotu/MIT-6.828/pkg/memory"
	"github.com/utotu/MIT-6.828/pkg/pagetable"
)

type virtualMemory struct {
	phys memory.Reader
	root uint32
}

// NewVirtualMemory returns a Reader over kernel virtual addresses that
// translates through the page directory rooted at root. It is used for
// images that only carry a physical RAM snapshot. Translation is a
// read-only page-table walk per page touched.
func NewVirtualMemory(phys memory.Reader, root uint32) memory.Reader {
	return &virtualMemory{phys: phys, root: root}
}

func (v *virtualMemory) ReadMemory(buf []byte, addr uint32) (int, error) {
	n := 0
	for n < len(buf) {
		va := addr + uint32(n)
		pte, ok, err := pagetable.Walk(v.phys, v.root, va)
		if err != nil {
			return n, err
		}
		if !ok || !pte.Present() {
			return n, fmt.Errorf("virtual address %#08x is not mapped", va)
		}
		off := va & (pagetable.PageSize - 1)
		chunk := pagetable.PageSize - int(off)
		if chunk > len(buf)-n {
			chunk = len(buf) - n
		}
		rn, err := v.phys.ReadMemory(buf[n:n+chunk], pte.Frame()+off)
		n += rn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
