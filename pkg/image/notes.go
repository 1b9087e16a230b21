package image

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io/ioutil"

	"github.com/utotu/MIT-6.828/pkg/logflags"
)

const ntPrstatus = 1

// Layout of the i386 elf_prstatus record: pr_reg starts at byte 72 and
// holds the user_regs_struct, 17 32-bit words.
const (
	prstatusRegsOff  = 72
	prstatusRegCount = 17
	regEBP           = 5
	regEIP           = 12
	regESP           = 15
)

// loadNotes scans the PT_NOTE segments of a core for an i386
// NT_PRSTATUS record and extracts the saved registers. Cores without
// one are still usable; backtrace then needs an operator-supplied frame
// pointer.
func (img *Image) loadNotes(f *elf.File) error {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		data, err := ioutil.ReadAll(prog.Open())
		if err != nil {
			return err
		}
		img.parseNotes(data)
	}
	if !img.HasRegs {
		logflags.ImageLogger().Debug("core has no usable NT_PRSTATUS note")
	}
	return nil
}

func (img *Image) parseNotes(data []byte) {
	for len(data) >= 12 {
		namesz := binary.LittleEndian.Uint32(data[0:4])
		descsz := binary.LittleEndian.Uint32(data[4:8])
		ntype := binary.LittleEndian.Uint32(data[8:12])
		data = data[12:]

		// Size fields come straight from the image: lengths are computed in
		// 64 bits so a corrupt header near the uint32 limit cannot wrap the
		// bounds check below.
		nameLen := align4(uint64(namesz))
		descLen := align4(uint64(descsz))
		if nameLen+descLen > uint64(len(data)) {
			return
		}
		name := string(bytes.TrimRight(data[:namesz], "\x00"))
		desc := data[nameLen : nameLen+uint64(descsz)]
		data = data[nameLen+descLen:]

		if ntype != ntPrstatus || img.HasRegs {
			continue
		}
		if len(desc) < prstatusRegsOff+prstatusRegCount*4 {
			logflags.ImageLogger().Debugf("skipping short NT_PRSTATUS note from %q", name)
			continue
		}
		regs := desc[prstatusRegsOff:]
		img.EBP = binary.LittleEndian.Uint32(regs[regEBP*4:])
		img.EIP = binary.LittleEndian.Uint32(regs[regEIP*4:])
		img.ESP = binary.LittleEndian.Uint32(regs[regESP*4:])
		img.HasRegs = true
	}
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
