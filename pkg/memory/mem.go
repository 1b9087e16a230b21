// Package memory provides read-only views of a machine's memory image.
package memory

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// WordSize is the size of a machine word of the inspected kernel. The
// monitor targets 32-bit x86 images.
const WordSize = 4

// Reader is like io.ReaderAt, but the offset is a 32-bit virtual or
// physical address of the inspected image. Implementations must not
// mutate the underlying image.
type Reader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint32) (n int, err error)
}

// UnreadableError is returned when an address range is not backed by
// the loaded image.
type UnreadableError struct {
	Addr uint32
	Size int
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("cannot read %d bytes at %#08x", e.Size, e.Addr)
}

// ReadUint32 reads one little-endian word at addr.
func ReadUint32(mem Reader, addr uint32) (uint32, error) {
	var buf [WordSize]byte
	if _, err := mem.ReadMemory(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

type segment struct {
	addr uint32
	data []byte
}

// Sparse is a Reader backed by a set of non-overlapping segments, the
// way ELF program headers describe an image. The zero value is an empty
// address space.
type Sparse struct {
	segs []segment
}

// Add registers data at addr. On overlap the earlier addition wins.
func (s *Sparse) Add(addr uint32, data []byte) {
	s.segs = append(s.segs, segment{addr: addr, data: data})
	sort.SliceStable(s.segs, func(i, j int) bool { return s.segs[i].addr < s.segs[j].addr })
}

// SetUint32 writes one little-endian word at addr, extending the address
// space if needed. It exists for image construction and synthetic test
// fixtures, not for the inspection paths, which only see a Reader.
func (s *Sparse) SetUint32(addr, val uint32) {
	for i := range s.segs {
		seg := &s.segs[i]
		if addr >= seg.addr && uint64(addr)+WordSize <= uint64(seg.addr)+uint64(len(seg.data)) {
			binary.LittleEndian.PutUint32(seg.data[addr-seg.addr:], val)
			return
		}
	}
	data := make([]byte, WordSize)
	binary.LittleEndian.PutUint32(data, val)
	s.Add(addr, data)
}

func (s *Sparse) ReadMemory(buf []byte, addr uint32) (int, error) {
	n := 0
	for n < len(buf) {
		seg := s.find(addr + uint32(n))
		if seg == nil {
			return n, &UnreadableError{Addr: addr + uint32(n), Size: len(buf) - n}
		}
		n += copy(buf[n:], seg.data[addr+uint32(n)-seg.addr:])
	}
	return n, nil
}

func (s *Sparse) find(addr uint32) *segment {
	i := sort.Search(len(s.segs), func(i int) bool {
		return uint64(s.segs[i].addr)+uint64(len(s.segs[i].data)) > uint64(addr)
	})
	if i >= len(s.segs) || addr < s.segs[i].addr {
		return nil
	}
	return &s.segs[i]
}
