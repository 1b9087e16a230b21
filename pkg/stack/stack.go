// Package stack walks the chain of saved frame pointers on a kernel
// stack.
//
// The layout is the 32-bit x86 frame record convention: the word at fp
// holds the caller's saved frame pointer (0 marks the outermost frame),
// the word at fp+4 holds the return address, and the five words starting
// at fp+8 hold the caller-supplied argument slots.
package stack

import (
	"fmt"

	"github.com/utotu/MIT-6.828/pkg/memory"
)

// NumArgs is the number of argument words recovered per frame. They are
// read from fixed offsets whatever the real arity of the call site was;
// this is the contract with the code-generation side, and slots past the
// real argument count hold whatever happened to be on the stack.
const NumArgs = 5

// MaxFrames bounds the walk so that a corrupted or cyclic frame-pointer
// chain terminates instead of looping forever.
const MaxFrames = 64

// Frame is one record of the saved frame-pointer chain.
type Frame struct {
	// FP is the frame pointer the record was read at.
	FP uint32
	// Ret is the return address into the caller.
	Ret uint32
	// Args holds the five argument words below the return address.
	Args [NumArgs]uint32
}

// TruncatedError is returned when the chain is still going after
// MaxFrames frames.
type TruncatedError struct {
	FP uint32
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("frame chain still going after %d frames (fp %#08x), assuming corruption", MaxFrames, e.FP)
}

// Iterator walks the frame chain one record at a time.
type Iterator struct {
	mem   memory.Reader
	fp    uint32
	depth int
	frame Frame
	err   error
}

// New returns an iterator starting at fp, the frame pointer of the
// invoking context. The iterator only reads through mem.
func New(mem memory.Reader, fp uint32) *Iterator {
	return &Iterator{mem: mem, fp: fp}
}

// Next points the iterator to the next frame. It returns false when the
// chain reached its root or reading a record failed.
func (it *Iterator) Next() bool {
	if it.err != nil || it.fp == 0 {
		return false
	}
	if it.depth >= MaxFrames {
		it.err = &TruncatedError{FP: it.fp}
		return false
	}
	it.frame, it.err = readFrame(it.mem, it.fp)
	if it.err != nil {
		return false
	}
	// Advance to the saved previous frame pointer.
	it.fp, it.err = memory.ReadUint32(it.mem, it.frame.FP)
	if it.err != nil {
		return false
	}
	it.depth++
	return true
}

// Frame returns the frame the iterator is pointing at.
func (it *Iterator) Frame() Frame {
	return it.frame
}

// Err returns the error encountered during the walk, if any.
func (it *Iterator) Err() error {
	return it.err
}

func readFrame(mem memory.Reader, fp uint32) (Frame, error) {
	// One read covers the saved fp, the return address and all argument
	// slots.
	mem = memory.Cache(mem, fp, (2+NumArgs)*memory.WordSize)

	frame := Frame{FP: fp}
	ret, err := memory.ReadUint32(mem, fp+memory.WordSize)
	if err != nil {
		return Frame{}, err
	}
	frame.Ret = ret
	for i := 0; i < NumArgs; i++ {
		arg, err := memory.ReadUint32(mem, fp+uint32(2+i)*memory.WordSize)
		if err != nil {
			return Frame{}, err
		}
		frame.Args[i] = arg
	}
	return frame, nil
}

// Unwind walks the whole chain starting at fp and returns one Frame per
// record, outermost last.
func Unwind(mem memory.Reader, fp uint32) ([]Frame, error) {
	it := New(mem, fp)
	var frames []Frame
	for it.Next() {
		frames = append(frames, it.Frame())
	}
	if err := it.Err(); err != nil {
		return frames, err
	}
	return frames, nil
}
