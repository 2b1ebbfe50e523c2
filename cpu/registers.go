package cpu

import (
	"fmt"
)

const (
	REGISTER_COUNT = 7 // General-purpose registers r1-r7.
	ACCUMULATOR    = 7 // Register receiving ALU results.
)

// Flags are the ALU status flags.
type Flags struct {
	Carry    bool // Unsigned wrap (add) or borrow (sub).
	Overflow bool // Signed result out of range, or division by zero.
}

// RegisterFile is the program counter, the general-purpose registers and
// the status flags.
type RegisterFile struct {
	Pc       uint32                // Program counter.
	Register [REGISTER_COUNT]uint8 // r1-r7, stored from index 0.
	Flags    Flags                 // Status flags.
}

// Valid returns true if index names a general-purpose register.
// Index 0 is the program counter slot and is not addressable.
func (rf RegisterFile) Valid(index int) bool {
	return index >= 1 && index <= REGISTER_COUNT
}

// Get returns register r<index>, or 0 for an invalid index.
func (rf RegisterFile) Get(index int) (value uint8) {
	if rf.Valid(index) {
		value = rf.Register[index-1]
	}
	return
}

// Set register r<index>. Invalid indexes are ignored.
func (rf *RegisterFile) Set(index int, value uint8) {
	if rf.Valid(index) {
		rf.Register[index-1] = value
	}
}

// Reset zeroes the program counter, registers and flags.
func (rf *RegisterFile) Reset() {
	rf.Pc = 0
	clear(rf.Register[:])
	rf.Flags = Flags{}
}

// String returns the register state as a string.
func (rf RegisterFile) String() (text string) {
	text += fmt.Sprintf("% 5s: %04X\n", "pc", rf.Pc)
	for n := range REGISTER_COUNT {
		val := rf.Register[n]
		text += fmt.Sprintf("% 5s: %02X (%d)\n", fmt.Sprintf("r%d", n+1), val, int8(val))
	}

	flags := ""
	for _, flag := range []struct {
		name string
		set  bool
	}{
		{"cf", rf.Flags.Carry},
		{"of", rf.Flags.Overflow},
	} {
		if flag.set {
			flags += flag.name + " "
		} else {
			flags += "-- "
		}
	}
	text += fmt.Sprintf("% 5s: %v\n", "flags", flags[:len(flags)-1])

	return
}
