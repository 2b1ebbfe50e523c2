package cpu

import (
	"encoding/binary"
	"fmt"
	"iter"
	"strings"
)

// Statement is a line of assembled source with the bytes it generated.
type Statement struct {
	LineNo    int      // Source line number.
	Pc        int      // Address of the first generated byte.
	Words     []string // Source words, after substitution.
	Bytes     []byte   // Generated bytes.
	LinkLabel string   // Label linked into the last byte, if any.
}

// Program is an assembled program listing.
type Program struct {
	Statements []Statement
}

// Debug locates a program address in the listing.
type Debug struct {
	*Statement
	Index int // Byte offset of the address within the statement.
}

// Debug returns the statement holding the byte at pc. The statement is nil
// if no statement generated that address.
func (prog *Program) Debug(pc uint32) (dbg Debug) {
	for n, st := range prog.Statements {
		if pc >= uint32(st.Pc) && pc < uint32(st.Pc+len(st.Bytes)) {
			dbg = Debug{
				Statement: &prog.Statements[n],
				Index:     int(pc - uint32(st.Pc)),
			}
			break
		}
	}

	return
}

// Binary returns the program image, loadable at address 0.
func (prog *Program) Binary() (bin []byte) {
	for _, st := range prog.Statements {
		bin = append(bin, st.Bytes...)
	}

	return
}

// Instructions decodes the program image as instruction words. A trailing
// odd byte is not decoded.
func (prog *Program) Instructions() iter.Seq2[uint32, Instruction] {
	return func(yield func(pc uint32, ins Instruction) bool) {
		bin := prog.Binary()
		for pc := 0; pc+INSTRUCTION_SIZE <= len(bin); pc += INSTRUCTION_SIZE {
			if !yield(uint32(pc), Decode(binary.BigEndian.Uint16(bin[pc:]))) {
				return
			}
		}
	}
}

// String returns the program listing.
func (prog *Program) String() (text string) {
	for _, st := range prog.Statements {
		text += fmt.Sprintf("%04x: %-12s %5d  %v\n", st.Pc, fmt.Sprintf("% x", st.Bytes), st.LineNo, strings.Join(st.Words, " "))
	}

	return
}
