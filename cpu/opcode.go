package cpu

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Opcode is the operation selected by the top 4 bits of an instruction.
type Opcode int

//go:generate go tool stringer -linecomment -type=Opcode
const (
	OP_ADD = Opcode(0) // add
	OP_SUB = Opcode(1) // sub
	OP_MUL = Opcode(2) // mul
	OP_DIV = Opcode(3) // div
	OP_MOV = Opcode(4) // mov
)

const (
	INSTRUCTION_SIZE = 2    // Bytes per instruction word.
	FORMAT_REG       = 0xf  // Register-register ALU format flag.
	STORE_MASK       = 0x3f // MOV store form address and value width.
)

// Alu returns true if the opcode is an ALU operation.
func (op Opcode) Alu() bool {
	return op >= OP_ADD && op <= OP_DIV
}

// Instruction is a decoded 16-bit instruction word.
//
//	ALU: [15:12] op, [11:8] A, [7:4] B, [3:0] format
//	MOV: [15:12] op, [11:8] field, [7:0] immediate
//	     [15:12] op, [11:6] value, [5:0] address (field not r1-r7)
//
// A MOV field of r1-r7 loads the immediate into that register. Any other
// field stores the 6-bit value to the 6-bit address.
type Instruction struct {
	Op        Opcode
	A         uint8 // ALU first source, or MOV field.
	B         uint8 // ALU second source.
	Format    uint8 // ALU format flag.
	Immediate uint8 // MOV immediate or store address.
}

// Decode an instruction word.
func Decode(word uint16) (ins Instruction) {
	ins.Op = Opcode(word >> 12)
	ins.A = uint8(word>>8) & 0xf
	if ins.Op == OP_MOV {
		ins.Immediate = uint8(word)
	} else {
		ins.B = uint8(word>>4) & 0xf
		ins.Format = uint8(word) & 0xf
	}
	return
}

// DecodeBytes decodes a big-endian program image. The image must hold a
// whole number of instruction words.
func DecodeBytes(program []byte) (list []Instruction, err error) {
	if len(program)%INSTRUCTION_SIZE != 0 {
		err = ErrInstructionLength
		return
	}

	list = make([]Instruction, 0, len(program)/INSTRUCTION_SIZE)
	for n := 0; n < len(program); n += INSTRUCTION_SIZE {
		list = append(list, Decode(binary.BigEndian.Uint16(program[n:])))
	}
	return
}

// MakeAlu creates a register-register ALU instruction.
func MakeAlu(op Opcode, a, b int) Instruction {
	return Instruction{Op: op, A: uint8(a) & 0xf, B: uint8(b) & 0xf, Format: FORMAT_REG}
}

// MakeMovImm creates a MOV loading value into register dest.
func MakeMovImm(dest int, value uint8) Instruction {
	return Instruction{Op: OP_MOV, A: uint8(dest) & 0xf, Immediate: value}
}

// MakeMovStore creates a MOV storing value at address. Both are
// truncated to 6 bits, and only values passing StoreValid encode as
// the store form.
func MakeMovStore(address, value uint8) Instruction {
	word := uint16(OP_MOV)<<12 | uint16(value&STORE_MASK)<<6 | uint16(address&STORE_MASK)
	return Decode(word)
}

// StoreValid returns true if value can be encoded by the MOV store form.
// Values 4-31 would place r1-r7 in the field.
func StoreValid(value uint8) bool {
	return value <= STORE_MASK && !validRegister(value>>2)
}

// Word encodes the instruction.
func (ins Instruction) Word() (word uint16) {
	word = uint16(ins.Op&0xf)<<12 | uint16(ins.A&0xf)<<8
	if ins.Op == OP_MOV {
		word |= uint16(ins.Immediate)
	} else {
		word |= uint16(ins.B&0xf)<<4 | uint16(ins.Format&0xf)
	}
	return
}

// Bytes encodes the instruction big-endian.
func (ins Instruction) Bytes() []byte {
	return binary.BigEndian.AppendUint16(nil, ins.Word())
}

// Store returns true for the MOV memory store form.
func (ins Instruction) Store() bool {
	return ins.Op == OP_MOV && (ins.A < 1 || ins.A > REGISTER_COUNT)
}

// StoreAddress returns the address written by the MOV store form.
func (ins Instruction) StoreAddress() uint8 {
	return ins.Immediate & STORE_MASK
}

// StoreValue returns the value written by the MOV store form.
func (ins Instruction) StoreValue() uint8 {
	return uint8((uint16(ins.A)<<8|uint16(ins.Immediate))>>6) & STORE_MASK
}

// validRegister is true for the assembler's r1-r7.
func validRegister(index uint8) bool {
	return index >= 1 && index <= REGISTER_COUNT
}

// String returns the assembly language form of the instruction. Words
// with no assembly form render as a .word directive.
func (ins Instruction) String() string {
	name := strings.ToUpper(ins.Op.String())

	switch {
	case ins.Op.Alu() && ins.Format == FORMAT_REG && validRegister(ins.A) && validRegister(ins.B):
		return fmt.Sprintf("%v R%d, R%d", name, ins.A, ins.B)
	case ins.Op == OP_MOV && !ins.Store():
		return fmt.Sprintf("%v R%d, %d", name, ins.A, ins.Immediate)
	case ins.Op == OP_MOV:
		return fmt.Sprintf("%v [%d], %d", name, ins.StoreAddress(), ins.StoreValue())
	}

	return fmt.Sprintf(".word 0x%04x", ins.Word())
}
