// Package cpu implements the processor core and assembler for the 8-bit
// teaching CPU.
//
// The CPU consists of a program counter, seven 8-bit general-purpose
// registers (r1-r7), carry and overflow flags, and a four operation ALU
// (add, sub, mul, div). Instructions are fixed 16-bit big-endian words read
// from memory.Memory, so every fetch passes through the data cache.
// ALU results accumulate into r7; MOV either loads an immediate into a
// register or stores a register straight into the backing store.
//
// The assembler translates a small assembly language into program images,
// supporting equates, labels, macros and compile-time expression
// evaluation.
package cpu
