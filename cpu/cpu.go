// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"fmt"
	"iter"
	"log"
	"maps"

	"github.com/sloppy-eniac/cpu/internal"
	"github.com/sloppy-eniac/cpu/memory"
)

var _cpu_defines = map[string]string{
	"REGISTER_COUNT":   fmt.Sprintf("%v", REGISTER_COUNT),
	"ACCUMULATOR":      fmt.Sprintf("%v", ACCUMULATOR),
	"INSTRUCTION_SIZE": fmt.Sprintf("%v", INSTRUCTION_SIZE),
	"FORMAT_REG":       fmt.Sprintf("0x%x", FORMAT_REG),
}

// Cpu is the execution context: the register file and the memory it runs
// from.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Registers RegisterFile   // Program counter, registers and flags.
	Memory    *memory.Memory // Main memory, with its cache.

	Ticks int // Instructions executed.
}

// NewCpu creates a CPU with zeroed registers and memory.
func NewCpu() (cpu *Cpu) {
	cpu = &Cpu{
		Memory: memory.NewMemory(),
	}

	return
}

// Defines for the cpu and its memory.
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_cpu_defines),
		cpu.Memory.Defines(),
	)
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text = cpu.Registers.String()
	text += fmt.Sprintf("% 5s: %d\n", "ticks", cpu.Ticks)
	return
}

// Reset the CPU state.
// - Clears the registers, flags and program counter.
// - Zeros the memory and invalidates the cache.
// - Zeros the tick counter.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.Registers.Reset()
	cpu.Memory.Verbose = cpu.Verbose
	cpu.Memory.Init()
	cpu.Ticks = 0
}

// LoadProgram copies a program image to address 0 of memory. The cache is
// not consulted.
func (cpu *Cpu) LoadProgram(program []byte) (err error) {
	if cpu.Verbose {
		log.Printf("cpu: load %d bytes", len(program))
	}

	cpu.Memory.Verbose = cpu.Verbose
	err = cpu.Memory.Load(program)
	return
}

// Halted returns true once the program counter can no longer fetch a
// whole instruction.
func (cpu *Cpu) Halted() bool {
	return cpu.Registers.Pc >= uint32(cpu.Memory.Size()-1)
}

// Fetch reads the big-endian instruction word at the program counter
// through the cache. A halted CPU fetches zero.
func (cpu *Cpu) Fetch() (word uint16) {
	if cpu.Halted() {
		return
	}

	pc := cpu.Registers.Pc
	cpu.Memory.Verbose = cpu.Verbose
	word = uint16(cpu.Memory.Read(pc))<<8 | uint16(cpu.Memory.Read(pc+1))
	return
}

// Execute a single instruction word and advance the program counter.
// Unknown opcodes are ignored.
func (cpu *Cpu) Execute(word uint16) {
	ins := Decode(word)
	regs := &cpu.Registers

	if cpu.Verbose {
		log.Printf("cpu: %04x: %04x %v", regs.Pc, word, ins)
	}

	switch {
	case ins.Op.Alu():
		a := regs.Get(int(ins.A))
		b := regs.Get(int(ins.B))
		result, _ := Alu(ins.Op, &regs.Flags, a, b)
		regs.Set(ACCUMULATOR, result)
	case ins.Op == OP_MOV && ins.Store():
		// Stores go straight to the backing store.
		cpu.Memory.Store(uint32(ins.StoreAddress()), ins.StoreValue())
	case ins.Op == OP_MOV:
		regs.Set(int(ins.A), ins.Immediate)
	default:
		if cpu.Verbose {
			log.Printf("cpu: %04x: opcode %d ignored", regs.Pc, ins.Op)
		}
	}

	regs.Pc += INSTRUCTION_SIZE
	cpu.Ticks++
}

// Step fetches and executes one instruction. It returns false without
// executing anything if the CPU is halted or the fetched word is zero.
func (cpu *Cpu) Step() (executed bool) {
	if cpu.Halted() {
		return
	}

	word := cpu.Fetch()
	if word == 0 {
		if cpu.Verbose {
			log.Printf("cpu: %04x: halt", cpu.Registers.Pc)
		}
		return
	}

	cpu.Execute(word)
	executed = true
	return
}

// Run steps until maxSteps instructions have executed or the CPU halts.
// It returns the number of instructions executed.
func (cpu *Cpu) Run(maxSteps int) (steps int) {
	for steps < maxSteps {
		if !cpu.Step() {
			break
		}
		steps++
	}

	if cpu.Verbose {
		log.Printf("cpu: ran %d steps, pc %04x", steps, cpu.Registers.Pc)
	}

	return
}
