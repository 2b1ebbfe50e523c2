// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"sync"

	"github.com/pkg/errors"

	"github.com/sloppy-eniac/cpu/cache"
	"github.com/sloppy-eniac/cpu/cpu"
	"github.com/sloppy-eniac/cpu/internal"
	"github.com/sloppy-eniac/cpu/memory"
)

const (
	DEFAULT_MAX_STEPS = 10000 // Default bound for Run.
)

var _emulator_defines = map[string]string{
	"DEFAULT_MAX_STEPS": fmt.Sprintf("%v", DEFAULT_MAX_STEPS),
}

// Emulator is a CPU execution context shared by concurrent callers.
// Mutating operations are serialized; snapshot queries share access.
type Emulator struct {
	Verbose bool // If set, enables verbose logging.
	Strict  bool // If set, unknown opcodes stop execution with an error.

	mutex   sync.RWMutex
	cpu     *cpu.Cpu     // CPU simulation.
	program *cpu.Program // Listing of the loaded program.
}

// NewEmulator creates a new emulator with zeroed state.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		cpu:     cpu.NewCpu(),
		program: &cpu.Program{},
	}

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		emu.cpu.Defines(),
	)
}

// Init discards the program and zeroes the CPU, memory and cache.
func (emu *Emulator) Init() {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	emu.program = &cpu.Program{}
	emu.reset()
}

// reset zeroes the CPU, then reloads the program image.
func (emu *Emulator) reset() (err error) {
	emu.cpu.Verbose = emu.Verbose
	emu.cpu.Reset()

	err = emu.cpu.LoadProgram(emu.program.Binary())
	return
}

// Reset zeroes the CPU, memory and cache, and reloads the current program.
func (emu *Emulator) Reset() (err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	err = emu.reset()
	return
}

// LoadProgram resets the CPU and loads a binary image at address 0.
func (emu *Emulator) LoadProgram(image []byte) (err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	err = emu.load(&cpu.Program{Statements: []cpu.Statement{{Bytes: image}}})
	return
}

// load installs a program and resets the CPU. A rejected program leaves
// the previous one in place.
func (emu *Emulator) load(prog *cpu.Program) (err error) {
	if len(prog.Binary()) > emu.cpu.Memory.Size() {
		err = memory.ErrProgramTooLarge
		return
	}

	emu.program = prog
	err = emu.reset()
	return
}

// LoadImage reads a binary image and loads it.
func (emu *Emulator) LoadImage(r io.Reader) (err error) {
	image, err := io.ReadAll(r)
	if err != nil {
		err = errors.Wrap(err, "read image")
		return
	}

	err = emu.LoadProgram(image)
	if err != nil {
		err = errors.Wrapf(err, "image of %d bytes", len(image))
		return
	}

	return
}

// Assemble source text with the emulator defines, then load the program.
func (emu *Emulator) Assemble(r io.Reader) (prog *cpu.Program, err error) {
	asm := &cpu.Assembler{Verbose: emu.Verbose}
	for key, value := range emu.Defines() {
		asm.Predefine(key, value)
	}

	prog, err = asm.Parse(r)
	if err != nil {
		return
	}

	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	err = emu.load(prog)
	if err != nil {
		prog = nil
		return
	}

	return
}

// step executes one instruction.
func (emu *Emulator) step() (done bool, err error) {
	cp := emu.cpu
	cp.Verbose = emu.Verbose

	if cp.Halted() {
		done = true
		return
	}

	// Fetched once. Strict mode does not alter the cache statistics.
	word := cp.Fetch()
	if word == 0 {
		if emu.Verbose {
			log.Printf("emulator: %04x: halt", cp.Registers.Pc)
		}
		done = true
		return
	}

	if op := cpu.Decode(word).Op; emu.Strict && !op.Alu() && op != cpu.OP_MOV {
		pc := cp.Registers.Pc
		err = &ErrRuntime{LineNo: emu.lineNo(pc), Pc: pc, Err: ErrOpcodeInvalid}
		return
	}

	cp.Execute(word)
	return
}

// Step executes one instruction. Done is set if the CPU is halted.
func (emu *Emulator) Step() (done bool, err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	done, err = emu.step()
	return
}

// Run executes up to maxSteps instructions, stopping early when the CPU
// halts. The lock is held for the whole run.
func (emu *Emulator) Run(maxSteps int) (steps int, done bool, err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	for steps < maxSteps {
		done, err = emu.step()
		if done || err != nil {
			break
		}
		steps++
	}

	if emu.Verbose {
		log.Printf("emulator: ran %d steps, pc %04x", steps, emu.cpu.Registers.Pc)
	}

	return
}

// SetRegister sets general-purpose register r<index>.
func (emu *Emulator) SetRegister(index int, value uint8) (err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	if !emu.cpu.Registers.Valid(index) {
		err = ErrRegisterInvalid
		return
	}

	emu.cpu.Registers.Set(index, value)
	return
}

// WriteMemory writes data through the cache starting at address. Nothing
// is written if the range does not fit in memory.
func (emu *Emulator) WriteMemory(address uint32, data []byte) (err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	mem := emu.cpu.Memory
	if uint64(address)+uint64(len(data)) > uint64(mem.Size()) {
		err = ErrAddressRange
		return
	}

	mem.Verbose = emu.Verbose
	for n, value := range data {
		mem.Write(address+uint32(n), value)
	}

	return
}

// Flush writes back all dirty cache lines.
func (emu *Emulator) Flush() {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	emu.cpu.Memory.Verbose = emu.Verbose
	emu.cpu.Memory.Flush()
}

// Registers returns a snapshot of the register file.
func (emu *Emulator) Registers() cpu.RegisterFile {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.cpu.Registers
}

// Pc returns the program counter.
func (emu *Emulator) Pc() uint32 {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.cpu.Registers.Pc
}

// Ticks returns the instructions executed since the last reset.
func (emu *Emulator) Ticks() int {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.cpu.Ticks
}

// Memory returns a copy of the backing store. Dirty cache lines are not
// reflected until flushed.
func (emu *Emulator) Memory(start uint32, count int) []byte {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.cpu.Memory.Peek(start, count)
}

// CacheLines returns a snapshot of the cache lines.
func (emu *Emulator) CacheLines() []cache.Line {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.cpu.Memory.Cache().Lines()
}

// CacheStats returns the cache counters.
func (emu *Emulator) CacheStats() cache.Stats {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.cpu.Memory.Cache().Stats()
}

// Program returns the listing of the loaded program.
func (emu *Emulator) Program() *cpu.Program {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.program
}

// lineNo returns the listing line holding pc, or 0.
func (emu *Emulator) lineNo(pc uint32) int {
	dbg := emu.program.Debug(pc)
	if dbg.Statement == nil {
		return 0
	}

	return dbg.LineNo
}

// LineNo returns the listing line of the next instruction, or 0.
func (emu *Emulator) LineNo() int {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	return emu.lineNo(emu.cpu.Registers.Pc)
}

// String returns the CPU state and cache counters as a string.
func (emu *Emulator) String() (text string) {
	emu.mutex.RLock()
	defer emu.mutex.RUnlock()

	stats := emu.cpu.Memory.Cache().Stats()
	text = emu.cpu.String()
	text += fmt.Sprintf("% 5s: %d/%d hit/miss, %d evictions, %d writebacks\n", "cache",
		stats.Hits, stats.Misses, stats.Evictions, stats.Writebacks)
	return
}
