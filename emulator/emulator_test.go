package emulator

import (
	"bytes"
	"errors"
	"maps"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"github.com/sloppy-eniac/cpu/cache"
	"github.com/sloppy-eniac/cpu/cpu"
	"github.com/sloppy-eniac/cpu/memory"
)

func TestEmulator(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	assert.False(emu.Verbose)
	assert.Equal(cpu.RegisterFile{}, emu.Registers())
	assert.Equal(0, emu.Ticks())
	assert.Equal(make([]cache.Line, cache.LINE_COUNT), emu.CacheLines())
	assert.Empty(emu.Program().Statements)
}

func doAssemble(t *testing.T, emu *Emulator, program ...string) *cpu.Program {
	prog, err := emu.Assemble(strings.NewReader(strings.Join(program, "\n")))
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

func TestEmulator_Assemble(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	prog := doAssemble(t, emu,
		"mov r1, 200",
		"mov r2, 100",
		"add r1, r2",
		"mov [$(CACHE_LINES - 1)], $(CACHE_LINES // 2)",
		"mov r6, ACCUMULATOR",
	)

	assert.Equal(prog, emu.Program())
	assert.Equal(prog.Binary(), emu.Memory(0, len(prog.Binary())))

	for n, line := range []int{1, 2, 3, 4, 5} {
		assert.Equal(line, emu.LineNo())
		done, err := emu.Step()
		assert.NoError(err)
		assert.False(done, "step %d", n)
	}
	assert.Equal(0, emu.LineNo())

	done, err := emu.Step()
	assert.NoError(err)
	assert.True(done)

	regs := emu.Registers()
	assert.Equal(uint8(44), regs.Get(7))
	assert.Equal(uint8(7), regs.Get(6))
	assert.True(regs.Flags.Carry)
	assert.Equal(uint32(10), emu.Pc())
	assert.Equal(5, emu.Ticks())
	assert.Equal([]byte{32}, emu.Memory(63, 1))
}

func TestEmulator_AssembleError(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	prog := doAssemble(t, emu, "mov r1, 1")

	_, err := emu.Assemble(strings.NewReader("mov r9, 1"))
	assert.ErrorIs(err, cpu.ErrRegisterInvalid)

	// The previous program is untouched.
	assert.Equal(prog, emu.Program())

	_, err = emu.Assemble(strings.NewReader(strings.Repeat(".byte 0 0 0 0\n", memory.SIZE/4+1)))
	assert.ErrorIs(err, memory.ErrProgramTooLarge)
	assert.Equal(prog, emu.Program())
}

func TestEmulator_Run(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(t, emu,
		"mov r1, 1",
		"mov r2, 2",
		"add r1, r2",
		"add r7, r7",
	)

	steps, done, err := emu.Run(2)
	assert.NoError(err)
	assert.False(done)
	assert.Equal(2, steps)

	steps, done, err = emu.Run(DEFAULT_MAX_STEPS)
	assert.NoError(err)
	assert.True(done)
	assert.Equal(2, steps)
	assert.Equal(uint8(6), emu.Registers().Get(7))

	// Reset reloads the program.
	assert.NoError(emu.Reset())
	assert.Equal(cpu.RegisterFile{}, emu.Registers())
	steps, _, _ = emu.Run(DEFAULT_MAX_STEPS)
	assert.Equal(4, steps)
	assert.Equal(uint8(6), emu.Registers().Get(7))

	// Init discards it.
	emu.Init()
	steps, done, _ = emu.Run(DEFAULT_MAX_STEPS)
	assert.Equal(0, steps)
	assert.True(done)
	assert.Empty(emu.Program().Statements)
}

func TestEmulator_Strict(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(t, emu,
		"mov r1, 1",
		".word 0x5123",
		"mov r2, 2",
	)

	steps, done, err := emu.Run(10)
	assert.NoError(err)
	assert.True(done)
	assert.Equal(3, steps)

	emu.Strict = true
	assert.NoError(emu.Reset())
	steps, done, err = emu.Run(10)
	assert.Equal(1, steps)
	assert.False(done)
	assert.ErrorIs(err, ErrOpcodeInvalid)

	var runtime *ErrRuntime
	if assert.True(errors.As(err, &runtime)) {
		assert.Equal(2, runtime.LineNo)
		assert.Equal(uint32(2), runtime.Pc)
	}
	assert.Equal(uint32(2), emu.Pc())
}

func TestEmulator_StrictCacheStats(t *testing.T) {
	assert := assert.New(t)

	source := []string{
		"mov r1, 1",
		"add r1, r1",
		"mov [63], 2",
	}

	stats := map[bool]cache.Stats{}
	for _, strict := range []bool{false, true} {
		emu := NewEmulator()
		emu.Strict = strict
		doAssemble(t, emu, source...)

		steps, done, err := emu.Run(10)
		assert.NoError(err)
		assert.True(done)
		assert.Equal(3, steps)
		stats[strict] = emu.CacheStats()
	}

	// Three instructions and the halting zero word, two reads each.
	assert.Equal(8, stats[false].Reads)
	assert.Equal(stats[false], stats[true])
}

func TestEmulator_LoadImage(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	err := emu.LoadImage(bytes.NewReader([]byte{0x10, 0x03}))
	assert.NoError(err)
	assert.NoError(emu.SetRegister(7, 0x55))

	done, err := emu.Step()
	assert.NoError(err)
	assert.False(done)
	assert.Equal(uint32(2), emu.Pc())
	assert.Equal(uint8(0), emu.Registers().Get(7))

	err = emu.LoadImage(bytes.NewReader(make([]byte, memory.SIZE+1)))
	assert.ErrorIs(err, memory.ErrProgramTooLarge)
	assert.Contains(err.Error(), "image of")

	err = emu.LoadImage(iotest.ErrReader(errors.New("boom")))
	assert.ErrorContains(err, "read image")
}

func TestEmulator_SetRegister(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	assert.NoError(emu.SetRegister(1, 9))
	assert.Equal(uint8(9), emu.Registers().Get(1))

	assert.ErrorIs(emu.SetRegister(0, 1), ErrRegisterInvalid)
	assert.ErrorIs(emu.SetRegister(8, 1), ErrRegisterInvalid)
	assert.Equal(uint32(0), emu.Pc())
}

func TestEmulator_WriteMemory(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	assert.NoError(emu.WriteMemory(0x100, []byte{1}))
	assert.NoError(emu.WriteMemory(0x204, []byte{2}))
	assert.NoError(emu.WriteMemory(0x308, []byte{3}))
	// Write-back: memory sees nothing until the flush.
	assert.Equal([]byte{0}, emu.Memory(0x204, 1))
	assert.Equal(3, emu.CacheStats().Writes)

	emu.Flush()
	assert.Equal([]byte{1}, emu.Memory(0x100, 1))
	assert.Equal([]byte{2}, emu.Memory(0x204, 1))
	assert.Equal([]byte{3}, emu.Memory(0x308, 1))
	assert.Equal(3, emu.CacheStats().Writebacks)
	for n, line := range emu.CacheLines() {
		assert.False(line.Valid, "line %d", n)
	}

	assert.ErrorIs(emu.WriteMemory(memory.SIZE-1, []byte{1, 2}), ErrAddressRange)
	assert.NoError(emu.WriteMemory(memory.SIZE-1, []byte{7}))
	assert.Nil(emu.Memory(memory.SIZE, 1))
}

func TestEmulator_String(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(t, emu, "mov r1, 1")
	emu.Run(1)

	text := emu.String()
	assert.Contains(text, "   r1: 01 (1)\n")
	assert.Contains(text, "ticks: 1\n")
	assert.Contains(text, "cache: 0/2 hit/miss, 0 evictions, 0 writebacks\n")
}

func TestEmulator_Defines(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	defines := maps.Collect(emu.Defines())

	assert.Equal("10000", defines["DEFAULT_MAX_STEPS"])
	assert.Equal("7", defines["ACCUMULATOR"])
	assert.Equal("65536", defines["MEMORY_SIZE"])
	assert.Equal("4", defines["CACHE_LINE_SIZE"])
}

func TestEmulator_Concurrent(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	var source []string
	for range 100 {
		source = append(source, "mov r1, 1", "add r7, r1", "mov r2, 2")
	}
	doAssemble(t, emu, source...)

	var group errgroup.Group

	group.Go(func() error {
		for {
			_, done, err := emu.Run(7)
			if err != nil || done {
				return err
			}
		}
	})

	for range 4 {
		group.Go(func() error {
			for range 200 {
				regs := emu.Registers()
				// Every third instruction is an add.
				executed := int(regs.Pc) / cpu.INSTRUCTION_SIZE
				if int(regs.Get(7)) != (executed+1)/3 {
					return errors.New(regs.String())
				}
				emu.CacheStats()
				emu.Memory(0, 16)
				_ = emu.String()
			}
			return nil
		})
	}

	assert.NoError(group.Wait())
	assert.Equal(uint8(100), emu.Registers().Get(7))
	assert.Equal(300, emu.Ticks())
}
