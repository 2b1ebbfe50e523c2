package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func FuzzCpu(f *testing.F) {
	rands := rand.New(rand.NewSource(1))
	for op := range 16 {
		f.Add(uint16(op<<12)|uint16(rands.Uint32()&0xfff), uint64(rands.Int63()))
	}
	f.Add(uint16(0x1003), uint64(0))
	f.Add(uint16(0x4b0c), uint64(0xffffffffffffffff))

	f.Fuzz(func(t *testing.T, word uint16, seed uint64) {
		assert := assert.New(t)

		cpu := NewCpu()
		for n := 1; n <= REGISTER_COUNT; n++ {
			cpu.Registers.Set(n, uint8(seed>>(8*(n-1))))
		}
		cpu.Registers.Flags.Carry = seed&1 != 0
		cpu.Registers.Pc = 0x100
		cpu.Memory.Store(0x100, uint8(word>>8))
		cpu.Memory.Store(0x101, uint8(word))

		before := cpu.Registers
		backing := cpu.Memory.Peek(0, 0x100)

		executed := cpu.Step()
		if word == 0 {
			assert.False(executed)
			assert.Equal(before, cpu.Registers)
			return
		}

		assert.True(executed)
		assert.Equal(before.Pc+INSTRUCTION_SIZE, cpu.Registers.Pc)
		assert.Equal(1, cpu.Ticks)

		ins := Decode(word)
		after := cpu.Registers
		after.Pc = before.Pc

		expected := before
		switch {
		case ins.Op.Alu():
			result, ok := Alu(ins.Op, &expected.Flags, before.Get(int(ins.A)), before.Get(int(ins.B)))
			assert.True(ok)
			expected.Set(ACCUMULATOR, result)
		case ins.Op == OP_MOV && ins.Store():
			backing[ins.StoreAddress()] = ins.StoreValue()
		case ins.Op == OP_MOV:
			expected.Set(int(ins.A), ins.Immediate)
		}

		assert.Equal(expected, after, "%v", ins)
		assert.Equal(backing, cpu.Memory.Peek(0, 0x100), "%v", ins)
		assert.Equal(0, cpu.Memory.Cache().Stats().Writes)
	})
}
