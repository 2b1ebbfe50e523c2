package cache

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// checkLines verifies that no line is dirty while invalid.
func checkLines(t *testing.T, c *Cache) bool {
	for n, line := range c.All() {
		if line.Dirty && !line.Valid {
			t.Errorf("line %d dirty but invalid: %+v", n, line)
			return false
		}
	}
	return true
}

func FuzzCache(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x00, 0x0a, 0x2a, 0x01, 0x00, 0x0a, 0x00})
	f.Add([]byte{0x01, 0x00, 0x0a, 0x01, 0x01, 0x00, 0xca, 0x02, 0x02, 0, 0, 0})
	f.Add([]byte{0x01, 0xff, 0xff, 0x10, 0x00, 0xff, 0xff, 0x00, 0x02, 0, 0, 0})

	f.Fuzz(func(t *testing.T, ops []byte) {
		assert := assert.New(t)

		c := &Cache{}
		mem := make([]byte, memorySize)
		flushes := 0

		for len(ops) >= 4 {
			op := ops[0] % 3
			address := binary.BigEndian.Uint16(ops[1:3])
			value := ops[3]
			ops = ops[4:]

			switch op {
			case 0:
				c.Read(mem, address)
				assert.True(c.Line(int(Decode(address).Index)).Valid)
			case 1:
				c.Write(mem, address, value)
				line := c.Line(int(Decode(address).Index))
				assert.True(line.Dirty)
				assert.Equal(value, c.Read(mem, address))
			case 2:
				c.Flush(mem)
				flushes++
				assert.Equal(make([]Line, LINE_COUNT), c.Lines())
			}

			if !checkLines(t, c) {
				return
			}
		}

		stats := c.Stats()
		assert.Equal(stats.Reads+stats.Writes, stats.Hits+stats.Misses)
		assert.LessOrEqual(stats.Writebacks, stats.Evictions+LINE_COUNT*flushes)
	})
}

func TestCache_FlushDrainsDirtyLines(t *testing.T) {
	assert := assert.New(t)

	rands := rand.New(rand.NewSource(2))

	for round := range 64 {
		c := &Cache{}
		mem := make([]byte, memorySize)
		expected := map[uint16]byte{}
		blocks := map[uint32]bool{}

		for range 200 {
			address := uint16(rands.Uint32())
			base := Decode(address).Base()
			if blocks[base] {
				// One writer per block; lines sharing a block
				// each write back a full stale copy.
				continue
			}
			blocks[base] = true

			value := byte(rands.Uint32())
			c.Write(mem, address, value)
			expected[address] = value
		}

		c.Flush(mem)

		for address, value := range expected {
			assert.Equal(value, mem[address], "round %d address %#04x", round, address)
		}
		for n, line := range c.All() {
			assert.False(line.Valid, "line %d", n)
			assert.False(line.Dirty, "line %d", n)
		}
	}
}
