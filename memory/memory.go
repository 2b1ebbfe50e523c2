// Package memory provides the 64KiB byte-addressable main memory. All
// ordinary accesses go through a cache.Cache owned by the memory.
package memory

import (
	"fmt"
	"iter"
	"log"
	"maps"

	"github.com/sloppy-eniac/cpu/cache"
	"github.com/sloppy-eniac/cpu/internal"
)

const (
	SIZE = 65536 // Size of the backing store in bytes.
)

var _memory_defines = map[string]string{
	"MEMORY_SIZE": fmt.Sprintf("%v", SIZE),
}

// Memory is the backing store and the cache in front of it.
type Memory struct {
	Verbose bool // Set to enable verbose logging.

	data  [SIZE]byte
	cache cache.Cache
}

// NewMemory creates a zeroed memory.
func NewMemory() (mem *Memory) {
	mem = &Memory{}
	mem.Init()
	return
}

// Defines for the memory and its cache.
func (mem *Memory) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_memory_defines),
		mem.cache.Defines(),
	)
}

// Init zeroes the backing store and the cache.
func (mem *Memory) Init() {
	if mem.Verbose {
		log.Printf("memory: init")
	}

	clear(mem.data[:])
	mem.cache.Init()
}

// Size of the backing store.
func (mem *Memory) Size() int {
	return len(mem.data)
}

// Cache returns the cache in front of the backing store.
func (mem *Memory) Cache() *cache.Cache {
	return &mem.cache
}

// Read a byte through the cache. Out of range addresses read as zero.
func (mem *Memory) Read(address uint32) (value byte) {
	if address >= uint32(len(mem.data)) {
		return
	}

	mem.cache.Verbose = mem.Verbose
	value = mem.cache.Read(mem.data[:], uint16(address))
	return
}

// Write a byte through the cache. Out of range addresses are ignored.
func (mem *Memory) Write(address uint32, value byte) {
	if address >= uint32(len(mem.data)) {
		return
	}

	mem.cache.Verbose = mem.Verbose
	mem.cache.Write(mem.data[:], uint16(address), value)
}

// Store writes a byte straight into the backing store, bypassing the
// cache. A line already holding the address is not updated.
func (mem *Memory) Store(address uint32, value byte) {
	if address >= uint32(len(mem.data)) {
		return
	}

	if mem.Verbose {
		log.Printf("memory: store 0x%04x = 0x%02x", address, value)
	}

	mem.data[address] = value
}

// Flush writes back every dirty cache line and invalidates the cache.
func (mem *Memory) Flush() {
	mem.cache.Verbose = mem.Verbose
	mem.cache.Flush(mem.data[:])
}

// Load copies a program image to address 0 of the backing store.
// Images larger than memory are rejected without a partial copy.
func (mem *Memory) Load(program []byte) (err error) {
	if len(program) > len(mem.data) {
		err = ErrProgramTooLarge
		return
	}

	if mem.Verbose {
		log.Printf("memory: load %d bytes", len(program))
	}

	copy(mem.data[:], program)
	return
}

// Peek copies count bytes of the backing store starting at address,
// without touching the cache. The range is clipped to the memory size.
func (mem *Memory) Peek(address uint32, count int) (data []byte) {
	if address >= uint32(len(mem.data)) || count <= 0 {
		return
	}

	end := int(address) + count
	if end > len(mem.data) {
		end = len(mem.data)
	}

	data = make([]byte, end-int(address))
	copy(data, mem.data[address:end])
	return
}
