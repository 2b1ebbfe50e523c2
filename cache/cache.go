// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cache

import (
	"fmt"
	"iter"
	"log"
	"maps"
)

var _cache_defines = map[string]string{
	"CACHE_LINES":     fmt.Sprintf("%v", LINE_COUNT),
	"CACHE_LINE_SIZE": fmt.Sprintf("%v", LINE_SIZE),
}

// Line is a single direct-mapped cache line.
type Line struct {
	Tag   uint16          // Tag of the resident block.
	Block [LINE_SIZE]byte // Copy of the resident block.
	Valid bool            // Block holds data loaded from the backing store.
	Dirty bool            // Block diverged from the backing store.
}

// Stats counts cache activity since the last Init.
type Stats struct {
	Reads      int
	Writes     int
	Hits       int
	Misses     int
	Evictions  int
	Writebacks int
}

// Cache is a 64 line, 4 byte block, direct-mapped write-back cache with
// write-allocate on miss. The backing store is passed to every access.
type Cache struct {
	Verbose bool // Set to enable verbose logging.

	line  [LINE_COUNT]Line
	stats Stats
}

// Defines for the cache
func (c *Cache) Defines() iter.Seq2[string, string] {
	return maps.All(_cache_defines)
}

// Init zeroes every line and the statistics.
func (c *Cache) Init() {
	clear(c.line[:])
	c.stats = Stats{}
}

// Line returns a copy of the line at index.
func (c *Cache) Line(index int) (line Line) {
	if index >= 0 && index < len(c.line) {
		line = c.line[index]
	}
	return
}

// Lines returns a copy of all lines.
func (c *Cache) Lines() (lines []Line) {
	lines = make([]Line, len(c.line))
	copy(lines, c.line[:])
	return
}

// All iterates over the lines by index.
func (c *Cache) All() iter.Seq2[int, Line] {
	return func(yield func(index int, line Line) bool) {
		for n, line := range c.line {
			if !yield(n, line) {
				return
			}
		}
	}
}

// Stats returns the access counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Read returns the byte at address, loading its block on a miss.
func (c *Cache) Read(backing []byte, address uint16) (value byte) {
	c.stats.Reads++

	addr := Decode(address)
	line := c.lookup(backing, addr)

	value = line.Block[addr.Offset]
	return
}

// Write stores a byte at address, allocating its block on a miss.
// The backing store is only updated when the line is later evicted or flushed.
func (c *Cache) Write(backing []byte, address uint16, value byte) {
	c.stats.Writes++

	addr := Decode(address)
	line := c.lookup(backing, addr)

	line.Block[addr.Offset] = value
	line.Dirty = true
}

// Flush writes back every dirty line, then invalidates the whole cache.
func (c *Cache) Flush(backing []byte) {
	if c.Verbose {
		log.Printf("cache: flush")
	}

	for n := range c.line {
		line := &c.line[n]
		if line.Valid && line.Dirty {
			c.writeBack(backing, n)
		}
		*line = Line{}
	}
}

// lookup returns the line holding addr, resolving a miss first.
func (c *Cache) lookup(backing []byte, addr Address) (line *Line) {
	line = &c.line[addr.Index]

	if line.Valid && line.Tag == addr.Tag {
		c.stats.Hits++
		return
	}

	c.stats.Misses++

	if line.Valid {
		c.stats.Evictions++
		if line.Dirty {
			c.writeBack(backing, int(addr.Index))
		}
	}

	if c.Verbose {
		log.Printf("cache: miss %v", addr)
	}

	base := addr.Base()
	if base+LINE_SIZE <= uint32(len(backing)) {
		copy(line.Block[:], backing[base:base+LINE_SIZE])
	} else {
		// Unmapped memory reads as zero.
		clear(line.Block[:])
	}

	line.Tag = addr.Tag
	line.Valid = true
	line.Dirty = false

	return
}

// writeBack copies the block of line index to the backing store.
// Blocks that would overrun the backing store are dropped.
func (c *Cache) writeBack(backing []byte, index int) {
	line := &c.line[index]

	resident := Address{
		Tag:    line.Tag,
		Index:  uint8(index),
		Offset: uint8(index % LINE_SIZE),
	}
	base := resident.Base()

	if base+LINE_SIZE > uint32(len(backing)) {
		if c.Verbose {
			log.Printf("cache: drop write-back %v", resident)
		}
		return
	}

	if c.Verbose {
		log.Printf("cache: write-back %v base:0x%04x", resident, base)
	}

	copy(backing[base:base+LINE_SIZE], line.Block[:])
	c.stats.Writebacks++
}
