package cache

import (
	"fmt"
)

const (
	LINE_COUNT = 64                     // Number of direct-mapped lines.
	LINE_SIZE  = 4                      // Bytes per cache block.
	CAPACITY   = LINE_COUNT * LINE_SIZE // Total block storage in bytes.
)

// Address is a 16-bit address split into its cache coordinates.
type Address struct {
	Tag    uint16 // Identifies the memory block resident in a line.
	Index  uint8  // Line selected by the address.
	Offset uint8  // Byte within the line's block.
}

// Decode splits an address into tag, index and offset.
//
// The index and offset are both taken from the low bits of the address, so
// the four bytes of an aligned block land in four different lines. Two
// addresses share a line iff their Index matches, and share a resident
// block iff their Tag matches as well.
func Decode(address uint16) Address {
	return Address{
		Tag:    address / LINE_COUNT,
		Index:  uint8(address % LINE_COUNT),
		Offset: uint8(address % LINE_SIZE),
	}
}

// Base returns the aligned start of the block containing the address.
func (a Address) Base() uint32 {
	return a.Address() - uint32(a.Offset)
}

// Address reassembles the original address.
func (a Address) Address() uint32 {
	return uint32(a.Tag)*LINE_COUNT + uint32(a.Index)
}

func (a Address) String() string {
	return fmt.Sprintf("tag:0x%03x index:%d offset:%d", a.Tag, a.Index, a.Offset)
}
