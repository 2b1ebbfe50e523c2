// Package cache models the direct-mapped write-back cache that sits between
// the CPU and its backing memory.
//
// Each of the 64 lines holds a 4 byte block. A read or write miss first
// writes back the resident block if it is dirty, then loads the block for the
// new address (write-allocate). Blocks that would run past the end of the
// backing store load as zeros and are never written back.
package cache
