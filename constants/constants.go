package constants

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLinePadSize is the padding used to keep hot atomics on separate
// cache lines.
const CacheLinePadSize = unsafe.Sizeof(cpu.CacheLinePad{})

// WordSize is the size of a machine word. Channel elements up to this size
// qualify for the lock-free ring.
const WordSize = unsafe.Sizeof(uintptr(0))

// NextPowerOfTwo rounds n up to a power of two, with a minimum of 1.
func NextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
