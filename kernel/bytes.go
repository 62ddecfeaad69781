package kernel

import "unsafe"

// overlay returns a []byte view of the size bytes starting at addr without
// copying. Callers must ensure that [addr, addr+size) is backed by
// committed, readable/writable memory.
func overlay(addr Address, size Size) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), int(size))
}

// Fill sets size bytes starting at addr to value, adapted from
// gopheros/kernel.Memset: rather than looping byte by byte it doubles the
// filled prefix on each pass so large fills take O(log size) copies.
func Fill(addr Address, size Size, value byte) {
	if size == 0 {
		return
	}
	target := overlay(addr, size)
	target[0] = value
	for i := Size(1); i < size; i *= 2 {
		copy(target[i:], target[:i])
	}
}

// Copy copies size bytes from src to dst. The two ranges must not overlap;
// use Move when they might.
func Copy(dst, src Address, size Size) {
	if size == 0 {
		return
	}
	copy(overlay(dst, size), overlay(src, size))
}

// Move copies size bytes from src to dst, even if the two ranges overlap.
// Go's builtin copy already implements memmove semantics, so Move and Copy
// share an implementation; the distinct name documents intent at call
// sites where the ranges might alias.
func Move(dst, src Address, size Size) {
	Copy(dst, src, size)
}
