package granular

import (
	"unsafe"

	"vmem/bitscan"
	"vmem/kernel"
)

// words returns a []uint64 view of the full bitmap region in ascending
// address order: words[0] is the lowest-addressed (highest-k) word,
// words[numWords-1] is the anchor (word 0, highest address). Indices at
// or above numWords-committedWords are backed by committed memory;
// lower indices may be decommitted and must never be read or written.
func (a *Allocator) words() []uint64 {
	if a.numWords == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(uintptr(a.lowestWordAddr()))), a.numWords)
}

// committedRange returns the [p, q) bounds bitscan.FindBits/SetBits
// should scan over to stay within committed words: p is the anchor
// (word 0), q is one past the lowest still-committed word, scanning in
// reverse (p > q). Word 0 sits at the highest slice index, so decrementing
// the word pointer visits wordK = 0, 1, 2, ... in increasing order — the
// same order as increasing slot number.
func (a *Allocator) committedRange() (p, q int) {
	p = a.numWords - 1
	q = a.numWords - a.committedWords - 1
	return
}

// setAllFree sets bits [0, quantity) to 1 (free) and the remainder of
// the last word to 0, across every currently-committed word. It never
// touches a decommitted word.
func (a *Allocator) setAllFree() {
	words := a.words()
	for k := 0; k < a.committedWords; k++ {
		sliceIdx := a.numWords - 1 - k
		lo := k * bitsPerWord
		hi := lo + bitsPerWord
		var mask uint64
		switch {
		case hi <= a.quantity:
			mask = ^uint64(0)
		case lo >= a.quantity:
			mask = 0
		default:
			mask = (uint64(1) << uint(a.quantity-lo)) - 1
		}
		words[sliceIdx] = mask
	}
}

// slotToCursor converts a 0-based slot index into the bitscan cursor
// addressing its bit.
func (a *Allocator) slotToCursor(slot int) bitscan.Location {
	wordK := slot / bitsPerWord
	bitPos := slot % bitsPerWord
	return bitscan.Location{Word: a.numWords - 1 - wordK, Bit: bitPos + 1}
}

// cursorToSlot converts a bitscan cursor back into a 0-based slot index.
func (a *Allocator) cursorToSlot(loc bitscan.Location) int {
	wordK := a.numWords - 1 - loc.Word
	return wordK*bitsPerWord + (loc.Bit - 1)
}

// addrToSlot converts an address within the block region into its
// 0-based slot index.
func (a *Allocator) addrToSlot(addr kernel.Address) int {
	return int(kernel.Size(addr-a.base) / a.granularity)
}

// slotToAddr converts a 0-based slot index into its block address.
func (a *Allocator) slotToAddr(slot int) kernel.Address {
	return a.base.Add(kernel.Size(slot) * a.granularity)
}
