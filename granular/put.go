package granular

import (
	"vmem/align"
	"vmem/bitscan"
	"vmem/kernel"
)

// Put finds a run of ⌈size/granularity⌉ free slots, marks them used and
// returns the address of the first slot, or kernel.NoAddress if no run
// large enough exists.
func (a *Allocator) Put(size kernel.Size) (kernel.Address, error) {
	if err := a.ensureInitialized(); err != nil {
		return kernel.NoAddress, err
	}
	k := a.blockCeil(size)
	words := a.words()
	p, q := a.committedRange()

	loc := bitscan.FindBits(words, k, p, q, false)
	if !loc.Valid() {
		return kernel.NoAddress, errOutOfSlots
	}
	bitscan.SetBits(words, k, loc, true, true)

	lowestSlot := a.cursorToSlot(loc)
	return a.slotToAddr(lowestSlot), nil
}

// PutZeroed is Put, plus zeroing the returned range.
func (a *Allocator) PutZeroed(size kernel.Size) (kernel.Address, error) {
	addr, err := a.Put(size)
	if err != nil {
		return addr, err
	}
	kernel.Fill(addr, size, 0)
	return addr, nil
}

// Pop returns the k = ⌈size/granularity⌉ slots starting at address to
// the free pool. The caller must supply the exact size used on the
// matching Put; no header is stored to recover it.
func (a *Allocator) Pop(address kernel.Address, size kernel.Size) error {
	if err := a.ensureInitialized(); err != nil {
		return err
	}
	k := a.blockCeil(size)
	lowestSlot := a.addrToSlot(address)
	loc := a.slotToCursor(lowestSlot)
	bitscan.SetBits(a.words(), k, loc, false, true)
	return nil
}

// PopWaned is Pop, then decommits any whole bitmap words that now lie
// entirely above the live watermark (the highest still-used slot) and
// are fully free.
func (a *Allocator) PopWaned(address kernel.Address, size kernel.Size) error {
	if err := a.Pop(address, size); err != nil {
		return err
	}
	return a.decommitFreeTail()
}

// Clear marks every slot free without touching bitmap commission.
func (a *Allocator) Clear() error {
	if err := a.ensureInitialized(); err != nil {
		return err
	}
	a.setAllFree()
	return nil
}

// ClearWaned is Clear, then decommits the entire currently-committed
// bitmap backing, since every slot is now free.
func (a *Allocator) ClearWaned() error {
	if err := a.Clear(); err != nil {
		return err
	}
	return a.decommitFreeTail()
}

// wordAddr returns the start address of bitmap word k (k may be -1,
// meaning one word above the anchor — used to express "nothing needs to
// stay committed").
func (a *Allocator) wordAddr(k int) kernel.Address {
	if k < 0 {
		return a.anchorAddr().Add(kernel.Size(8 * -k))
	}
	return a.anchorAddr() - kernel.Address(8*k)
}

// highWatermark returns the count of slots from 0 up to the highest
// currently-used slot, scanning only the committed portion of the
// bitmap.
func (a *Allocator) highWatermark() int {
	highestCommitted := a.committedWords*bitsPerWord - 1
	if highestCommitted > a.quantity-1 {
		highestCommitted = a.quantity - 1
	}
	words := a.words()
	for slot := highestCommitted; slot >= 0; slot-- {
		loc := a.slotToCursor(slot)
		if words[loc.Word]&(uint64(1)<<uint(loc.Bit-1)) == 0 {
			return slot + 1
		}
	}
	return 0
}

// decommitFreeTail decommits whole bitmap words strictly above the live
// watermark. Words above the watermark are, by definition of watermark,
// entirely free — no straddling word is ever touched.
func (a *Allocator) decommitFreeTail() error {
	wordsNeeded := (a.highWatermark() + bitsPerWord - 1) / bitsPerWord
	if wordsNeeded >= a.committedWords {
		return nil
	}

	page := a.VM.PageGranularity()
	low := a.lowestWordAddr()
	high := a.wordAddr(wordsNeeded - 1)

	// The page holding the lowest bitmap word was committed by Initialize
	// and may be released too, unless the block region reaches into it.
	decommitLow := align.AlignDown(kernel.Size(low), page)
	if blockEnd := kernel.Size(a.slotToAddr(a.quantity)); decommitLow < blockEnd {
		decommitLow = align.AlignUp(blockEnd, page)
	}
	decommitHigh := align.AlignDown(kernel.Size(high), page)
	if decommitHigh <= decommitLow {
		return nil
	}
	if err := a.VM.Decommit(kernel.Address(decommitLow), decommitHigh-decommitLow); err != nil {
		return err
	}
	a.committedWords = wordsNeeded
	return nil
}
