package granular

import (
	"testing"
	"unsafe"

	"vmem/config"
	"vmem/kernel"
	"vmem/vm/simvm"
)

const testPage = kernel.Size(4096)

func newTestAllocator(t *testing.T, reservation, granularity kernel.Size, quantity int) *Allocator {
	t.Helper()
	a := &Allocator{
		reservation: reservation,
		granularity: granularity,
		quantity:    quantity,
		VM:          simvm.New(testPage),
	}
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func TestPutReturnsBaseFirst(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 8)

	addr, err := a.Put(64)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if addr != a.Base() {
		t.Fatalf("expected first Put to return base; got %v", addr)
	}
}

func TestPutPopRoundTrip(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 8)

	addr, err := a.Put(64)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := a.Pop(addr, 64); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	// A second Put of the same size must reuse the freed slot.
	addr2, err := a.Put(64)
	if err != nil {
		t.Fatalf("Put after Pop: %v", err)
	}
	if addr2 != addr {
		t.Fatalf("expected reused slot %v; got %v", addr, addr2)
	}
}

func TestPutMultiSlotSpan(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 8)

	addr, err := a.Put(128)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	addr2, err := a.Put(64)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if addr2 != addr.Add(128) {
		t.Fatalf("expected second Put to follow the first two-slot span; got base=%v second=%v", addr, addr2)
	}
}

func TestPutExhaustsAllSlots(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 8)

	for i := 0; i < 8; i++ {
		if _, err := a.Put(64); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if _, err := a.Put(64); err == nil {
		t.Fatal("expected ninth Put to fail with all 8 slots taken")
	}
}

func TestPutZeroedReadsZero(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 8)

	addr, err := a.Put(64)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	kernel.Fill(addr, 64, 0xFF)
	if err := a.Pop(addr, 64); err != nil {
		t.Fatalf("Pop: %v", err)
	}

	addr2, err := a.PutZeroed(64)
	if err != nil {
		t.Fatalf("PutZeroed: %v", err)
	}
	if addr2 != addr {
		t.Fatalf("expected PutZeroed to reuse slot %v; got %v", addr, addr2)
	}
	for i := kernel.Size(0); i < 64; i++ {
		if b := readByte(addr2.Add(i)); b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
}

func TestInitializeMarksExactlyQuantityBitsFree(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 70)

	words := a.words()
	free := 0
	for _, w := range words {
		for b := 0; b < bitsPerWord; b++ {
			if w&(uint64(1)<<uint(b)) != 0 {
				free++
			}
		}
	}
	if free != 70 {
		t.Fatalf("expected exactly 70 free bits after Initialize; got %d", free)
	}
}

func TestPutFindsRunSpanningTwoWords(t *testing.T) {
	// 70 slots means the free run straddles the boundary between word 0
	// and word 1; a run of 70 can only be satisfied by using bits from
	// both words at once.
	a := newTestAllocator(t, testPage*4, 1, 70)

	addr, err := a.Put(70)
	if err != nil {
		t.Fatalf("Put spanning two words: %v", err)
	}
	if addr != a.Base() {
		t.Fatalf("expected run to start at base; got %v", addr)
	}
	if _, err := a.Put(1); err == nil {
		t.Fatal("expected allocator to be fully exhausted after the 70-slot run")
	}
}

func TestClearLeavesEverythingFree(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 8)
	for i := 0; i < 8; i++ {
		if _, err := a.Put(64); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	if err := a.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for i := 0; i < 8; i++ {
		if _, err := a.Put(64); err != nil {
			t.Fatalf("Put %d after Clear: %v", i, err)
		}
	}
}

func TestPopWanedDecommitsFreeTail(t *testing.T) {
	// A large quantity (granularity 1, so the block region stays small)
	// spreads the bitmap's 625 words over more than one page; freeing
	// every slot but the very first should let PopWaned decommit the
	// upper bitmap pages.
	const quantity = 40000
	a := newTestAllocator(t, testPage*16, 1, quantity)

	if _, err := a.Put(1); err != nil {
		t.Fatalf("Put first slot: %v", err)
	}
	rest, err := a.Put(quantity - 1)
	if err != nil {
		t.Fatalf("Put remaining slots: %v", err)
	}

	if err := a.PopWaned(rest, quantity-1); err != nil {
		t.Fatalf("PopWaned: %v", err)
	}
	if a.committedWords >= a.numWords {
		t.Fatal("expected PopWaned to have decommitted some bitmap words")
	}
}

func TestClearWanedDecommitsBitmap(t *testing.T) {
	const quantity = 40000
	a := newTestAllocator(t, testPage*16, 1, quantity)

	if _, err := a.Put(1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := a.ClearWaned(); err != nil {
		t.Fatalf("ClearWaned: %v", err)
	}
	if a.committedWords >= a.numWords {
		t.Fatal("expected ClearWaned to decommit bitmap words above the (now empty) watermark")
	}
}

func TestZeroValueAllocatorAutoInitializes(t *testing.T) {
	var a Allocator
	a.VM = simvm.New(testPage)

	addr, err := a.Put(16)
	if err != nil {
		t.Fatalf("Put on zero-value allocator: %v", err)
	}
	if !addr.Valid() {
		t.Fatal("expected valid address from auto-initialized allocator")
	}
	if a.Reservation() == 0 || a.Granularity() == 0 || a.Quantity() == 0 {
		t.Fatal("expected defaults to have been filled in")
	}
}

func TestAutoInitializeDisabled(t *testing.T) {
	var a Allocator
	a.VM = simvm.New(testPage)
	a.Config = config.New(config.WithAutoInitialize(false))

	if _, err := a.Put(16); err == nil {
		t.Fatal("expected Put to fail when automatic initialization is disabled")
	}
}

func readByte(addr kernel.Address) byte {
	return *(*byte)(unsafe.Pointer(uintptr(addr)))
}
