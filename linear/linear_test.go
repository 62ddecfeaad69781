package linear

import (
	"testing"
	"unsafe"

	"vmem/config"
	"vmem/kernel"
	"vmem/vm/simvm"
)

const testPage = kernel.Size(4096)

func newTestAllocator(t *testing.T, reservation, commission, factor kernel.Size) *Allocator {
	t.Helper()
	a := &Allocator{
		reservation: reservation,
		commission:  commission,
		factor:      factor,
		VM:          simvm.New(testPage),
	}
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func TestPushBasic(t *testing.T) {
	a := newTestAllocator(t, 4096, 64, 1)

	addr, err := a.Push(48, 8)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if addr != a.Base() {
		t.Fatalf("expected first push to return base; got %v", addr)
	}
	if a.Extent() != 48 {
		t.Fatalf("expected extent 48; got %d", a.Extent())
	}
	if a.Commission() != 64 {
		t.Fatalf("expected commission unchanged at 64; got %d", a.Commission())
	}
}

func TestPushGrowsCommission(t *testing.T) {
	a := newTestAllocator(t, testPage*4, 64, 1)

	if _, err := a.Push(48, 8); err != nil {
		t.Fatalf("Push: %v", err)
	}
	// 4000 bytes needs more than the remaining 16 bytes of commission.
	addr, err := a.Push(4000, 1)
	if err != nil {
		t.Fatalf("Push triggering growth: %v", err)
	}
	if !addr.Valid() {
		t.Fatal("expected valid address")
	}
	if a.Commission() <= 64 {
		t.Fatalf("expected commission to grow past 64; got %d", a.Commission())
	}
	if a.Commission() > a.Reservation() {
		t.Fatal("commission exceeded reservation")
	}
}

func TestPushFailsBeyondReservation(t *testing.T) {
	a := newTestAllocator(t, 256, 64, 1)

	_, err := a.Push(4000, 1)
	if err == nil {
		t.Fatal("expected Push to fail when growth would exceed reservation")
	}
	if a.Extent() != 0 {
		t.Fatal("failed push must not mutate extent")
	}
}

func TestPushZeroedReadsZero(t *testing.T) {
	a := newTestAllocator(t, testPage*2, testPage, 1)

	addr, err := a.Push(64, 8)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	kernel.Fill(addr, 64, 0xFF)
	if err := a.Pull(64, 8); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	addr2, err := a.PushZeroed(64, 8)
	if err != nil {
		t.Fatalf("PushZeroed: %v", err)
	}
	if addr2 != addr {
		t.Fatalf("expected PushZeroed to reuse bump slot %v; got %v", addr, addr2)
	}
	for i := kernel.Size(0); i < 64; i++ {
		ptr := addr2.Add(i)
		if b := readByte(ptr); b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
}

func TestPushPullRoundTrip(t *testing.T) {
	a := newTestAllocator(t, testPage*4, testPage, 1)

	before := a.Extent()
	if _, err := a.Push(100, 16); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := a.Pull(100, 16); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if a.Extent() != before {
		t.Fatalf("expected extent restored to %d; got %d", before, a.Extent())
	}
}

func TestPushFramePullFrameNested(t *testing.T) {
	a := newTestAllocator(t, testPage*4, testPage, 1)

	base := a.Extent()
	f1, err := a.PushFrame(16, 16)
	if err != nil {
		t.Fatalf("PushFrame 1: %v", err)
	}
	mid := a.Extent()

	f2, err := a.PushFrame(32, 8)
	if err != nil {
		t.Fatalf("PushFrame 2: %v", err)
	}

	if err := a.PullFrame(f2); err != nil {
		t.Fatalf("PullFrame 2: %v", err)
	}
	if a.Extent() != mid {
		t.Fatalf("expected extent restored to %d after inner pull; got %d", mid, a.Extent())
	}

	if err := a.PullFrame(f1); err != nil {
		t.Fatalf("PullFrame 1: %v", err)
	}
	if a.Extent() != base {
		t.Fatalf("expected extent restored to %d after outer pull; got %d", base, a.Extent())
	}
}

func TestClearLeavesCommissionIntact(t *testing.T) {
	a := newTestAllocator(t, testPage*2, testPage, 1)
	if _, err := a.Push(128, 8); err != nil {
		t.Fatalf("Push: %v", err)
	}
	commissionBefore := a.Commission()

	if err := a.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if a.Extent() != 0 {
		t.Fatal("expected extent 0 after Clear")
	}
	if a.Commission() != commissionBefore {
		t.Fatal("Clear must not change commission")
	}
}

func TestClearWanedDecommitsEverything(t *testing.T) {
	a := newTestAllocator(t, testPage*2, testPage, 1)
	if _, err := a.Push(128, 8); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if err := a.ClearWaned(); err != nil {
		t.Fatalf("ClearWaned: %v", err)
	}
	if a.Commission() != 0 {
		t.Fatalf("expected commission 0 after ClearWaned; got %d", a.Commission())
	}
	committed, err := a.VM.Committed(a.Base(), testPage)
	if err != nil {
		t.Fatalf("Committed: %v", err)
	}
	if committed {
		t.Fatal("expected all pages decommitted after ClearWaned")
	}
}

func TestPullWanedDecommitsVacatedPages(t *testing.T) {
	a := newTestAllocator(t, testPage*4, testPage*2, 1)
	if _, err := a.Push(kernel.Size(testPage)+100, 8); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if err := a.PullWaned(kernel.Size(testPage)+50, 8); err != nil {
		t.Fatalf("PullWaned: %v", err)
	}

	secondPage := a.Base().Add(testPage)
	committed, err := a.VM.Committed(secondPage, testPage)
	if err != nil {
		t.Fatalf("Committed: %v", err)
	}
	if committed {
		t.Fatal("expected second page decommitted after PullWaned")
	}
}

func TestZeroValueAllocatorAutoInitializes(t *testing.T) {
	var a Allocator
	a.VM = simvm.New(testPage)

	addr, err := a.Push(16, 8)
	if err != nil {
		t.Fatalf("Push on zero-value allocator: %v", err)
	}
	if !addr.Valid() {
		t.Fatal("expected valid address from auto-initialized allocator")
	}
	if a.Reservation() == 0 || a.Commission() == 0 {
		t.Fatal("expected defaults to have been filled in")
	}
}

func TestAutoInitializeDisabled(t *testing.T) {
	var a Allocator
	a.VM = simvm.New(testPage)
	a.Config = config.New(config.WithAutoInitialize(false))

	if _, err := a.Push(16, 8); err == nil {
		t.Fatal("expected Push to fail when automatic initialization is disabled")
	}
}

func readByte(addr kernel.Address) byte {
	return *(*byte)(unsafe.Pointer(uintptr(addr)))
}
