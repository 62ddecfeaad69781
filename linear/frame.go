package linear

import (
	"unsafe"

	"vmem/align"
	"vmem/kernel"
)

// frameHeader records the extent a frame push was made from, so the
// matching frame pull can restore it. Two frame pushes nest LIFO.
type frameHeader struct {
	priorExtent kernel.Size
}

const frameHeaderSize = kernel.Size(unsafe.Sizeof(frameHeader{}))
const frameHeaderAlign = kernel.Size(unsafe.Alignof(frameHeader{}))

func writeFrameHeader(addr kernel.Address, priorExtent kernel.Size) {
	h := (*frameHeader)(unsafe.Pointer(uintptr(addr)))
	h.priorExtent = priorExtent
}

func readFrameHeader(addr kernel.Address) kernel.Size {
	h := (*frameHeader)(unsafe.Pointer(uintptr(addr)))
	return h.priorExtent
}

// pushFrame reserves room for a frameHeader immediately before the
// user-visible region: the header sits at userOffset-frameHeaderSize, so
// a later pull only needs the user address to find it. userOffset is
// computed as the smallest alignment-satisfying offset that still leaves
// room for the header between the current extent and the header.
func (a *Allocator) pushFrame(size, alignment kernel.Size) (userAddr kernel.Address, freshLo, freshHi kernel.Size, err error) {
	if err = a.ensureInitialized(); err != nil {
		return
	}
	if alignment == 0 {
		alignment = 1
	}

	userOffsetMin := a.extent + frameHeaderSize
	userOffset := align.AlignUp(userOffsetMin, alignment)
	padLike := userOffset - a.extent // bytes consumed before user data: gap + header

	needed := a.extent + padLike + size
	freshLo, freshHi = a.commission, a.commission
	if needed > a.commission {
		freshLo = a.commission
		if err = a.grow(padLike, size); err != nil {
			return
		}
		freshHi = a.commission
	}

	priorExtent := a.extent
	headerAddr := a.base.Add(userOffset - frameHeaderSize)
	writeFrameHeader(headerAddr, priorExtent)

	userAddr = a.base.Add(userOffset)
	a.extent = userOffset + size
	return
}

// PushFrame is Push, plus an inline frame header that PullFrame later
// uses to rewind extent.
func (a *Allocator) PushFrame(size, alignment kernel.Size) (kernel.Address, error) {
	addr, _, _, err := a.pushFrame(size, alignment)
	return addr, err
}

// PushFrameZeroed is PushFrame, plus zeroing the returned range unless
// it was freshly committed by this call.
func (a *Allocator) PushFrameZeroed(size, alignment kernel.Size) (kernel.Address, error) {
	addr, freshLo, freshHi, err := a.pushFrame(size, alignment)
	if err != nil {
		return addr, err
	}
	off := kernel.Size(addr - a.base)
	if off < freshLo || off+size > freshHi {
		kernel.Fill(addr, size, 0)
	}
	return addr, nil
}

// PullFrame restores extent from the frame header immediately below
// address.
func (a *Allocator) PullFrame(address kernel.Address) error {
	if err := a.ensureInitialized(); err != nil {
		return err
	}
	headerAddr := address - kernel.Address(frameHeaderSize)
	a.extent = readFrameHeader(headerAddr)
	return nil
}

// PullFrameWaned is PullFrame, then decommits the pages the restored
// extent has vacated.
func (a *Allocator) PullFrameWaned(address kernel.Address) error {
	if err := a.PullFrame(address); err != nil {
		return err
	}
	return a.decommitAbove(a.extent)
}
