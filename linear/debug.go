package linear

import (
	"vmem/align"
	"vmem/config"
	"vmem/internal/debug"
	"vmem/kernel"
	"vmem/vm"
)

var (
	errZeroSize      = &kernel.Error{Op: "linear", Message: "size must be > 0"}
	errBadAlignment  = &kernel.Error{Op: "linear", Message: "alignment must be a power of two"}
	errPushFailed    = &kernel.Error{Op: "linear", Message: "push returned no address"}
	errPullUnderflow = &kernel.Error{Op: "linear", Message: "pull would underflow extent; use Clear instead"}
	errInvariant     = &kernel.Error{Op: "linear", Message: "reservation >= commission >= extent violated"}
)

// Interface is the method set both Allocator and Debugging implement,
// selected by New according to Config.EnableDebuggingAliases.
type Interface interface {
	Initialize() error
	Push(size, alignment kernel.Size) (kernel.Address, error)
	PushZeroed(size, alignment kernel.Size) (kernel.Address, error)
	PushFrame(size, alignment kernel.Size) (kernel.Address, error)
	PushFrameZeroed(size, alignment kernel.Size) (kernel.Address, error)
	Pull(size, alignment kernel.Size) error
	PullWaned(size, alignment kernel.Size) error
	PullFrame(address kernel.Address) error
	PullFrameWaned(address kernel.Address) error
	Clear() error
	ClearWaned() error
}

var (
	_ Interface = (*Allocator)(nil)
	_ Interface = (*Debugging)(nil)
)

// New constructs and initializes a linear allocator, returning the
// debug-checked variant when Config.EnableDebuggingAliases is set.
func New(reservation, commission, factor kernel.Size, provider vm.Provider, opts ...config.Option) (Interface, error) {
	cfg := config.New(opts...)
	a := &Allocator{
		reservation: reservation,
		commission:  commission,
		factor:      factor,
		VM:          provider,
		Config:      cfg,
	}
	if err := a.Initialize(); err != nil {
		return nil, err
	}
	if cfg.EnableDebuggingAliases {
		return &Debugging{Allocator: a}, nil
	}
	return a, nil
}

// Debugging wraps an Allocator with input and invariant assertions,
// success assertions, and validate/invalidate calls that trap stray
// access to pages outside the live range at the OS level.
type Debugging struct {
	*Allocator

	// Trace, if non-nil, receives one line per completed operation. A
	// Trace with a nil Sink (the zero debug.Logger) is a no-op, so
	// leaving this unset costs nothing.
	Trace *debug.Logger
}

func (d *Debugging) checkInvariants() {
	debug.Assert(d.extent <= d.commission && d.commission <= d.reservation, errInvariant)
}

func (d *Debugging) trace(format string, args ...interface{}) {
	if d.Trace != nil {
		d.Trace.Tracef(format, args...)
	}
}

// invalidateBeyond marks every committed byte above offset no-access.
func (d *Debugging) invalidateBeyond(offset kernel.Size) {
	if offset >= d.commission {
		return
	}
	d.VM.Invalidate(d.base.Add(offset), d.commission-offset)
}

func (d *Debugging) Push(size, alignment kernel.Size) (kernel.Address, error) {
	debug.Assert(size > 0, errZeroSize)
	debug.Assert(alignment == 0 || align.IsPowerOfTwo(alignment), errBadAlignment)
	d.checkInvariants()

	addr, err := d.Allocator.Push(size, alignment)
	if err != nil {
		d.trace("Push(%d, %d) -> error: %v", size, alignment, err)
		return addr, err
	}
	debug.Assert(addr.Valid(), errPushFailed)
	d.checkInvariants()
	d.VM.Validate(addr, size)
	d.invalidateBeyond(d.extent)
	d.trace("Push(%d, %d) -> %v", size, alignment, addr)
	return addr, nil
}

func (d *Debugging) PushZeroed(size, alignment kernel.Size) (kernel.Address, error) {
	debug.Assert(size > 0, errZeroSize)
	debug.Assert(alignment == 0 || align.IsPowerOfTwo(alignment), errBadAlignment)
	d.checkInvariants()

	addr, err := d.Allocator.PushZeroed(size, alignment)
	if err != nil {
		d.trace("PushZeroed(%d, %d) -> error: %v", size, alignment, err)
		return addr, err
	}
	debug.Assert(addr.Valid(), errPushFailed)
	d.checkInvariants()
	d.VM.Validate(addr, size)
	d.invalidateBeyond(d.extent)
	d.trace("PushZeroed(%d, %d) -> %v", size, alignment, addr)
	return addr, nil
}

func (d *Debugging) PushFrame(size, alignment kernel.Size) (kernel.Address, error) {
	debug.Assert(size > 0, errZeroSize)
	debug.Assert(alignment == 0 || align.IsPowerOfTwo(alignment), errBadAlignment)
	d.checkInvariants()

	addr, err := d.Allocator.PushFrame(size, alignment)
	if err != nil {
		d.trace("PushFrame(%d, %d) -> error: %v", size, alignment, err)
		return addr, err
	}
	debug.Assert(addr.Valid(), errPushFailed)
	d.checkInvariants()
	d.VM.Validate(d.base.Add(kernel.Size(addr-d.base)-frameHeaderSize), frameHeaderSize+size)
	d.invalidateBeyond(d.extent)
	d.trace("PushFrame(%d, %d) -> %v", size, alignment, addr)
	return addr, nil
}

func (d *Debugging) PushFrameZeroed(size, alignment kernel.Size) (kernel.Address, error) {
	debug.Assert(size > 0, errZeroSize)
	debug.Assert(alignment == 0 || align.IsPowerOfTwo(alignment), errBadAlignment)
	d.checkInvariants()

	addr, err := d.Allocator.PushFrameZeroed(size, alignment)
	if err != nil {
		d.trace("PushFrameZeroed(%d, %d) -> error: %v", size, alignment, err)
		return addr, err
	}
	debug.Assert(addr.Valid(), errPushFailed)
	d.checkInvariants()
	d.VM.Validate(d.base.Add(kernel.Size(addr-d.base)-frameHeaderSize), frameHeaderSize+size)
	d.invalidateBeyond(d.extent)
	d.trace("PushFrameZeroed(%d, %d) -> %v", size, alignment, addr)
	return addr, nil
}

func (d *Debugging) Pull(size, alignment kernel.Size) error {
	debug.Assert(size <= d.extent, errPullUnderflow)
	d.checkInvariants()

	if err := d.ensureInitialized(); err != nil {
		return err
	}
	d.pullCore(size, alignment)
	d.checkInvariants()
	d.VM.Validate(d.base, d.extent)
	d.invalidateBeyond(d.extent)
	d.trace("Pull(%d, %d)", size, alignment)
	return nil
}

func (d *Debugging) PullWaned(size, alignment kernel.Size) error {
	debug.Assert(size <= d.extent, errPullUnderflow)
	d.checkInvariants()

	if err := d.ensureInitialized(); err != nil {
		return err
	}
	d.pullCore(size, alignment)

	page := d.VM.PageGranularity()
	floor := align.AlignUp(d.extent, page)
	if floor < d.commission {
		d.VM.Invalidate(d.base.Add(floor), d.commission-floor)
	}
	if err := d.decommitAbove(d.extent); err != nil {
		return err
	}
	d.checkInvariants()
	d.VM.Validate(d.base, d.extent)
	d.trace("PullWaned(%d, %d)", size, alignment)
	return nil
}

func (d *Debugging) PullFrame(address kernel.Address) error {
	debug.Assert(address.Valid() && kernel.Size(address-d.base) >= frameHeaderSize, errPullUnderflow)
	if err := d.Allocator.PullFrame(address); err != nil {
		d.trace("PullFrame(%v) -> error: %v", address, err)
		return err
	}
	d.checkInvariants()
	d.VM.Validate(d.base, d.extent)
	d.invalidateBeyond(d.extent)
	d.trace("PullFrame(%v)", address)
	return nil
}

func (d *Debugging) PullFrameWaned(address kernel.Address) error {
	debug.Assert(address.Valid() && kernel.Size(address-d.base) >= frameHeaderSize, errPullUnderflow)
	if err := d.Allocator.PullFrame(address); err != nil {
		d.trace("PullFrameWaned(%v) -> error: %v", address, err)
		return err
	}

	page := d.VM.PageGranularity()
	floor := align.AlignUp(d.extent, page)
	if floor < d.commission {
		d.VM.Invalidate(d.base.Add(floor), d.commission-floor)
	}
	if err := d.decommitAbove(d.extent); err != nil {
		return err
	}
	d.checkInvariants()
	d.VM.Validate(d.base, d.extent)
	d.trace("PullFrameWaned(%v)", address)
	return nil
}

func (d *Debugging) Clear() error {
	d.checkInvariants()
	if err := d.Allocator.Clear(); err != nil {
		return err
	}
	d.invalidateBeyond(0)
	d.trace("Clear()")
	return nil
}

func (d *Debugging) ClearWaned() error {
	d.checkInvariants()
	if err := d.Allocator.ClearWaned(); err != nil {
		return err
	}
	d.checkInvariants()
	d.trace("ClearWaned()")
	return nil
}
