package granular

import (
	"vmem/config"
	"vmem/internal/debug"
	"vmem/kernel"
	"vmem/vm"
)

var (
	errZeroSize  = &kernel.Error{Op: "granular", Message: "size must be > 0"}
	errPutFailed = &kernel.Error{Op: "granular", Message: "put returned no address"}
	errInvariant = &kernel.Error{Op: "granular", Message: "committedWords out of range"}
)

// Interface is the method set both Allocator and Debugging implement,
// selected by New according to Config.EnableDebuggingAliases.
type Interface interface {
	Initialize() error
	Put(size kernel.Size) (kernel.Address, error)
	PutZeroed(size kernel.Size) (kernel.Address, error)
	Pop(address kernel.Address, size kernel.Size) error
	PopWaned(address kernel.Address, size kernel.Size) error
	Clear() error
	ClearWaned() error
}

var (
	_ Interface = (*Allocator)(nil)
	_ Interface = (*Debugging)(nil)
)

// New constructs and initializes a granular allocator, returning the
// debug-checked variant when Config.EnableDebuggingAliases is set.
func New(reservation, granularity kernel.Size, quantity int, provider vm.Provider, opts ...config.Option) (Interface, error) {
	cfg := config.New(opts...)
	a := &Allocator{
		reservation: reservation,
		granularity: granularity,
		quantity:    quantity,
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

// Debugging wraps an Allocator with input assertions, invariant checks
// and success assertions. The granular allocator has no live-range OS
// protection to toggle (the block region is committed in full up
// front), so Validate/Invalidate bracket only the Put/Pop range itself.
type Debugging struct {
	*Allocator

	// Trace, if non-nil, receives one line per completed operation. A
	// Trace with a nil Sink (the zero debug.Logger) is a no-op, so
	// leaving this unset costs nothing.
	Trace *debug.Logger
}

func (d *Debugging) checkInvariants() {
	debug.Assert(d.committedWords >= 0 && d.committedWords <= d.numWords, errInvariant)
}

func (d *Debugging) trace(format string, args ...interface{}) {
	if d.Trace != nil {
		d.Trace.Tracef(format, args...)
	}
}

func (d *Debugging) Put(size kernel.Size) (kernel.Address, error) {
	debug.Assert(size > 0, errZeroSize)
	d.checkInvariants()
	addr, err := d.Allocator.Put(size)
	if err != nil {
		d.trace("Put(%d) -> error: %v", size, err)
		return addr, err
	}
	debug.Assert(addr.Valid(), errPutFailed)
	d.checkInvariants()
	d.VM.Validate(addr, kernel.Size(d.blockCeil(size))*d.granularity)
	d.trace("Put(%d) -> %v", size, addr)
	return addr, nil
}

func (d *Debugging) PutZeroed(size kernel.Size) (kernel.Address, error) {
	debug.Assert(size > 0, errZeroSize)
	d.checkInvariants()
	addr, err := d.Allocator.PutZeroed(size)
	if err != nil {
		d.trace("PutZeroed(%d) -> error: %v", size, err)
		return addr, err
	}
	debug.Assert(addr.Valid(), errPutFailed)
	d.checkInvariants()
	d.VM.Validate(addr, kernel.Size(d.blockCeil(size))*d.granularity)
	d.trace("PutZeroed(%d) -> %v", size, addr)
	return addr, nil
}

func (d *Debugging) Pop(address kernel.Address, size kernel.Size) error {
	debug.Assert(address.Valid(), errPutFailed)
	d.checkInvariants()
	d.VM.Invalidate(address, kernel.Size(d.blockCeil(size))*d.granularity)
	if err := d.Allocator.Pop(address, size); err != nil {
		d.trace("Pop(%v, %d) -> error: %v", address, size, err)
		return err
	}
	d.checkInvariants()
	d.trace("Pop(%v, %d)", address, size)
	return nil
}

func (d *Debugging) PopWaned(address kernel.Address, size kernel.Size) error {
	debug.Assert(address.Valid(), errPutFailed)
	d.checkInvariants()
	d.VM.Invalidate(address, kernel.Size(d.blockCeil(size))*d.granularity)
	if err := d.Allocator.PopWaned(address, size); err != nil {
		d.trace("PopWaned(%v, %d) -> error: %v", address, size, err)
		return err
	}
	d.checkInvariants()
	d.trace("PopWaned(%v, %d)", address, size)
	return nil
}

func (d *Debugging) Clear() error {
	d.checkInvariants()
	if err := d.Allocator.Clear(); err != nil {
		return err
	}
	d.checkInvariants()
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
