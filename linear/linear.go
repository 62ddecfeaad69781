// Package linear implements the linear (bump) allocator over a single
// virtual-memory reservation: a monotonically advancing extent within a
// lazily-grown commission, with LIFO frame markers and decommit-on-shrink
// ("waned") variants.
package linear

import (
	"vmem/align"
	"vmem/config"
	"vmem/kernel"
	"vmem/vm"
)

var (
	errNoProvider = &kernel.Error{Op: "linear", Message: "no vm.Provider configured"}
	errNotInitialized = &kernel.Error{
		Op:      "linear",
		Message: "allocator not initialized and automatic initialization is disabled",
	}
	errReserveFailed    = &kernel.Error{Op: "linear.Initialize", Message: "vm provider failed to reserve address space"}
	errOutOfReservation = &kernel.Error{Op: "linear.Push", Message: "growth would exceed reservation"}
)

// Allocator is a bump allocator over [base, base+reservation). The zero
// Allocator is valid: reservation, commission and factor are filled from
// Config on first use (Config itself defaults if left zero), but VM must
// be set by the caller before any operation — there is no sensible
// default virtual-memory collaborator to fall back to.
type Allocator struct {
	// VM is the virtual-memory provider backing this allocator. Required.
	VM vm.Provider

	// Config supplies the DEFAULT_* values and the automatic
	// initialization / debugging-alias switches.
	Config config.Config

	reservation kernel.Size
	base        kernel.Address
	factor      kernel.Size
	commission  kernel.Size
	extent      kernel.Size
	initialized bool
}

// Make constructs and initializes an Allocator in one call.
func Make(reservation, commission, factor kernel.Size, provider vm.Provider, opts ...config.Option) (*Allocator, error) {
	a := &Allocator{
		reservation: reservation,
		commission:  commission,
		factor:      factor,
		VM:          provider,
		Config:      config.New(opts...),
	}
	if err := a.Initialize(); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize fills every zero field of a from Config and commits the
// initial commission. It is idempotent: calling it again after a
// successful initialization is a no-op.
func (a *Allocator) Initialize() error {
	if a.initialized {
		return nil
	}
	if a.VM == nil {
		return errNoProvider
	}

	cfg := a.Config
	cfg.FillDefaults()
	a.Config = cfg

	if a.reservation == 0 {
		a.reservation = cfg.Reservation
	}
	if a.factor == 0 {
		a.factor = cfg.Factor
	}
	if a.commission == 0 {
		a.commission = cfg.Commission
	}

	if a.base == kernel.NoAddress {
		base, err := a.VM.Reserve(a.reservation)
		if err != nil {
			return err
		}
		if !base.Valid() {
			return errReserveFailed
		}
		a.base = base
	}
	if a.commission > 0 {
		if err := a.VM.Commit(a.base, a.commission); err != nil {
			return err
		}
	}
	a.initialized = true
	return nil
}

func (a *Allocator) ensureInitialized() error {
	if a.initialized {
		return nil
	}
	if a.Config.DisableAutoInitialize {
		return errNotInitialized
	}
	return a.Initialize()
}

// Reservation returns the current reservation size.
func (a *Allocator) Reservation() kernel.Size { return a.reservation }

// Commission returns the current commission size.
func (a *Allocator) Commission() kernel.Size { return a.commission }

// Extent returns the current extent.
func (a *Allocator) Extent() kernel.Size { return a.extent }

// Base returns the reservation's base address, or kernel.NoAddress
// before the allocator has been initialized.
func (a *Allocator) Base() kernel.Address { return a.base }

// grow commits exactly the step the growth rule accounts for, never
// more: step = align_up(padLike+size, page), scaled by factor when size
// exceeds page/factor.
func (a *Allocator) grow(padLike, size kernel.Size) error {
	page := a.VM.PageGranularity()
	step := align.AlignUp(padLike+size, page)
	if a.factor > 0 && size > page/a.factor {
		step *= a.factor
	}
	if a.commission+step > a.reservation {
		return errOutOfReservation
	}
	if err := a.VM.Commit(a.base.Add(a.commission), step); err != nil {
		return err
	}
	a.commission += step
	return nil
}

// push is the shared core of Push and PushZeroed. It returns the
// freshly-committed byte range [freshLo, freshHi) (offsets from base),
// empty if no growth occurred, so callers can skip redundant zeroing.
func (a *Allocator) push(size, alignment kernel.Size) (addr kernel.Address, freshLo, freshHi kernel.Size, err error) {
	if err = a.ensureInitialized(); err != nil {
		return
	}
	pad := align.ForwardPad(kernel.Size(a.base)+a.extent, alignment)
	needed := a.extent + pad + size
	freshLo, freshHi = a.commission, a.commission
	if needed > a.commission {
		freshLo = a.commission
		if err = a.grow(pad, size); err != nil {
			return
		}
		freshHi = a.commission
	}
	addr = a.base.Add(a.extent + pad)
	a.extent += pad + size
	return
}

// Push returns an aligned interior address and advances extent by
// pad+size. It returns kernel.NoAddress and an error on failure; extent
// is left unchanged on failure.
func (a *Allocator) Push(size, alignment kernel.Size) (kernel.Address, error) {
	addr, _, _, err := a.push(size, alignment)
	return addr, err
}

// PushZeroed is Push, plus zeroing the returned range unless it lies
// entirely within bytes freshly committed by this call (already zero by
// OS contract).
func (a *Allocator) PushZeroed(size, alignment kernel.Size) (kernel.Address, error) {
	addr, freshLo, freshHi, err := a.push(size, alignment)
	if err != nil {
		return addr, err
	}
	off := kernel.Size(addr - a.base)
	if off < freshLo || off+size > freshHi {
		kernel.Fill(addr, size, 0)
	}
	return addr, nil
}

// pullCore moves extent backward to align_down(extent-size, alignment).
// Underflow clamps extent to 0 (release-tier semantics); debug variants
// assert against it instead.
func (a *Allocator) pullCore(size, alignment kernel.Size) {
	if size > a.extent {
		a.extent = 0
		return
	}
	a.extent = align.AlignDown(a.extent-size, alignment)
}

// Pull moves extent backward by size, rounded down to alignment.
func (a *Allocator) Pull(size, alignment kernel.Size) error {
	if err := a.ensureInitialized(); err != nil {
		return err
	}
	a.pullCore(size, alignment)
	return nil
}

// decommitAbove decommits every full page strictly above floor, up to
// commission, and lowers commission to the page-aligned floor.
func (a *Allocator) decommitAbove(floor kernel.Size) error {
	page := a.VM.PageGranularity()
	from := align.AlignUp(floor, page)
	if from >= a.commission {
		return nil
	}
	if err := a.VM.Decommit(a.base.Add(from), a.commission-from); err != nil {
		return err
	}
	a.commission = from
	return nil
}

// PullWaned is Pull, then decommits pages the new extent has vacated.
func (a *Allocator) PullWaned(size, alignment kernel.Size) error {
	if err := a.Pull(size, alignment); err != nil {
		return err
	}
	return a.decommitAbove(a.extent)
}

// Clear resets extent to 0, leaving commission intact.
func (a *Allocator) Clear() error {
	if err := a.ensureInitialized(); err != nil {
		return err
	}
	a.extent = 0
	return nil
}

// ClearWaned is Clear, then decommits every committed page and resets
// commission to 0.
func (a *Allocator) ClearWaned() error {
	if err := a.Clear(); err != nil {
		return err
	}
	if a.commission > 0 {
		if err := a.VM.Decommit(a.base, a.commission); err != nil {
			return err
		}
		a.commission = 0
	}
	return nil
}
