// Package granular implements the fixed-granularity block (pool)
// allocator over a single reservation: the low end holds blocks growing
// forward, the high end holds a reverse-growing occupancy bitmap, and
// Put/Pop find and mark runs of free bits to claim or release a run of
// slots.
package granular

import (
	"vmem/align"
	"vmem/config"
	"vmem/kernel"
	"vmem/vm"
)

var (
	errNoProvider = &kernel.Error{Op: "granular", Message: "no vm.Provider configured"}
	errNotInitialized = &kernel.Error{
		Op:      "granular",
		Message: "allocator not initialized and automatic initialization is disabled",
	}
	errReserveFailed    = &kernel.Error{Op: "granular.Initialize", Message: "vm provider failed to reserve address space"}
	errReservationSmall = &kernel.Error{Op: "granular.Initialize", Message: "reservation too small for quantity*granularity plus the bitmap"}
	errOutOfSlots       = &kernel.Error{Op: "granular.Put", Message: "no run of free slots large enough"}
)

const bitsPerWord = 64

// Allocator is a fixed-granularity block allocator. The zero Allocator
// is valid: reservation, granularity and quantity are filled from
// Config on first use, but VM must be set by the caller.
type Allocator struct {
	// VM is the virtual-memory provider backing this allocator. Required.
	VM vm.Provider

	// Config supplies the DEFAULT_* values and the automatic
	// initialization / debugging-alias switches.
	Config config.Config

	reservation kernel.Size
	base        kernel.Address
	granularity kernel.Size
	quantity    int

	numWords       int // ceil(quantity/64); fixed for the allocator's lifetime
	committedWords int // count of k-words (0..numWords) whose bitmap backing is committed

	initialized bool
}

// Create constructs and initializes an Allocator in one call.
func Create(reservation, granularity kernel.Size, quantity int, provider vm.Provider, opts ...config.Option) (*Allocator, error) {
	a := &Allocator{
		reservation: reservation,
		granularity: granularity,
		quantity:    quantity,
		VM:          provider,
		Config:      config.New(opts...),
	}
	if err := a.Initialize(); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize fills every zero field of a from Config, reserves and
// commits the block region and the bitmap backing, and marks every slot
// free.
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
	if a.granularity == 0 {
		a.granularity = cfg.Granularity
	}
	if a.quantity == 0 {
		a.quantity = cfg.Quantity
	}

	a.numWords = (a.quantity + bitsPerWord - 1) / bitsPerWord
	blockBytes := kernel.Size(a.quantity) * a.granularity
	bitmapBytes := kernel.Size(a.numWords) * 8
	if blockBytes+bitmapBytes > a.reservation {
		return errReservationSmall
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

	if blockBytes > 0 {
		if err := a.VM.Commit(a.base, blockBytes); err != nil {
			return err
		}
	}

	page := a.VM.PageGranularity()
	low := a.lowestWordAddr()
	high := a.base.Add(a.reservation)
	commitLow := align.AlignDown(kernel.Size(low), page)
	if err := a.VM.Commit(kernel.Address(commitLow), kernel.Size(high)-commitLow); err != nil {
		return err
	}
	a.committedWords = a.numWords

	a.setAllFree()
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

// Base returns the reservation's base address, or kernel.NoAddress
// before the allocator has been initialized.
func (a *Allocator) Base() kernel.Address { return a.base }

// Granularity returns the bytes-per-slot.
func (a *Allocator) Granularity() kernel.Size { return a.granularity }

// Quantity returns the maximum slot count.
func (a *Allocator) Quantity() int { return a.quantity }

// anchorAddr is the address of word 0: the highest-addressed bitmap
// word, 8 bytes below the top of the reservation.
func (a *Allocator) anchorAddr() kernel.Address {
	return a.base.Add(a.reservation - 8)
}

// lowestWordAddr is the address of the lowest-addressed (highest-k)
// bitmap word, i.e. the base of the full bitmap region.
func (a *Allocator) lowestWordAddr() kernel.Address {
	return a.base.Add(a.reservation - kernel.Size(a.numWords)*8)
}

// blockCeil returns the number of granularity-sized slots size occupies.
func (a *Allocator) blockCeil(size kernel.Size) int {
	return int((size + a.granularity - 1) / a.granularity)
}
