// Package vm defines the narrow virtual-memory contract the allocators
// consume: reserve/release address space, commit/decommit physical
// backing for a subrange, mark a subrange accessible or no-access, query
// whether a byte is committed, and force a page in.
package vm

import "vmem/kernel"

// Provider is the VM layer the linear and granular allocators are built
// on. Callers pre-align to PageGranularity() themselves where the
// underlying host requires it; Provider never silently rounds its
// arguments.
type Provider interface {
	// PageGranularity returns the minimum unit of commit/decommit. It is
	// always a power of two.
	PageGranularity() kernel.Size

	// Reserve claims size bytes of address space with no physical
	// backing and returns its base address, or kernel.NoAddress on
	// failure.
	Reserve(size kernel.Size) (kernel.Address, error)

	// Release returns a previously reserved range to the host.
	Release(addr kernel.Address, size kernel.Size) error

	// Commit adds physical backing to a page-aligned subrange of a
	// reservation. Committed memory is readable and writable.
	Commit(addr kernel.Address, size kernel.Size) error

	// Decommit removes physical backing from a subrange. Decommit is
	// idempotent.
	Decommit(addr kernel.Address, size kernel.Size) error

	// Validate marks a subrange read/write. Used by debug-checked
	// allocator variants to re-arm the live range.
	Validate(addr kernel.Address, size kernel.Size) error

	// Invalidate marks a subrange no-access, so stray reads/writes trap
	// at the OS level. Used by debug-checked allocator variants.
	Invalidate(addr kernel.Address, size kernel.Size) error

	// Committed reports whether every byte in the given subrange is
	// currently backed by physical memory.
	Committed(addr kernel.Address, size kernel.Size) (bool, error)

	// Touch forces every page covering the subrange to be faulted in by
	// performing a read-modify-write of one byte per page; it does not
	// change the bytes observed by the caller.
	Touch(addr kernel.Address, size kernel.Size) error
}
