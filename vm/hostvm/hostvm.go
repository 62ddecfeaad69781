//go:build unix

// Package hostvm implements vm.Provider over the host operating system's
// real virtual memory using golang.org/x/sys/unix: Reserve maps a
// PROT_NONE anonymous range, Commit/Decommit flip page protection and
// (on decommit) advise the kernel to drop the physical backing,
// Validate/Invalidate are aliases for the same protection flip used by
// the debug-checked allocator variants, and Committed queries residency
// via mincore.
package hostvm

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"vmem/kernel"
	"vmem/vm"
)

var errOp = &kernel.Error{Op: "vm/hostvm"}

// Provider is a vm.Provider backed by mmap/mprotect/madvise.
type Provider struct {
	pageSize kernel.Size
}

// New returns a host-backed vm.Provider.
func New() *Provider {
	return &Provider{pageSize: kernel.Size(os.Getpagesize())}
}

// PageGranularity implements vm.Provider.
func (p *Provider) PageGranularity() kernel.Size { return p.pageSize }

func view(addr kernel.Address, size kernel.Size) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), int(size))
}

// Reserve implements vm.Provider.
func (p *Provider) Reserve(size kernel.Size) (kernel.Address, error) {
	if size == 0 {
		return kernel.NoAddress, nil
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return kernel.NoAddress, errOp.WithErr(err)
	}
	return kernel.Address(uintptr(unsafe.Pointer(&b[0]))), nil
}

// Release implements vm.Provider.
func (p *Provider) Release(addr kernel.Address, size kernel.Size) error {
	if size == 0 {
		return nil
	}
	if err := unix.Munmap(view(addr, size)); err != nil {
		return errOp.WithErr(err)
	}
	return nil
}

// Commit implements vm.Provider.
func (p *Provider) Commit(addr kernel.Address, size kernel.Size) error {
	if size == 0 {
		return nil
	}
	if err := unix.Mprotect(view(addr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return errOp.WithErr(err)
	}
	return nil
}

// Decommit implements vm.Provider. It is idempotent: re-decommitting an
// already no-access range just repeats the madvise/mprotect calls.
func (p *Provider) Decommit(addr kernel.Address, size kernel.Size) error {
	if size == 0 {
		return nil
	}
	b := view(addr, size)
	// Drop the physical pages before revoking access so a concurrent
	// reader (there should be none per the no-thread-safety contract,
	// but debug builds may still be mid-Invalidate) never observes stale
	// data through a momentarily-valid mapping.
	_ = unix.Madvise(b, unix.MADV_DONTNEED)
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return errOp.WithErr(err)
	}
	return nil
}

// Validate implements vm.Provider.
func (p *Provider) Validate(addr kernel.Address, size kernel.Size) error {
	if size == 0 {
		return nil
	}
	if err := unix.Mprotect(view(addr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return errOp.WithErr(err)
	}
	return nil
}

// Invalidate implements vm.Provider.
func (p *Provider) Invalidate(addr kernel.Address, size kernel.Size) error {
	if size == 0 {
		return nil
	}
	if err := unix.Mprotect(view(addr, size), unix.PROT_NONE); err != nil {
		return errOp.WithErr(err)
	}
	return nil
}

// Committed implements vm.Provider using mincore. The queried range must
// be page-aligned.
func (p *Provider) Committed(addr kernel.Address, size kernel.Size) (bool, error) {
	if size == 0 {
		return true, nil
	}
	vec := make([]byte, (int(size)+int(p.pageSize)-1)/int(p.pageSize))
	if err := unix.Mincore(view(addr, size), vec); err != nil {
		return false, errOp.WithErr(err)
	}
	for _, b := range vec {
		if b&1 == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Touch implements vm.Provider by reading and rewriting one byte per page
// to force each page to be faulted in without changing its contents.
func (p *Provider) Touch(addr kernel.Address, size kernel.Size) error {
	if size == 0 {
		return nil
	}
	b := view(addr, size)
	step := int(p.pageSize)
	for off := 0; off < len(b); off += step {
		b[off] = b[off]
	}
	return nil
}

var _ vm.Provider = (*Provider)(nil)
