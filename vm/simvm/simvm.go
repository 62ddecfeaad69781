// Package simvm implements vm.Provider entirely in Go, backed by a plain
// byte arena and a per-page committed bitset instead of real mmap calls.
// It lets the allocator and property tests exercise every VM operation —
// including decommit/recommit cycles and Committed queries — without
// depending on host OS permissions.
package simvm

import (
	"sort"
	"unsafe"

	"vmem/align"
	"vmem/kernel"
	"vmem/vm"
)

const defaultPageSize = kernel.Size(4096)

type region struct {
	base      kernel.Address
	raw       []byte // backing allocation; base may be offset into it for page alignment
	arena     []byte // [base, base+size) view into raw
	pageSize  kernel.Size
	committed []bool // one entry per page
}

func (r *region) pageIndex(addr kernel.Address) int {
	return int((addr - r.base) / kernel.Address(r.pageSize))
}

// Provider is a vm.Provider backed by Go byte slices.
type Provider struct {
	pageSize kernel.Size
	regions  []*region // sorted by base
}

// New returns a simulated vm.Provider. pageSize, if zero, defaults to
// 4096.
func New(pageSize kernel.Size) *Provider {
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	return &Provider{pageSize: pageSize}
}

// PageGranularity implements vm.Provider.
func (p *Provider) PageGranularity() kernel.Size { return p.pageSize }

func (p *Provider) find(addr kernel.Address) *region {
	i := sort.Search(len(p.regions), func(i int) bool { return p.regions[i].base >= addr })
	if i < len(p.regions) && p.regions[i].base == addr {
		return p.regions[i]
	}
	// addr may point into the interior of a region.
	for _, r := range p.regions {
		if addr >= r.base && addr < r.base+kernel.Address(len(r.arena)) {
			return r
		}
	}
	return nil
}

// Reserve implements vm.Provider.
func (p *Provider) Reserve(size kernel.Size) (kernel.Address, error) {
	if size == 0 {
		return kernel.NoAddress, nil
	}
	pages := int((size + p.pageSize - 1) / p.pageSize)
	// Real mmap always returns a page-aligned base; over-allocate and
	// round up so simvm addresses behave the same way under alignment
	// arithmetic instead of inheriting whatever alignment Go's own
	// allocator happened to pick for the backing slice.
	raw := make([]byte, size+p.pageSize)
	rawBase := kernel.Size(uintptr(unsafe.Pointer(&raw[0])))
	alignedBase := align.AlignUp(rawBase, p.pageSize)
	off := alignedBase - rawBase

	r := &region{
		raw:       raw,
		arena:     raw[off : off+size],
		pageSize:  p.pageSize,
		committed: make([]bool, pages),
	}
	r.base = kernel.Address(alignedBase)

	i := sort.Search(len(p.regions), func(i int) bool { return p.regions[i].base >= r.base })
	p.regions = append(p.regions, nil)
	copy(p.regions[i+1:], p.regions[i:])
	p.regions[i] = r
	return r.base, nil
}

// Release implements vm.Provider.
func (p *Provider) Release(addr kernel.Address, _ kernel.Size) error {
	for i, r := range p.regions {
		if r.base == addr {
			p.regions = append(p.regions[:i], p.regions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *Provider) setCommitted(addr kernel.Address, size kernel.Size, val bool) error {
	if size == 0 {
		return nil
	}
	r := p.find(addr)
	if r == nil {
		return &kernel.Error{Op: "vm/simvm", Message: "address not in any reservation"}
	}
	start := r.pageIndex(addr)
	end := r.pageIndex(addr + kernel.Address(size-1))
	for i := start; i <= end; i++ {
		r.committed[i] = val
	}
	if !val {
		// Simulate the OS dropping the physical backing: zero the bytes
		// so stale data never survives a decommit/recommit cycle, and a
		// freshly recommitted page reads back as zero per host contract.
		lo := kernel.Size(start) * r.pageSize
		hi := kernel.Size(end+1) * r.pageSize
		if hi > kernel.Size(len(r.arena)) {
			hi = kernel.Size(len(r.arena))
		}
		for i := lo; i < hi; i++ {
			r.arena[i] = 0
		}
	}
	return nil
}

// Commit implements vm.Provider.
func (p *Provider) Commit(addr kernel.Address, size kernel.Size) error {
	return p.setCommitted(addr, size, true)
}

// Decommit implements vm.Provider. It is idempotent.
func (p *Provider) Decommit(addr kernel.Address, size kernel.Size) error {
	return p.setCommitted(addr, size, false)
}

// Validate implements vm.Provider. The simulated provider does not trap
// stray accesses (there is no OS page-fault layer to hook), so Validate
// is a no-op beyond bookkeeping parity with Commit.
func (p *Provider) Validate(addr kernel.Address, size kernel.Size) error {
	return nil
}

// Invalidate implements vm.Provider; see Validate.
func (p *Provider) Invalidate(addr kernel.Address, size kernel.Size) error {
	return nil
}

// Committed implements vm.Provider.
func (p *Provider) Committed(addr kernel.Address, size kernel.Size) (bool, error) {
	if size == 0 {
		return true, nil
	}
	r := p.find(addr)
	if r == nil {
		return false, &kernel.Error{Op: "vm/simvm", Message: "address not in any reservation"}
	}
	start := r.pageIndex(addr)
	end := r.pageIndex(addr + kernel.Address(size-1))
	for i := start; i <= end; i++ {
		if !r.committed[i] {
			return false, nil
		}
	}
	return true, nil
}

// Touch implements vm.Provider; it is a no-op since simvm pages are
// always immediately "resident" once committed.
func (p *Provider) Touch(addr kernel.Address, size kernel.Size) error {
	return nil
}

var _ vm.Provider = (*Provider)(nil)
