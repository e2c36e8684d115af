// Package vm implements the address-space map: the ordered, disjoint
// list of mapped regions (vmareas) backing a process's virtual memory,
// the page-fault handler that resolves a fault through an area's
// memory object, and do_mmap/do_munmap. It sits directly on top of
// internal/mm's page-frame cache and memory-object layer.
package vm

import (
	"github.com/Metalgear47/Weenix/internal/mm"
)

// The Prot and MapFlags constants are defined in prot.go against the raw mmap bit
// values golang.org/x/sys/unix exposes, so a syscall-dispatch layer
// can pass a trap frame's prot/flags argument straight through.
type Prot int

// MapFlags selects sharing and backing-store semantics for a mapping.
type MapFlags int

// Direction picks which end of the address space vmmap_find_range
// searches from.
type Direction int

const (
	LoHi Direction = iota
	HiLo
)

// PageSize mirrors mm.PageSize: one vmarea page is one page-frame.
const PageSize = mm.PageSize

// Area is one mapped region: a half-open page range [Start, Start+
// Npages) backed by Obj starting at object-page Off, with the
// permission and sharing policy recorded at mmap time.
type Area struct {
	Start  uint64
	Npages uint64
	Off    uint64
	Prot   Prot
	Flags  MapFlags
	Obj    mm.Mmobj
}

func (a *Area) end() uint64 { return a.Start + a.Npages }

func (a *Area) contains(vpn uint64) bool {
	return vpn >= a.Start && vpn < a.end()
}

func (a *Area) overlaps(lo, npages uint64) bool {
	hi := lo + npages
	return a.Start < hi && lo < a.end()
}

// objPagenum translates a virtual page number within this area to the
// corresponding page number in the area's memory object.
func (a *Area) objPagenum(vpn uint64) uint64 {
	return vpn - a.Start + a.Off
}

// clone returns a shallow copy of the area sharing the same Obj
// reference; the caller is responsible for bumping the refcount.
func (a *Area) clone() *Area {
	c := *a
	return &c
}
