package vm

import (
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/mm"
)

// DoMmap implements the mmap syscall's address-space-map half: pick or
// validate a page range, wrap obj in a shadow for MAP_PRIVATE, and
// install the resulting area. obj may be nil for an anonymous mapping.
// addr is a byte address; a zero addr lets the map choose the location
// via FindRange, with or without MAP_FIXED, so a fixed mapping at
// address 0 is not placed there unless FindRange picks page 0.
func DoMmap(m *Map, addr uint64, length int, prot Prot, flags MapFlags, obj mm.Mmobj, off uint64) (uint64, errno.Errno) {
	if length <= 0 {
		return 0, errno.EINVAL
	}
	if flags&(MapShared|MapPriv) == 0 || flags&MapShared != 0 && flags&MapPriv != 0 {
		return 0, errno.EINVAL
	}

	npages := (uint64(length) + PageSize - 1) / PageSize
	var lopage uint64
	if flags&MapFixed != 0 {
		if addr%PageSize != 0 {
			return 0, errno.EINVAL
		}
		lopage = addr / PageSize
		if lopage+npages > m.Npages {
			return 0, errno.EINVAL
		}
	}

	area, err := m.Map(obj, lopage, npages, prot, flags, off/PageSize, LoHi)
	if err != 0 {
		return 0, err
	}
	return area.Start * PageSize, 0
}

// DoMunmap implements the munmap syscall: drop the mapping covering
// [addr, addr+length), splitting any area that only partially
// overlaps the range.
func DoMunmap(m *Map, addr uint64, length int) errno.Errno {
	if length <= 0 || addr%PageSize != 0 {
		return errno.EINVAL
	}
	npages := (uint64(length) + PageSize - 1) / PageSize
	return m.Remove(addr/PageSize, npages)
}

// Fork produces a child address-space map for do_fork: a structural
// clone of parent in which every MAP_PRIVATE area is rewired onto a
// fresh pair of shadow objects, one held by the parent's area and one
// by the child's, both shadowing the object the area pointed at
// before the fork. MAP_SHARED areas are left pointing at the same
// object in both maps, so writes through either stay visible to the
// other (the fork copy-on-write algorithm).
func Fork(parent *Map) *Map {
	child := parent.Clone()

	parentAreas := parent.Areas()
	childAreas := child.Areas()
	for i, pa := range parentAreas {
		if pa.Flags&MapPriv == 0 {
			continue
		}
		ca := childAreas[i]
		old := pa.Obj

		shadowParent := mm.NewShadow(old)
		shadowChild := mm.NewShadow(old)
		old.Put()
		old.Put()

		pa.Obj = shadowParent
		ca.Obj = shadowChild
	}
	return child
}
