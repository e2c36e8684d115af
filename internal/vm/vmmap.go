package vm

import (
	"sort"
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/mm"
)

// Map is one process's address-space map: an ordered, disjoint list of
// vmareas. Every mutation keeps the list sorted by
// Start with no overlapping entries.
type Map struct {
	mu    sync.Mutex
	areas []*Area

	// Npages bounds the addressable page range [0, Npages), standing
	// in for the fixed-size user address space a real page table would
	// enforce.
	Npages uint64
}

// NewMap returns an empty address-space map spanning npages pages.
func NewMap(npages uint64) *Map {
	return &Map{Npages: npages}
}

// Destroy drops every area's object reference. The map itself is left
// empty and can be discarded.
func (m *Map) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.areas {
		a.Obj.Put()
	}
	m.areas = nil
}

// insertLocked inserts area in sorted position. The caller must hold
// m.mu and must already have verified the region doesn't overlap.
func (m *Map) insertLocked(area *Area) {
	i := sort.Search(len(m.areas), func(i int) bool { return m.areas[i].Start >= area.Start })
	m.areas = append(m.areas, nil)
	copy(m.areas[i+1:], m.areas[i:])
	m.areas[i] = area
}

// Insert adds area to the map. Panics on overlap, matching the
// spec's "asserts no overlap" contract: an overlapping Insert is a
// programmer error in the caller, not a recoverable condition.
func (m *Map) Insert(area *Area) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.areas {
		if a.overlaps(area.Start, area.Npages) {
			panic("vm: overlapping vmarea insert")
		}
	}
	m.insertLocked(area)
}

// FindRange locates the first (LoHi) or last (HiLo) gap of at least
// npages pages and returns its starting page number.
func (m *Map) FindRange(npages uint64, dir Direction) (uint64, errno.Errno) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir == LoHi {
		prev := uint64(0)
		for _, a := range m.areas {
			if a.Start-prev >= npages {
				return prev, 0
			}
			prev = a.end()
		}
		if m.Npages-prev >= npages {
			return prev, 0
		}
		return 0, errno.ENOMEM
	}

	next := m.Npages
	for i := len(m.areas) - 1; i >= 0; i-- {
		a := m.areas[i]
		if next-a.end() >= npages {
			return next - npages, 0
		}
		next = a.Start
	}
	if next >= npages {
		return next - npages, 0
	}
	return 0, errno.ENOMEM
}

// Lookup returns the area containing vpn, or nil.
func (m *Map) Lookup(vpn uint64) *Area {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.areas {
		if a.contains(vpn) {
			return a
		}
	}
	return nil
}

// IsRangeEmpty reports whether [lopage, lopage+npages) overlaps no
// existing area.
func (m *Map) IsRangeEmpty(lopage, npages uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.areas {
		if a.overlaps(lopage, npages) {
			return false
		}
	}
	return true
}

// Clone produces a deep copy of the area list: each new Area is a
// fresh struct, but shares (with an incremented reference) the
// original's memory object. Used by do_fork before the caller rewires
// PRIVATE areas onto fresh shadow objects.
func (m *Map) Clone() *Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &Map{Npages: m.Npages}
	out.areas = make([]*Area, len(m.areas))
	for i, a := range m.areas {
		a.Obj.Ref()
		out.areas[i] = a.clone()
	}
	return out
}

// Areas returns a snapshot slice of the map's current areas, ordered
// by Start. Used by fork's PRIVATE-area rewiring pass.
func (m *Map) Areas() []*Area {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Area, len(m.areas))
	copy(out, m.areas)
	return out
}

// Map installs a new mapping. If obj is nil, a fresh anonymous object
// backs the mapping. If flags includes MapPriv, the object is wrapped
// in a shadow so writes are copy-on-write against whatever obj was
// passed in. lopage=0 asks FindRange (honoring dir) to pick the
// location; a nonzero lopage that overlaps existing areas first
// clears the overlap, matching vmmap_map's "only once no further
// failure is possible" ordering.
func (m *Map) Map(obj mm.Mmobj, lopage, npages uint64, prot Prot, flags MapFlags, off uint64, dir Direction) (*Area, errno.Errno) {
	if npages == 0 {
		return nil, errno.EINVAL
	}

	start := lopage
	if start == 0 {
		var err errno.Errno
		start, err = m.FindRange(npages, dir)
		if err != 0 {
			return nil, err
		}
	} else if start+npages > m.Npages {
		return nil, errno.EINVAL
	}

	if obj == nil {
		obj = mm.NewAnon()
	} else {
		obj.Ref()
	}
	if flags&MapPriv != 0 {
		obj = mm.NewShadow(obj)
	}

	area := &Area{Start: start, Npages: npages, Off: off, Prot: prot, Flags: flags, Obj: obj}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(start, npages)
	m.insertLocked(area)
	return area, 0
}

// Remove unmaps [lopage, lopage+npages), splitting or trimming any
// area that only partially overlaps the removed range (the four
// 4.4's four overlap cases).
func (m *Map) Remove(lopage, npages uint64) errno.Errno {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(lopage, npages)
	return 0
}

func (m *Map) removeLocked(lopage, npages uint64) {
	hi := lopage + npages
	var kept []*Area
	for _, a := range m.areas {
		if !a.overlaps(lopage, npages) {
			kept = append(kept, a)
			continue
		}

		switch {
		case a.Start >= lopage && a.end() <= hi:
			// full cover: drop the whole area.
			a.Obj.Put()

		case a.Start < lopage && a.end() > hi:
			// wholly contained: split into a left remainder and a
			// right remainder, each holding its own reference.
			left := &Area{Start: a.Start, Npages: lopage - a.Start, Off: a.Off, Prot: a.Prot, Flags: a.Flags, Obj: a.Obj}
			a.Obj.Ref()
			right := &Area{Start: hi, Npages: a.end() - hi, Off: a.Off + (hi - a.Start), Prot: a.Prot, Flags: a.Flags, Obj: a.Obj}
			kept = append(kept, left, right)

		case a.Start < lopage:
			// right-overlap: truncate the tail.
			a.Npages = lopage - a.Start
			kept = append(kept, a)

		default:
			// left-overlap: advance the start and the object offset.
			delta := hi - a.Start
			a.Start = hi
			a.Off += delta
			a.Npages -= delta
			kept = append(kept, a)
		}
	}
	m.areas = kept
}

// Read copies len(buf) bytes starting at virtual byte address addr
// into buf, faulting pages in as needed.
func (m *Map) Read(addr uint64, buf []byte) errno.Errno {
	return m.copy(addr, buf, false)
}

// Write copies buf into the mapped range starting at addr, dirtying
// each page touched.
func (m *Map) Write(addr uint64, buf []byte) errno.Errno {
	return m.copy(addr, buf, true)
}

func (m *Map) copy(addr uint64, buf []byte, write bool) errno.Errno {
	off := 0
	remaining := len(buf)
	for remaining > 0 {
		cur := addr + uint64(off)
		vpn := cur / PageSize
		pageoff := int(cur % PageSize)
		area := m.Lookup(vpn)
		if area == nil {
			return errno.EFAULT
		}
		pf, err := area.Obj.LookupPage(area.objPagenum(vpn), write)
		if err != 0 {
			return err
		}
		chunk := PageSize - pageoff
		if chunk > remaining {
			chunk = remaining
		}
		if write {
			copy(pf.Bytes[pageoff:pageoff+chunk], buf[off:off+chunk])
			if rc := pf.Dirty(); rc != 0 {
				return errno.Errno(rc)
			}
		} else {
			copy(buf[off:off+chunk], pf.Bytes[pageoff:pageoff+chunk])
		}
		off += chunk
		remaining -= chunk
	}
	return 0
}
