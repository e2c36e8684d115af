package mm

import "sync"

// Pframe binds one physical frame to a single (object, page number)
// key. At most one Pframe exists for a given key at a time (enforced
// by Base.Get's fill de-duplication), and a Pframe always belongs to
// exactly one Mmobj.
type Pframe struct {
	Obj     Mmobj
	Pagenum uint64
	Bytes   []byte

	mu    sync.Mutex
	dirty bool
	pin   int
}

// Dirty marks the frame dirty, calling the owning object's DirtyPage
// hook the first time (an object may need to allocate backing storage
// for a page that was previously sparse, e.g. S5FS block allocation).
func (pf *Pframe) Dirty() int {
	pf.mu.Lock()
	already := pf.dirty
	pf.mu.Unlock()
	if !already {
		if err := pf.Obj.DirtyPage(pf); err != 0 {
			return int(err)
		}
	}
	pf.mu.Lock()
	pf.dirty = true
	pf.mu.Unlock()
	return 0
}

// Clean writes the frame back via the owning object's CleanPage hook
// if it is dirty, then clears the dirty flag. A no-op on a clean page.
func (pf *Pframe) Clean() int {
	pf.mu.Lock()
	d := pf.dirty
	pf.mu.Unlock()
	if !d {
		return 0
	}
	if err := pf.Obj.CleanPage(pf); err != 0 {
		return int(err)
	}
	pf.mu.Lock()
	pf.dirty = false
	pf.mu.Unlock()
	return 0
}

// IsDirty reports the current dirty flag.
func (pf *Pframe) IsDirty() bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.dirty
}

// Pin increments the pin count, preventing reclamation.
func (pf *Pframe) Pin() {
	pf.mu.Lock()
	pf.pin++
	pf.mu.Unlock()
}

// Unpin decrements the pin count. Unpinning an already-unpinned frame
// is a programmer error.
func (pf *Pframe) Unpin() {
	pf.mu.Lock()
	if pf.pin == 0 {
		pf.mu.Unlock()
		panic("pframe: unpin of unpinned frame")
	}
	pf.pin--
	pf.mu.Unlock()
}

// Pinned reports whether the frame has a nonzero pin count.
func (pf *Pframe) Pinned() bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.pin > 0
}

// resetPin forcibly clears the pin count. Used only when an anonymous
// or shadow object reclaims all of its pages at Put time: such pages
// are pinned for the object's own lifetime, not by any external
// borrower, so there is nobody left to call Unpin.
func (pf *Pframe) resetPin() {
	pf.mu.Lock()
	pf.pin = 0
	pf.mu.Unlock()
}
