// Package mm implements the page-frame cache and the memory-object
// layer that sits beneath the virtual memory subsystem and the
// filesystem's block I/O path. It corresponds to the pframe/mmobj
// layers (L0/L1) of the kernel: every provider of pages (anonymous
// zero-fill memory, raw block devices, file-backed vnodes, and
// copy-on-write shadow chains) is an Mmobj, and every Mmobj shares the
// same pframe_get/lookup/dirty/clean/pin machinery implemented once in
// Base.
package mm

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
)

// Pager is the variant-specific half of the mmobj ops contract: how to
// populate, acknowledge-dirty, and write back a single page. A vfs
// vnode implements Pager directly so that FileObj can delegate to it
// without this package importing the vfs package.
type Pager interface {
	FillPage(pf *Pframe) errno.Errno
	DirtyPage(pf *Pframe) errno.Errno
	CleanPage(pf *Pframe) errno.Errno
}

// Mmobj is the full ops contract every memory-object variant satisfies.
type Mmobj interface {
	Pager
	Ref()
	Put()
	LookupPage(pagenum uint64, forwrite bool) (*Pframe, errno.Errno)
	GetResident(pagenum uint64) *Pframe
	RefCount() int
	ResidentCount() int
	// Bottom returns the non-shadow ancestor at the root of this
	// object's shadow chain, or the object itself if it is not a
	// shadow.
	Bottom() Mmobj
}

// parented is implemented only by shadow objects, letting generic code
// walk a shadow chain without this package exposing shadow internals
// on the Mmobj interface itself.
type parented interface {
	Parent() Mmobj
}

type fillJob struct {
	done chan struct{}
	pf   *Pframe
	err  errno.Errno
}

// Base implements the generic pframe cache machinery shared by every
// Mmobj variant: resident-page bookkeeping, refcounting, and
// at-most-one-fill-in-flight-per-page deduplication. Variants embed
// Base and supply FillPage/DirtyPage/CleanPage/Ref/Put/LookupPage.
type Base struct {
	mu       sync.Mutex
	refcount int
	resident map[uint64]*Pframe
	filling  map[uint64]*fillJob
	pool     *PagePool
}

func (b *Base) init(initialRefs int) {
	b.refcount = initialRefs
	b.resident = make(map[uint64]*Pframe)
	b.pool = defaultPool
}

// IncRef bumps the reference count.
func (b *Base) IncRef() {
	b.mu.Lock()
	b.refcount++
	b.mu.Unlock()
}

// DecRef drops the reference count and returns the resulting
// (refcount, residentCount) pair so callers can decide whether to
// reclaim without re-taking the lock.
func (b *Base) DecRef() (int, int) {
	b.mu.Lock()
	b.refcount--
	rc, nres := b.refcount, len(b.resident)
	b.mu.Unlock()
	return rc, nres
}

// RefCount returns the current reference count.
func (b *Base) RefCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refcount
}

// ResidentCount returns the number of currently resident pages.
func (b *Base) ResidentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.resident)
}

// GetResident performs a non-allocating lookup of an already-resident
// page, returning nil if the page is not cached.
func (b *Base) GetResident(pagenum uint64) *Pframe {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resident[pagenum]
}

// residentSnapshot returns every currently resident page, used by
// reclamation paths that must not hold the lock while cleaning pages
// (cleaning can block on device I/O).
func (b *Base) residentSnapshot() []*Pframe {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Pframe, 0, len(b.resident))
	for _, pf := range b.resident {
		out = append(out, pf)
	}
	return out
}

// Get implements pframe_get: resolve to the resident frame for
// pagenum, or allocate and fill one via self.FillPage. Concurrent
// callers racing on the same pagenum block on the first fill and share
// its result.
func (b *Base) Get(self Mmobj, pagenum uint64) (*Pframe, errno.Errno) {
	b.mu.Lock()
	if pf, ok := b.resident[pagenum]; ok {
		b.mu.Unlock()
		return pf, 0
	}
	if job, ok := b.filling[pagenum]; ok {
		b.mu.Unlock()
		<-job.done
		return job.pf, job.err
	}
	job := &fillJob{done: make(chan struct{})}
	if b.filling == nil {
		b.filling = make(map[uint64]*fillJob)
	}
	b.filling[pagenum] = job
	pool := b.pool
	b.mu.Unlock()

	frame, err := pool.Alloc()
	pf := &Pframe{Obj: self, Pagenum: pagenum}
	if err != nil {
		job.err = errno.ENOMEM
	} else {
		pf.Bytes = frame
		job.err = self.FillPage(pf)
	}
	job.pf = pf

	b.mu.Lock()
	delete(b.filling, pagenum)
	if job.err == 0 {
		// Each resident page holds one reference on its object, so the
		// resident count never exceeds the refcount.
		b.resident[pagenum] = pf
		b.refcount++
	} else if frame != nil {
		pool.Free(frame)
	}
	b.mu.Unlock()
	close(job.done)

	if job.err != 0 {
		return nil, job.err
	}
	return pf, 0
}

// Free implements pframe_free: remove pf from the resident set and
// release its frame. The precondition is pin=0 and not dirty; a dirty
// frame is cleaned first.
func (b *Base) Free(pf *Pframe) errno.Errno {
	if pf.Pinned() {
		return errno.EBUSY
	}
	if err := pf.Clean(); err != 0 {
		return errno.Errno(err)
	}
	b.mu.Lock()
	delete(b.resident, pf.Pagenum)
	b.refcount--
	pool := b.pool
	b.mu.Unlock()
	pool.Free(pf.Bytes)
	pf.Bytes = nil
	return 0
}

// reclaimAll force-unpins, cleans, and frees every resident page. Used
// when an anonymous or shadow object's refcount drops to its resident
// count: nothing outside the object itself can still be using these
// pages, so outstanding pins (taken by the object's own FillPage) are
// no longer meaningful.
func (b *Base) reclaimAll() {
	for _, pf := range b.residentSnapshot() {
		pf.resetPin()
		if err := b.Free(pf); err != 0 {
			panic("mm: reclaim of unreclaimable page")
		}
	}
}
