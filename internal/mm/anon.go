package mm

import "github.com/Metalgear47/Weenix/internal/errno"

// Anon is the anonymous memory object: a pure zero-fill page source
// with no backing store, used for heap, stack, and MAP_ANON mappings.
// Grounded on vm/anon.c's contract in the source material: fillpage
// zeroes and pins a page for the object's lifetime; the object
// self-destructs once its refcount falls to its resident-page count.
type Anon struct {
	Base
}

// NewAnon returns a fresh anonymous object with one reference.
func NewAnon() *Anon {
	a := &Anon{}
	a.init(1)
	return a
}

func (a *Anon) Ref() { a.IncRef() }

func (a *Anon) Put() {
	rc, nres := a.DecRef()
	if rc == nres {
		a.reclaimAll()
	}
}

func (a *Anon) FillPage(pf *Pframe) errno.Errno {
	for i := range pf.Bytes {
		pf.Bytes[i] = 0
	}
	pf.Pin()
	return 0
}

func (a *Anon) DirtyPage(pf *Pframe) errno.Errno { return 0 }
func (a *Anon) CleanPage(pf *Pframe) errno.Errno { return 0 }

func (a *Anon) LookupPage(pagenum uint64, forwrite bool) (*Pframe, errno.Errno) {
	return a.Get(a, pagenum)
}

func (a *Anon) Bottom() Mmobj { return a }
