package mm

import "github.com/Metalgear47/Weenix/internal/errno"

// Shadow implements copy-on-write. Reads fall through its shadowed
// parent (recursively, down to bottom, the non-shadow object at the
// root of the chain); a write-fault fills a private page in the
// shadow itself, copied from the nearest ancestor that has it.
// Grounded on vm/shadow.c's lookuppage/fillpage split described in
// a copy-on-write memory object.
type Shadow struct {
	Base
	shadowed Mmobj
	bottom   Mmobj
}

// NewShadow creates a shadow object over shadowed, taking a reference
// on both shadowed and its bottom ancestor.
func NewShadow(shadowed Mmobj) *Shadow {
	s := &Shadow{shadowed: shadowed, bottom: shadowed.Bottom()}
	s.init(1)
	shadowed.Ref()
	s.bottom.Ref()
	return s
}

func (s *Shadow) Ref() { s.IncRef() }

func (s *Shadow) Put() {
	rc, nres := s.DecRef()
	if rc == nres {
		s.reclaimAll()
		s.shadowed.Put()
		s.bottom.Put()
	}
}

func (s *Shadow) Bottom() Mmobj { return s.bottom }

// Parent exposes the immediate shadowed ancestor so generic chain-walk
// code (LookupPage's read path, and sibling shadows' FillPage) can
// descend without this package exporting shadow internals broadly.
func (s *Shadow) Parent() Mmobj { return s.shadowed }

func (s *Shadow) LookupPage(pagenum uint64, forwrite bool) (*Pframe, errno.Errno) {
	if forwrite {
		return s.Get(s, pagenum)
	}
	var cur Mmobj = s
	for {
		if pf := cur.GetResident(pagenum); pf != nil {
			return pf, 0
		}
		p, ok := cur.(parented)
		if !ok {
			break
		}
		cur = p.Parent()
	}
	return s.bottom.LookupPage(pagenum, false)
}

// FillPage populates a private copy-on-write page: copy from the
// nearest ancestor that already has the page resident, falling back
// to an allocating lookup against bottom if nobody does.
func (s *Shadow) FillPage(pf *Pframe) errno.Errno {
	var cur Mmobj = s.shadowed
	for {
		if src := cur.GetResident(pf.Pagenum); src != nil {
			copy(pf.Bytes, src.Bytes)
			pf.Pin()
			return 0
		}
		p, ok := cur.(parented)
		if !ok {
			break
		}
		cur = p.Parent()
	}
	src, err := s.bottom.LookupPage(pf.Pagenum, false)
	if err != 0 {
		return err
	}
	copy(pf.Bytes, src.Bytes)
	pf.Pin()
	return 0
}

func (s *Shadow) DirtyPage(pf *Pframe) errno.Errno { return 0 }
func (s *Shadow) CleanPage(pf *Pframe) errno.Errno { return 0 }
