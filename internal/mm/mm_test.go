package mm

import (
	"testing"

	"github.com/Metalgear47/Weenix/internal/errno"
)

func TestAnonFillZeroed(t *testing.T) {
	a := NewAnon()
	pf, err := a.LookupPage(0, false)
	if err != 0 {
		t.Fatalf("lookuppage: %v", err)
	}
	for i, b := range pf.Bytes {
		if b != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}
	if a.ResidentCount() != 1 {
		t.Fatalf("resident count = %d, want 1", a.ResidentCount())
	}
}

func TestGetResidentMatchesGet(t *testing.T) {
	a := NewAnon()
	pf1, _ := a.LookupPage(3, false)
	pf2 := a.GetResident(3)
	if pf1 != pf2 {
		t.Fatalf("two lookups of same key returned different frames")
	}
}

func TestAnonNoReclaimWhileRefExceedsResident(t *testing.T) {
	a := NewAnon()
	a.LookupPage(0, false)
	a.LookupPage(1, false)
	a.Ref() // refcount 4: one initial, one per resident page, one extra
	a.Put() // refcount -> 3, resident 2: 3 != 2, must not reclaim
	if a.ResidentCount() != 2 {
		t.Fatalf("reclaimed too early, resident = %d", a.ResidentCount())
	}
}

func TestAnonReclaimWhenRefEqualsResident(t *testing.T) {
	a := NewAnon()
	a.LookupPage(0, false)
	// refcount=2 (the initial reference plus the resident page's),
	// resident=1; dropping the vmarea's reference brings refcount down
	// to the resident count.
	a.Put()
	if a.ResidentCount() != 0 {
		t.Fatalf("expected reclaim, resident = %d", a.ResidentCount())
	}
}

func TestShadowReadFallsThroughToBottom(t *testing.T) {
	bottom := NewAnon()
	pf, _ := bottom.LookupPage(0, false)
	pf.Bytes[0] = 0xAB

	sh := NewShadow(bottom)
	spf, err := sh.LookupPage(0, false)
	if err != 0 {
		t.Fatalf("lookuppage: %v", err)
	}
	if spf.Bytes[0] != 0xAB {
		t.Fatalf("shadow read-through got %x, want 0xAB", spf.Bytes[0])
	}
	if sh.ResidentCount() != 0 {
		t.Fatalf("read-only lookup should not populate the shadow itself")
	}
}

func TestShadowWriteCopiesPrivately(t *testing.T) {
	bottom := NewAnon()
	bpf, _ := bottom.LookupPage(0, false)
	bpf.Bytes[0] = 1

	sh := NewShadow(bottom)
	wpf, err := sh.LookupPage(0, true)
	if err != 0 {
		t.Fatalf("lookuppage(forwrite): %v", err)
	}
	wpf.Bytes[0] = 2

	// the bottom object's page must be unaffected.
	if bpf.Bytes[0] != 1 {
		t.Fatalf("write through shadow mutated bottom page")
	}
	rpf, _ := sh.LookupPage(0, false)
	if rpf != wpf {
		t.Fatalf("read after write should see the shadow's own copy")
	}
}

func TestShadowChainOfTwo(t *testing.T) {
	bottom := NewAnon()
	mid := NewShadow(bottom)
	top := NewShadow(mid)

	if top.Bottom() != Mmobj(bottom) {
		t.Fatalf("bottom of chain should be the original anon object")
	}

	bpf, _ := bottom.LookupPage(5, false)
	bpf.Bytes[0] = 9
	tpf, err := top.LookupPage(5, false)
	if err != 0 {
		t.Fatalf("lookup: %v", err)
	}
	if tpf.Bytes[0] != 9 {
		t.Fatalf("chained read-through failed")
	}
}

func TestPframeDirtyCleanBlockDevice(t *testing.T) {
	dev := &fakeBlockDevice{blocks: map[uint64][]byte{}}
	bo := NewBlockDevObj(dev)
	pf, err := bo.LookupPage(2, false)
	if err != 0 {
		t.Fatalf("lookup: %v", err)
	}
	pf.Bytes[0] = 0x42
	if rc := pf.Dirty(); rc != 0 {
		t.Fatalf("dirty: %v", errno.Errno(rc))
	}
	if !pf.IsDirty() {
		t.Fatalf("expected dirty flag set")
	}
	if rc := pf.Clean(); rc != 0 {
		t.Fatalf("clean: %v", errno.Errno(rc))
	}
	if pf.IsDirty() {
		t.Fatalf("expected dirty flag cleared")
	}
	if dev.blocks[2][0] != 0x42 {
		t.Fatalf("cleanpage did not write back")
	}
}

func TestFreeRequiresUnpinned(t *testing.T) {
	a := NewAnon()
	pf, _ := a.LookupPage(0, false) // anon fill pins the page
	if err := a.Free(pf); err != errno.EBUSY {
		t.Fatalf("free of pinned page = %v, want EBUSY", err)
	}
	pf.Unpin()
	if err := a.Free(pf); err != 0 {
		t.Fatalf("free after unpin: %v", err)
	}
	if a.GetResident(0) != nil {
		t.Fatalf("page still resident after free")
	}
}

type fakeBlockDevice struct {
	blocks map[uint64][]byte
}

func (f *fakeBlockDevice) ReadBlock(blockno uint64, buf []byte) errno.Errno {
	if b, ok := f.blocks[blockno]; ok {
		copy(buf, b)
	}
	return 0
}

func (f *fakeBlockDevice) WriteBlock(blockno uint64, buf []byte) errno.Errno {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.blocks[blockno] = cp
	return 0
}
