package vm

import (
	"testing"

	"github.com/Metalgear47/Weenix/internal/errno"
)

func TestMapInsertKeepsSortedOrder(t *testing.T) {
	m := NewMap(100)
	a1, err := m.Map(nil, 10, 5, ProtRead|ProtWrite, MapPriv, 0, LoHi)
	if err != 0 {
		t.Fatalf("map a1: %v", err)
	}
	a2, err := m.Map(nil, 0, 5, ProtRead, MapPriv, 0, LoHi)
	if err != 0 {
		t.Fatalf("map a2: %v", err)
	}
	areas := m.Areas()
	if len(areas) != 2 || areas[0] != a2 || areas[1] != a1 {
		t.Fatalf("areas not sorted: %+v", areas)
	}
}

func TestMapClearsOverlapOnRemap(t *testing.T) {
	m := NewMap(100)
	if _, err := m.Map(nil, 0, 5, ProtRead, MapPriv, 0, LoHi); err != 0 {
		t.Fatalf("map: %v", err)
	}
	if _, err := m.Map(nil, 3, 5, ProtRead, MapPriv, 0, LoHi); err != 0 {
		t.Fatalf("overlapping map should clear and succeed: %v", err)
	}
	// The first area [0,5) should now be truncated to [0,3), and the
	// second [3,8) fully present; nothing should overlap.
	areas := m.Areas()
	for i := 1; i < len(areas); i++ {
		if areas[i-1].end() > areas[i].Start {
			t.Fatalf("areas overlap after remap: %+v", areas)
		}
	}
}

func TestFindRangeHonorsDirection(t *testing.T) {
	m := NewMap(100)
	m.Map(nil, 10, 10, ProtRead, MapPriv, 0, LoHi)

	lo, err := m.FindRange(5, LoHi)
	if err != 0 || lo != 0 {
		t.Fatalf("lohi find = %d, %v, want 0", lo, err)
	}
	hi, err := m.FindRange(5, HiLo)
	if err != 0 || hi != 95 {
		t.Fatalf("hilo find = %d, %v, want 95", hi, err)
	}
}

func TestRemoveSplitsWhollyContainedArea(t *testing.T) {
	m := NewMap(100)
	m.Map(nil, 0, 10, ProtRead|ProtWrite, MapPriv, 0, LoHi)
	if err := m.Remove(3, 2); err != 0 {
		t.Fatalf("remove: %v", err)
	}
	areas := m.Areas()
	if len(areas) != 2 {
		t.Fatalf("expected split into 2 areas, got %d", len(areas))
	}
	if areas[0].Start != 0 || areas[0].Npages != 3 {
		t.Fatalf("left remainder = %+v", areas[0])
	}
	if areas[1].Start != 5 || areas[1].Npages != 5 {
		t.Fatalf("right remainder = %+v", areas[1])
	}
}

func TestFaultRejectsWriteToReadOnlyArea(t *testing.T) {
	m := NewMap(100)
	m.Map(nil, 0, 1, ProtRead, MapPriv, 0, LoHi)
	if err := HandleFault(m, 0, FaultWrite); err != errno.EFAULT {
		t.Fatalf("write fault on read-only area = %v, want EFAULT", err)
	}
	if err := HandleFault(m, 0, FaultRead); err != 0 {
		t.Fatalf("read fault on readable area = %v, want 0", err)
	}
}

func TestFaultOnUnmappedAddressIsEFAULT(t *testing.T) {
	m := NewMap(100)
	if err := HandleFault(m, 50*PageSize, FaultRead); err != errno.EFAULT {
		t.Fatalf("fault on unmapped page = %v, want EFAULT", err)
	}
}

func TestForkPrivateAreaIsCopyOnWrite(t *testing.T) {
	parent := NewMap(100)
	parent.Map(nil, 0, 1, ProtRead|ProtWrite, MapPriv, 0, LoHi)

	if err := HandleFault(parent, 0, FaultWrite); err != 0 {
		t.Fatalf("parent write fault: %v", err)
	}
	parentArea := parent.Lookup(0)
	pf, _ := parentArea.Obj.LookupPage(0, false)
	pf.Bytes[0] = 0xAB

	child := Fork(parent)

	childArea := child.Lookup(0)
	if childArea.Obj == parentArea.Obj {
		t.Fatalf("parent and child private areas must not share the same shadow object")
	}

	if err := HandleFault(child, 0, FaultWrite); err != 0 {
		t.Fatalf("child write fault: %v", err)
	}
	cpf, _ := childArea.Obj.LookupPage(0, false)
	if cpf.Bytes[0] != 0xAB {
		t.Fatalf("child's copy-on-write page lost parent's data: got %x", cpf.Bytes[0])
	}

	cpf.Bytes[0] = 0xCD
	cpf.Dirty()

	ppf, _ := parentArea.Obj.LookupPage(0, false)
	if ppf.Bytes[0] != 0xAB {
		t.Fatalf("child's write leaked into parent's copy: parent byte = %x", ppf.Bytes[0])
	}
}

func TestForkSharedAreaStaysAliased(t *testing.T) {
	parent := NewMap(100)
	parent.Map(nil, 0, 1, ProtRead|ProtWrite, MapShared, 0, LoHi)

	child := Fork(parent)

	parentArea := parent.Lookup(0)
	childArea := child.Lookup(0)
	if parentArea.Obj != childArea.Obj {
		t.Fatalf("shared area must alias the same object across fork")
	}
}
