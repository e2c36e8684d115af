package vm

import (
	"github.com/Metalgear47/Weenix/internal/errno"
)

// FaultCause describes why the fault handler was invoked, mirroring
// the trapframe bits a real page-fault handler would decode off the
// CPU's fault error code.
type FaultCause int

const (
	FaultRead FaultCause = iota
	FaultWrite
	FaultExec
)

// HandleFault resolves a fault at virtual address addr against m,
// returning EFAULT if addr is unmapped or the access violates the
// area's protection bits. On success it returns 0, having pulled the
// page resident (and, for a write, dirtied it) through the owning
// memory object.
func HandleFault(m *Map, addr uint64, cause FaultCause) errno.Errno {
	vpn := addr / PageSize

	area := m.Lookup(vpn)
	if area == nil {
		return errno.EFAULT
	}

	switch cause {
	case FaultWrite:
		if area.Prot&ProtWrite == 0 {
			return errno.EFAULT
		}
	case FaultExec:
		if area.Prot&ProtExec == 0 {
			return errno.EFAULT
		}
	default:
		if area.Prot&ProtRead == 0 {
			return errno.EFAULT
		}
	}

	objPagenum := area.objPagenum(vpn)
	pf, err := area.Obj.LookupPage(objPagenum, cause == FaultWrite)
	if err != 0 {
		return err
	}
	if cause == FaultWrite {
		if rc := pf.Dirty(); rc != 0 {
			return errno.Errno(rc)
		}
	}
	return 0
}
