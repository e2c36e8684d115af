package sched

import (
	"testing"

	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/s5fs"
	"github.com/Metalgear47/Weenix/internal/vm"
)

// newInitProc bootstraps a root process the way the kernel's boot path
// does: mkfs a fresh volume and give the process the root directory as
// its working directory.
func newInitProc(t *testing.T) *Proc {
	t.Helper()
	dev := blockdev.NewMemDisk(4096)
	fs, err := s5fs.Mkfs(dev, 4096)
	if err != 0 {
		t.Fatalf("mkfs: %v", err)
	}
	root, err := fs.Root()
	if err != 0 {
		t.Fatalf("root: %v", err)
	}

	p, err := CreateProc("init", nil)
	if err != 0 {
		t.Fatalf("createproc: %v", err)
	}
	p.Cwd = root
	return p
}

func TestWaitpidOrderingReturnsBothStatuses(t *testing.T) {
	parent := newInitProc(t)

	spawnExiter := func(status int) {
		_, _, err := DoFork(parent, func(self *Thread, a1, a2 any) int {
			DoExit(self.Proc, self, a1.(int))
			return a1.(int)
		}, status, nil)
		if err != 0 {
			t.Fatalf("fork: %v", err)
		}
	}
	spawnExiter(7)
	spawnExiter(9)

	got := map[int]bool{}
	for i := 0; i < 2; i++ {
		_, status, err := DoWaitpid(parent, -1, 0)
		if err != 0 {
			t.Fatalf("waitpid %d: %v", i, err)
		}
		got[status] = true
	}
	if !got[7] || !got[9] {
		t.Fatalf("waitpid statuses = %v, want {7,9}", got)
	}

	if _, _, err := DoWaitpid(parent, -1, 0); err != errno.ECHILD {
		t.Fatalf("waitpid after all reaped = %v, want ECHILD", err)
	}
}

func TestWaitpidSpecificPidRejectsNonChild(t *testing.T) {
	parent := newInitProc(t)
	if _, _, err := DoWaitpid(parent, 99999, 0); err != errno.ECHILD {
		t.Fatalf("waitpid non-child = %v, want ECHILD", err)
	}
}

// TestForktestChain forks a chain of children off one parent, each
// writing its own byte into its own private region and exiting with
// its own status, then reaps every one of them via repeated
// waitpid(-1). A broader, multi-child sibling of forktest.c's
// COW-and-reap exercise.
func TestForktestChain(t *testing.T) {
	parent := newInitProc(t)
	const n = 5

	wantStatus := map[int]bool{}
	for i := 0; i < n; i++ {
		area, err := parent.Vmmap.Map(nil, 0, 1, vm.ProtRead|vm.ProtWrite, vm.MapPriv, 0, vm.LoHi)
		if err != 0 {
			t.Fatalf("map %d: %v", i, err)
		}
		if err := vm.HandleFault(parent.Vmmap, area.Start*vm.PageSize, vm.FaultWrite); err != 0 {
			t.Fatalf("parent fault %d: %v", i, err)
		}
		pf, _ := area.Obj.LookupPage(0, false)
		pf.Bytes[0] = byte('a' + i)

		status := 10 + i
		wantStatus[status] = true
		startVpn := area.Start
		_, _, err = DoFork(parent, func(self *Thread, a1, a2 any) int {
			childArea := self.Proc.Vmmap.Lookup(a1.(uint64))
			if err := vm.HandleFault(self.Proc.Vmmap, childArea.Start*vm.PageSize, vm.FaultWrite); err != 0 {
				DoExit(self.Proc, self, -1)
				return -1
			}
			cpf, _ := childArea.Obj.LookupPage(0, false)
			cpf.Bytes[0] = byte('Z' - i)
			st := a2.(int)
			DoExit(self.Proc, self, st)
			return st
		}, startVpn, status)
		if err != 0 {
			t.Fatalf("fork %d: %v", i, err)
		}
	}

	got := map[int]bool{}
	for i := 0; i < n; i++ {
		_, status, err := DoWaitpid(parent, -1, 0)
		if err != 0 {
			t.Fatalf("waitpid %d: %v", i, err)
		}
		got[status] = true
	}
	for s := range wantStatus {
		if !got[s] {
			t.Fatalf("waitpid statuses = %v, missing %d", got, s)
		}
	}

	for i := 0; i < n; i++ {
		area := parent.Vmmap.Lookup(uint64(i))
		pf, _ := area.Obj.LookupPage(0, false)
		if pf.Bytes[0] != byte('a'+i) {
			t.Fatalf("parent area %d byte = %q, want %q (child write leaked)", i, pf.Bytes[0], byte('a'+i))
		}
	}
}

func TestForkPrivateAreaCopyOnWriteAcrossProcesses(t *testing.T) {
	parent := newInitProc(t)
	area, err := parent.Vmmap.Map(nil, 0, 1, vm.ProtRead|vm.ProtWrite, vm.MapPriv, 0, vm.LoHi)
	if err != 0 {
		t.Fatalf("map: %v", err)
	}
	if err := vm.HandleFault(parent.Vmmap, area.Start*vm.PageSize, vm.FaultWrite); err != 0 {
		t.Fatalf("parent fault: %v", err)
	}
	pf, _ := area.Obj.LookupPage(0, false)
	pf.Bytes[0] = 'A'

	done := make(chan int, 1)
	child, _, err := DoFork(parent, func(self *Thread, a1, a2 any) int {
		childArea := self.Proc.Vmmap.Lookup(0)
		vm.HandleFault(self.Proc.Vmmap, childArea.Start*vm.PageSize, vm.FaultWrite)
		cpf, _ := childArea.Obj.LookupPage(0, false)
		cpf.Bytes[0] = 'B'
		done <- 0
		DoExit(self.Proc, self, 0)
		return 0
	}, nil, nil)
	if err != 0 {
		t.Fatalf("fork: %v", err)
	}
	<-done

	ppf, _ := area.Obj.LookupPage(0, false)
	if ppf.Bytes[0] != 'A' {
		t.Fatalf("parent's page changed after child's write: %x", ppf.Bytes[0])
	}

	if _, status, err := DoWaitpid(parent, child.Pid, 0); err != 0 || status != 0 {
		t.Fatalf("waitpid child: status=%d err=%v", status, err)
	}
}
