package sched

import (
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/vm"
)

// DoFork implements fork's process-level half: create a child process
// as a child of parent, clone the address space with fresh
// copy-on-write shadows over every PRIVATE area (vm.Fork), and share
// every open file descriptor with the parent. Unlike a real fork,
// which duplicates the calling thread's exact register and stack
// state so both sides resume at the same program counter, this
// hosted kernel has the caller supply what the child thread runs as
// entry/a1/a2 — the Go idiom for "the child's first instruction" when
// there is no raw stack to duplicate.
func DoFork(parent *Proc, entry ThreadFunc, a1, a2 any) (*Proc, *Thread, errno.Errno) {
	child, err := CreateProc(parent.Name, parent)
	if err != 0 {
		return nil, nil, err
	}

	child.Vmmap.Destroy()
	child.Vmmap = vm.Fork(parent.Vmmap)

	oldFds := child.Fds
	child.Fds = parent.Fds.Clone()
	oldFds.CloseAll()

	th := KthreadCreate(child, entry, a1, a2)
	return child, th, 0
}
