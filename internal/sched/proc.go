package sched

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/vfs"
	"github.com/Metalgear47/Weenix/internal/vm"
	"github.com/Metalgear47/Weenix/internal/waitqueue"
)

// UserPages bounds the per-process address-space page count: a stand-
// in for the fixed 32-bit user address range a real page table would
// enforce. 1<<20 pages at a 4KiB page size is 4GiB.
const UserPages = 1 << 20

// ProcState mirrors the process lifecycle: a process is either
// running (possibly with several threads) or has completed
// proc_cleanup and is waiting to be reaped by its parent.
type ProcState int

const (
	ProcRunning ProcState = iota
	ProcDead
)

// Proc is a process: an address-space map, a file-descriptor table, a
// working directory, and the parent/child bookkeeping do_waitpid and
// do_exit operate on.
type Proc struct {
	Pid  int
	Name string

	mu         sync.Mutex
	State      ProcState
	ExitStatus int
	Parent     *Proc
	Children   []*Proc
	Threads    []*Thread
	nextTidNum int

	Fds   *vfs.FdTable
	Cwd   *vfs.Vnode
	Vmmap *vm.Map

	// Wait is this process's own wait channel: children signal it on
	// exit, and do_waitpid parks here between retries.
	Wait *waitqueue.WaitQueue
}

const maxPid = 1 << 15

var (
	procTableMu sync.Mutex
	procTable   = map[int]*Proc{}
	lastPid     = 0

	// Init is the first process created (PID 1); do_exit reparents
	// orphaned children onto it.
	Init *Proc
)

func allocPid() (int, errno.Errno) {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	for i := 0; i < maxPid; i++ {
		cand := (lastPid + i) % maxPid
		if cand == 0 {
			continue
		}
		if _, used := procTable[cand]; !used {
			lastPid = cand
			return cand, 0
		}
	}
	return 0, errno.EAGAIN
}

// CreateProc implements proc_create: allocate a PID, start with an
// empty address space and thread list, and — unless parent is nil
// (the idle/init case) — inherit the parent's current working
// directory with an extra reference.
func CreateProc(name string, parent *Proc) (*Proc, errno.Errno) {
	pid, err := allocPid()
	if err != 0 {
		return nil, err
	}

	p := &Proc{
		Pid:   pid,
		Name:  name,
		Fds:   vfs.NewFdTable(),
		Vmmap: vm.NewMap(UserPages),
		Wait:  waitqueue.New(),
	}

	if parent != nil {
		parent.Cwd.Ref()
		p.Cwd = parent.Cwd
		p.Parent = parent
		parent.mu.Lock()
		parent.Children = append(parent.Children, p)
		parent.mu.Unlock()
	}

	procTableMu.Lock()
	procTable[pid] = p
	if pid == 1 {
		Init = p
	}
	procTableMu.Unlock()

	return p, 0
}

// Lookup returns the process with the given PID, or nil.
func Lookup(pid int) *Proc {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	return procTable[pid]
}

func (p *Proc) nextTid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTidNum++
	return p.nextTidNum
}

func (p *Proc) addThread(t *Thread) {
	p.mu.Lock()
	p.Threads = append(p.Threads, t)
	p.mu.Unlock()
}

// ThreadList returns a snapshot of the process's thread list.
func (p *Proc) ThreadList() []*Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Thread, len(p.Threads))
	copy(out, p.Threads)
	return out
}

func (p *Proc) getState() ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}
