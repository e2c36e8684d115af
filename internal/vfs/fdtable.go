package vfs

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
)

// MaxFds is the fixed size of a process's file-descriptor table (spec
// section 4.1/4.6: EMFILE when exhausted).
const MaxFds = 128

// FdTable is a per-process table of open file handles indexed by a
// small integer descriptor.
type FdTable struct {
	mu    sync.Mutex
	slots [MaxFds]*File
}

// NewFdTable returns an empty table.
func NewFdTable() *FdTable {
	return &FdTable{}
}

// Install finds the lowest free descriptor, installs f, and returns
// it. Returns EMFILE if the table is full.
func (t *FdTable) Install(f *File) (int, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = f
			return i, 0
		}
	}
	return -1, errno.EMFILE
}

// Get validates fd and returns the referenced File, bumping its
// refcount (the fget half of the fget/fput pair every do_* syscall
// uses to pin the file for the duration of the call).
func (t *FdTable) Get(fd int) (*File, errno.Errno) {
	if fd < 0 || fd >= MaxFds {
		return nil, errno.EBADF
	}
	t.mu.Lock()
	f := t.slots[fd]
	t.mu.Unlock()
	if f == nil {
		return nil, errno.EBADF
	}
	f.Ref()
	return f, 0
}

// Put releases the reference taken by Get, releasing the vnode too if
// this was the file's last reference.
func (t *FdTable) Put(f *File) errno.Errno {
	if f.Put() {
		return f.Vn.Put()
	}
	return 0
}

// Close removes fd from the table and drops one reference on its
// File (the one the table itself held since Install).
func (t *FdTable) Close(fd int) errno.Errno {
	if fd < 0 || fd >= MaxFds {
		return errno.EBADF
	}
	t.mu.Lock()
	f := t.slots[fd]
	t.slots[fd] = nil
	t.mu.Unlock()
	if f == nil {
		return errno.EBADF
	}
	return t.Put(f)
}

// Dup installs a new descriptor sharing oldfd's File.
func (t *FdTable) Dup(oldfd int) (int, errno.Errno) {
	t.mu.Lock()
	if oldfd < 0 || oldfd >= MaxFds || t.slots[oldfd] == nil {
		t.mu.Unlock()
		return -1, errno.EBADF
	}
	f := t.slots[oldfd]
	f.Ref()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = f
			t.mu.Unlock()
			return i, 0
		}
	}
	t.mu.Unlock()
	f.Put()
	return -1, errno.EMFILE
}

// Dup2 makes newfd an alias for oldfd's File, closing whatever newfd
// previously referenced.
func (t *FdTable) Dup2(oldfd, newfd int) errno.Errno {
	if oldfd < 0 || oldfd >= MaxFds || newfd < 0 || newfd >= MaxFds {
		return errno.EBADF
	}
	t.mu.Lock()
	old := t.slots[oldfd]
	if old == nil {
		t.mu.Unlock()
		return errno.EBADF
	}
	if oldfd == newfd {
		t.mu.Unlock()
		return 0
	}
	prev := t.slots[newfd]
	old.Ref()
	t.slots[newfd] = old
	t.mu.Unlock()
	if prev != nil {
		t.Put(prev)
	}
	return 0
}

// Clone duplicates the table for fork: every installed descriptor is
// shared with the child via an extra reference on the same File,
// matching POSIX fork's fd-table semantics.
func (t *FdTable) Clone() *FdTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := &FdTable{}
	for i, f := range t.slots {
		if f != nil {
			f.Ref()
			n.slots[i] = f
		}
	}
	return n
}

// CloseAll closes every open descriptor, used by process exit.
func (t *FdTable) CloseAll() {
	for i := 0; i < MaxFds; i++ {
		t.Close(i)
	}
}
