package vfs

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
)

// Mode bits recorded on an open File ("mode flags
// {READ,WRITE,APPEND}").
const (
	FREAD   = 0x1
	FWRITE  = 0x2
	FAPPEND = 0x4
)

// File is an open-file handle: a refcount, mode, seek position, and a
// vnode reference. Dup produces a new descriptor sharing the same
// File, so the seek position and refcount are shared, matching POSIX
// dup semantics.
type File struct {
	mu   sync.Mutex
	refs int
	Mode int
	pos  int64
	Vn   *Vnode
}

// NewFile returns a File with one reference, positioned at offset 0.
func NewFile(vn *Vnode, mode int) *File {
	return &File{refs: 1, Mode: mode, Vn: vn}
}

// Ref increments the file's reference count (used by dup/dup2 and by
// fork when cloning the descriptor table).
func (f *File) Ref() {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
}

// Put decrements the reference count and reports whether this was the
// last reference (in which case the caller must release the vnode).
func (f *File) Put() bool {
	f.mu.Lock()
	f.refs--
	last := f.refs == 0
	f.mu.Unlock()
	return last
}

// Seek returns the current position.
func (f *File) Seek() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// SetSeek overwrites the position (used by lseek and by read/write to
// advance it).
func (f *File) SetSeek(pos int64) {
	f.mu.Lock()
	f.pos = pos
	f.mu.Unlock()
}

// Readable/Writable report whether the corresponding mode bit is set.
func (f *File) Readable() bool { return f.Mode&FREAD != 0 }
func (f *File) Writable() bool { return f.Mode&(FWRITE|FAPPEND) != 0 }

func checkMode(f *File, write bool) errno.Errno {
	if write {
		if !f.Writable() {
			return errno.EBADF
		}
	} else if !f.Readable() {
		return errno.EBADF
	}
	return 0
}
