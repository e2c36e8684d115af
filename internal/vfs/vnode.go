// Package vfs implements the unified namespace: vnodes, open file
// descriptors, path resolution, and the syscall-level operations that
// validate arguments and dispatch into a filesystem's vnode ops. The
// concrete on-disk filesystem (S5FS) lives in a separate package and
// implements the VnodeOps contract defined here; vfs itself knows
// nothing about inodes, dirents, or block allocation.
package vfs

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/kmutex"
	"github.com/Metalgear47/Weenix/internal/mm"
)

// MaxNameLen bounds a single path component, matching the fixed-width
// name field of an S5FS dirent.
const MaxNameLen = 60

// VType is a vnode's object type.
type VType int

const (
	VREG  VType = iota // regular file
	VDIR               // directory
	VCHR               // character device
	VBLK               // block device
)

// Stat mirrors the subset of POSIX stat fields do_stat
// exposes.
type Stat struct {
	Ino     uint64
	Type    VType
	Size    int64
	Nlink   int
	Devid   blockdev.Devid
}

// VnodeOps is the operation table a filesystem registers on every
// vnode it creates. Directory operations return a freshly
// reference-counted vnode on success; callers are responsible for
// releasing it via Put.
type VnodeOps interface {
	Lookup(dir *Vnode, name string) (*Vnode, errno.Errno)
	Create(dir *Vnode, name string) (*Vnode, errno.Errno)
	Mkdir(dir *Vnode, name string) (*Vnode, errno.Errno)
	Rmdir(dir *Vnode, name string) errno.Errno
	Mknod(dir *Vnode, name string, typ VType, devid blockdev.Devid) (*Vnode, errno.Errno)
	Link(dir *Vnode, name string, target *Vnode) errno.Errno
	Unlink(dir *Vnode, name string) errno.Errno
	Rename(olddir *Vnode, oldname string, newdir *Vnode, newname string) errno.Errno
	Getdent(vn *Vnode, offset int64) (name string, ino uint64, next int64, err errno.Errno)
	Stat(vn *Vnode) (Stat, errno.Errno)
	Truncate(vn *Vnode, size int64) errno.Errno
	// Reclaim is called when a vnode's in-memory refcount drops to
	// zero, giving the filesystem a chance to delete the on-disk
	// inode if its link count has also reached zero.
	Reclaim(vn *Vnode) errno.Errno
	// FillPage/DirtyPage/CleanPage translate a page number to a
	// block number and perform the underlying block I/O; they back
	// the vnode's embedded FileObj.
	FillPage(vn *Vnode, pf *mm.Pframe) errno.Errno
	DirtyPage(vn *Vnode, pf *mm.Pframe) errno.Errno
	CleanPage(vn *Vnode, pf *mm.Pframe) errno.Errno
}

// Vnode is the in-memory descriptor for an open filesystem object.
// One vnode exists per inode while referenced: the
// mapping is maintained by the owning filesystem's inode cache, not
// by this package.
type Vnode struct {
	mu    *kmutex.KMutex
	refmu sync.Mutex
	refs  int

	Type  VType
	Devid blockdev.Devid
	Ops   VnodeOps
	Fobj  *mm.FileObj

	// Data is filesystem-private state (for S5FS, a handle holding
	// the inode number); vfs never looks inside it.
	Data any

	sizeMu sync.Mutex
	size   int64
}

// NewVnode allocates a vnode of the given type backed by ops, with one
// reference owned by the caller. A filesystem's inode cache holds no
// reference of its own: S5FS hands this first reference to whoever
// asked for the vnode.
func NewVnode(typ VType, ops VnodeOps) *Vnode {
	vn := &Vnode{Type: typ, Ops: ops, refs: 1, mu: kmutex.New()}
	vn.Fobj = mm.NewFileObj(vn)
	return vn
}

func (vn *Vnode) FillPage(pf *mm.Pframe) errno.Errno  { return vn.Ops.FillPage(vn, pf) }
func (vn *Vnode) DirtyPage(pf *mm.Pframe) errno.Errno { return vn.Ops.DirtyPage(vn, pf) }
func (vn *Vnode) CleanPage(pf *mm.Pframe) errno.Errno { return vn.Ops.CleanPage(vn, pf) }

// Len returns the vnode's current length in bytes.
func (vn *Vnode) Len() int64 {
	vn.sizeMu.Lock()
	defer vn.sizeMu.Unlock()
	return vn.size
}

// SetLen updates the cached length. The filesystem is the source of
// truth for on-disk size; this mirrors it for fast stat/lseek access.
func (vn *Vnode) SetLen(n int64) {
	vn.sizeMu.Lock()
	vn.size = n
	vn.sizeMu.Unlock()
}

// Ref increments the vnode's reference count.
func (vn *Vnode) Ref() {
	vn.refmu.Lock()
	vn.refs++
	vn.refmu.Unlock()
}

// Put decrements the reference count. On the last reference it flushes
// the vnode's page cache and calls Reclaim so the filesystem can
// delete the on-disk inode if warranted (spec: "a vnode's refcount
// reaches zero only after flush").
func (vn *Vnode) Put() errno.Errno {
	vn.refmu.Lock()
	vn.refs--
	last := vn.refs == 0
	vn.refmu.Unlock()
	if !last {
		return 0
	}
	if err := vn.Fobj.Flush(); err != 0 {
		return err
	}
	return vn.Ops.Reclaim(vn)
}

// RefCount reports the current reference count, for tests and
// diagnostics.
func (vn *Vnode) RefCount() int {
	vn.refmu.Lock()
	defer vn.refmu.Unlock()
	return vn.refs
}

// Lock acquires the vnode's per-vnode mutex on behalf of who. This
// wraps any operation that may block inside the page-frame pipeline.
func (vn *Vnode) Lock(who any)   { vn.mu.Lock(who) }
func (vn *Vnode) Unlock(who any) { vn.mu.Unlock(who) }
