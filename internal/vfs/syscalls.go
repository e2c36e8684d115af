package vfs

import (
	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/mm"
)

// Open flags, matching the subset of POSIX flags the syscall
// surface needs.
const (
	ORDONLY = 0x0
	OWRONLY = 0x1
	ORDWR   = 0x2
	OACCMODE = 0x3
	OCREAT  = 0x0100
	OAPPEND = 0x0400
	OTRUNC  = 0x0200
)

// Seek whences.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

func modeFromFlags(flags int) int {
	m := 0
	switch flags & OACCMODE {
	case ORDONLY:
		m = FREAD
	case OWRONLY:
		m = FWRITE
	case ORDWR:
		m = FREAD | FWRITE
	}
	if flags&OAPPEND != 0 {
		m |= FAPPEND
	}
	return m
}

// DoOpen resolves path (honoring O_CREAT), installs a new descriptor
// in fds, and returns it.
func DoOpen(root, cwd *Vnode, fds *FdTable, who any, path string, flags int) (int, errno.Errno) {
	vn, err := OpenNamev(root, cwd, who, path, flags&OCREAT != 0)
	if err != 0 {
		return -1, err
	}
	if vn.Type == VDIR && flags&OACCMODE != ORDONLY {
		vn.Put()
		return -1, errno.EISDIR
	}
	if flags&OTRUNC != 0 && vn.Type == VREG {
		vn.Lock(who)
		err = vn.Ops.Truncate(vn, 0)
		vn.Unlock(who)
		if err != 0 {
			vn.Put()
			return -1, err
		}
	}
	f := NewFile(vn, modeFromFlags(flags))
	fd, err := fds.Install(f)
	if err != 0 {
		vn.Put()
		return -1, err
	}
	return fd, 0
}

// DoClose releases fd.
func DoClose(fds *FdTable, fd int) errno.Errno {
	return fds.Close(fd)
}

// DoRead reads up to len(buf) bytes at the file's current position.
func DoRead(fds *FdTable, who any, fd int, buf []byte) (int, errno.Errno) {
	f, err := fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	defer fds.Put(f)
	if err := checkMode(f, false); err != 0 {
		return -1, err
	}
	vn := f.Vn
	if vn.Type == VDIR {
		return -1, errno.EISDIR
	}
	vn.Lock(who)
	n, rerr := readVnode(vn, f.Seek(), buf)
	vn.Unlock(who)
	if rerr != 0 {
		return -1, rerr
	}
	f.SetSeek(f.Seek() + int64(n))
	return n, 0
}

func readVnode(vn *Vnode, pos int64, buf []byte) (int, errno.Errno) {
	if vn.Type == VCHR {
		dev, err := blockdev.LookupCharDevice(vn.Devid)
		if err != 0 {
			return 0, err
		}
		return dev.Read(buf)
	}
	size := vn.Len()
	if pos >= size {
		return 0, 0
	}
	n := len(buf)
	if pos+int64(n) > size {
		n = int(size - pos)
	}
	remaining := n
	off := 0
	for remaining > 0 {
		pagenum := uint64(pos+int64(off)) / mm.PageSize
		pageoff := int(pos+int64(off)) % mm.PageSize
		chunk := mm.PageSize - pageoff
		if chunk > remaining {
			chunk = remaining
		}
		pf, err := vn.Fobj.LookupPage(pagenum, false)
		if err != 0 {
			return off, err
		}
		copy(buf[off:off+chunk], pf.Bytes[pageoff:pageoff+chunk])
		off += chunk
		remaining -= chunk
	}
	return off, 0
}

// DoWrite writes len(buf) bytes at the file's current position
// (or at EOF if the file was opened O_APPEND), extending the file and
// leaving intermediate sparse blocks unallocated.
func DoWrite(fds *FdTable, who any, fd int, buf []byte) (int, errno.Errno) {
	f, err := fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	defer fds.Put(f)
	if err := checkMode(f, true); err != 0 {
		return -1, err
	}
	vn := f.Vn
	if vn.Type == VDIR {
		return -1, errno.EISDIR
	}
	pos := f.Seek()
	if f.Mode&FAPPEND != 0 {
		pos = vn.Len()
	}
	vn.Lock(who)
	n, werr := writeVnode(vn, pos, buf)
	vn.Unlock(who)
	if werr != 0 {
		return -1, werr
	}
	f.SetSeek(pos + int64(n))
	return n, 0
}

func writeVnode(vn *Vnode, pos int64, buf []byte) (int, errno.Errno) {
	if vn.Type == VCHR {
		dev, err := blockdev.LookupCharDevice(vn.Devid)
		if err != 0 {
			return 0, err
		}
		return dev.Write(buf)
	}
	off := 0
	remaining := len(buf)
	for remaining > 0 {
		cur := pos + int64(off)
		pagenum := uint64(cur) / mm.PageSize
		pageoff := int(cur) % mm.PageSize
		chunk := mm.PageSize - pageoff
		if chunk > remaining {
			chunk = remaining
		}
		pf, err := vn.Fobj.LookupPage(pagenum, true)
		if err != 0 {
			return off, err
		}
		copy(pf.Bytes[pageoff:pageoff+chunk], buf[off:off+chunk])
		if rc := pf.Dirty(); rc != 0 {
			return off, errno.Errno(rc)
		}
		off += chunk
		remaining -= chunk
	}
	end := pos + int64(off)
	if end > vn.Len() {
		vn.SetLen(end)
	}
	return off, 0
}

// DoLseek repositions fd's seek pointer.
func DoLseek(fds *FdTable, fd int, offset int64, whence int) (int64, errno.Errno) {
	f, err := fds.Get(fd)
	if err != 0 {
		return -1, err
	}
	defer fds.Put(f)
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.Seek()
	case SeekEnd:
		base = f.Vn.Len()
	default:
		return -1, errno.EINVAL
	}
	pos := base + offset
	if pos < 0 {
		return -1, errno.EINVAL
	}
	f.SetSeek(pos)
	return pos, 0
}

// DoDup and DoDup2 implement dup/dup2.
func DoDup(fds *FdTable, fd int) (int, errno.Errno)          { return fds.Dup(fd) }
func DoDup2(fds *FdTable, oldfd, newfd int) (int, errno.Errno) {
	if err := fds.Dup2(oldfd, newfd); err != 0 {
		return -1, err
	}
	return newfd, 0
}

// DoMkdir creates a new directory at path.
func DoMkdir(root, cwd *Vnode, who any, path string) errno.Errno {
	parent, name, err := DirNamev(root, cwd, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	parent.Lock(who)
	defer parent.Unlock(who)
	vn, err := parent.Ops.Mkdir(parent, name)
	if err != 0 {
		return err
	}
	return vn.Put()
}

// DoRmdir removes an empty directory at path.
func DoRmdir(root, cwd *Vnode, who any, path string) errno.Errno {
	comps := splitPath(path)
	if len(comps) > 0 {
		switch comps[len(comps)-1] {
		case ".":
			return errno.EINVAL
		case "..":
			return errno.ENOTEMPTY
		}
	}
	parent, name, err := DirNamev(root, cwd, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	parent.Lock(who)
	defer parent.Unlock(who)
	return parent.Ops.Rmdir(parent, name)
}

// DoMknod creates a device special file.
func DoMknod(root, cwd *Vnode, who any, path string, typ VType, devid blockdev.Devid) errno.Errno {
	parent, name, err := DirNamev(root, cwd, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	parent.Lock(who)
	defer parent.Unlock(who)
	vn, err := parent.Ops.Mknod(parent, name, typ, devid)
	if err != 0 {
		return err
	}
	return vn.Put()
}

// DoLink creates a new hard link newpath -> oldpath.
func DoLink(root, cwd *Vnode, who any, oldpath, newpath string) errno.Errno {
	target, err := OpenNamev(root, cwd, who, oldpath, false)
	if err != 0 {
		return err
	}
	defer target.Put()
	if target.Type == VDIR {
		return errno.EISDIR
	}
	parent, name, err := DirNamev(root, cwd, newpath)
	if err != 0 {
		return err
	}
	defer parent.Put()
	parent.Lock(who)
	defer parent.Unlock(who)
	return parent.Ops.Link(parent, name, target)
}

// DoUnlink removes a directory entry.
func DoUnlink(root, cwd *Vnode, who any, path string) errno.Errno {
	parent, name, err := DirNamev(root, cwd, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	parent.Lock(who)
	defer parent.Unlock(who)
	return parent.Ops.Unlink(parent, name)
}

// DoRename moves a directory entry.
func DoRename(root, cwd *Vnode, who any, oldpath, newpath string) errno.Errno {
	oldparent, oldname, err := DirNamev(root, cwd, oldpath)
	if err != 0 {
		return err
	}
	defer oldparent.Put()
	newparent, newname, err := DirNamev(root, cwd, newpath)
	if err != 0 {
		return err
	}
	defer newparent.Put()
	oldparent.Lock(who)
	if oldparent != newparent {
		newparent.Lock(who)
	}
	defer oldparent.Unlock(who)
	defer func() {
		if oldparent != newparent {
			newparent.Unlock(who)
		}
	}()
	return oldparent.Ops.Rename(oldparent, oldname, newparent, newname)
}

// DoChdir resolves path and returns the new current-working-directory
// vnode (referenced); the caller installs it and releases the old one.
func DoChdir(root, cwd *Vnode, path string) (*Vnode, errno.Errno) {
	vn, err := OpenNamev(root, cwd, nil, path, false)
	if err != 0 {
		return nil, err
	}
	if vn.Type != VDIR {
		vn.Put()
		return nil, errno.ENOTDIR
	}
	return vn, 0
}

// DoStat fills in stat information for path.
func DoStat(root, cwd *Vnode, path string) (Stat, errno.Errno) {
	vn, err := OpenNamev(root, cwd, nil, path, false)
	if err != 0 {
		return Stat{}, err
	}
	defer vn.Put()
	return vn.Ops.Stat(vn)
}

// DoGetdent reads one directory entry from fd at its current offset,
// advancing the offset past it, and returns the entry's name.
func DoGetdent(fds *FdTable, fd int) (string, uint64, errno.Errno) {
	f, err := fds.Get(fd)
	if err != 0 {
		return "", 0, err
	}
	defer fds.Put(f)
	if f.Vn.Type != VDIR {
		return "", 0, errno.ENOTDIR
	}
	name, ino, next, err := f.Vn.Ops.Getdent(f.Vn, f.Seek())
	if err != 0 {
		return "", 0, err
	}
	f.SetSeek(next)
	return name, ino, 0
}
