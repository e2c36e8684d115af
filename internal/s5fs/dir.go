package s5fs

import (
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/vfs"
)

// readDirentAt reads the fixed-length dirent at byte offset off within
// dir's file content.
func (fs *Fs) readDirentAt(dir *vfs.Vnode, off int64) (dirent, errno.Errno) {
	pagenum := uint64(off) / BlockSize
	pageoff := int(off) % BlockSize
	pf, err := dir.Fobj.LookupPage(pagenum, false)
	if err != 0 {
		return dirent{}, err
	}
	return decodeDirent(pf.Bytes[pageoff : pageoff+direntSize]), 0
}

// writeDirentAt writes d at byte offset off within dir's file content.
func (fs *Fs) writeDirentAt(dir *vfs.Vnode, off int64, d dirent) errno.Errno {
	pagenum := uint64(off) / BlockSize
	pageoff := int(off) % BlockSize
	pf, err := dir.Fobj.LookupPage(pagenum, true)
	if err != 0 {
		return err
	}
	d.encode(pf.Bytes[pageoff : pageoff+direntSize])
	if rc := pf.Dirty(); rc != 0 {
		return errno.Errno(rc)
	}
	return 0
}

// findDirent scans dir's entries for name, returning its inode number.
func (fs *Fs) findDirent(dir *vfs.Vnode, name string) (uint32, errno.Errno) {
	size := dir.Len()
	for off := int64(0); off < size; off += direntSize {
		d, err := fs.readDirentAt(dir, off)
		if err != 0 {
			return 0, err
		}
		if d.Name == name {
			return d.Ino, 0
		}
	}
	return 0, errno.ENOENT
}

// addDirent appends a new entry to the end of dir's entry list.
func (fs *Fs) addDirent(dir *vfs.Vnode, name string, ino uint32) errno.Errno {
	off := dir.Len()
	if err := fs.writeDirentAt(dir, off, dirent{Ino: ino, Name: name}); err != 0 {
		return err
	}
	dir.SetLen(off + direntSize)
	return 0
}


// removeDirent deletes the entry named name, preserving contiguity by
// moving the last entry into the freed slot (S5FS
// directories never contain holes between entries).
func (fs *Fs) removeDirent(dir *vfs.Vnode, name string) errno.Errno {
	size := dir.Len()
	var target int64 = -1
	for off := int64(0); off < size; off += direntSize {
		d, err := fs.readDirentAt(dir, off)
		if err != 0 {
			return err
		}
		if d.Name == name {
			target = off
			break
		}
	}
	if target < 0 {
		return errno.ENOENT
	}

	last := size - direntSize
	if target != last {
		d, err := fs.readDirentAt(dir, last)
		if err != 0 {
			return err
		}
		if err := fs.writeDirentAt(dir, target, d); err != 0 {
			return err
		}
	}
	dir.SetLen(last)
	return 0
}

// dirIsEmpty reports whether dir contains nothing but "." and "..".
func (fs *Fs) dirIsEmpty(dir *vfs.Vnode) (bool, errno.Errno) {
	size := dir.Len()
	for off := int64(0); off < size; off += direntSize {
		d, err := fs.readDirentAt(dir, off)
		if err != 0 {
			return false, err
		}
		if d.Name != "." && d.Name != ".." {
			return false, 0
		}
	}
	return true, 0
}

// initDir writes the "." and ".." entries for a freshly allocated
// directory inode.
func (fs *Fs) initDir(dir *vfs.Vnode, ino, parentIno uint32) errno.Errno {
	self := dir
	if self == nil {
		v, err := fs.getVnode(ino)
		if err != 0 {
			return err
		}
		defer v.Put()
		self = v
	}
	if err := fs.addDirent(self, ".", ino); err != 0 {
		return err
	}
	if err := fs.addDirent(self, "..", parentIno); err != 0 {
		return err
	}
	return 0
}

// getdent returns the entry at byte offset off, and the offset of the
// entry following it (do_getdent's iteration
// contract).
func (fs *Fs) getdent(dir *vfs.Vnode, off int64) (string, uint64, int64, errno.Errno) {
	size := dir.Len()
	if off >= size {
		return "", 0, off, 0
	}
	d, err := fs.readDirentAt(dir, off)
	if err != 0 {
		return "", 0, off, err
	}
	return d.Name, uint64(d.Ino), off + direntSize, 0
}
