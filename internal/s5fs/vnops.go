package s5fs

import (
	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/mm"
	"github.com/Metalgear47/Weenix/internal/vfs"
)

// fsOps is the single vfs.VnodeOps implementation shared by every
// vnode a given Fs produces; which inode a call concerns comes from
// the vnode's own Data field (vfs never looks inside
// it, s5fs is the only package that does).
type fsOps struct {
	fs *Fs
}

func (o *fsOps) Lookup(dir *vfs.Vnode, name string) (*vfs.Vnode, errno.Errno) {
	ino, err := o.fs.findDirent(dir, name)
	if err != 0 {
		return nil, err
	}
	return o.fs.getVnode(ino)
}

func (o *fsOps) Create(dir *vfs.Vnode, name string) (*vfs.Vnode, errno.Errno) {
	if _, err := o.fs.findDirent(dir, name); err == 0 {
		return nil, errno.EEXIST
	} else if err != errno.ENOENT {
		return nil, err
	}

	ino, err := o.fs.allocInode(TypeData, 0)
	if err != 0 {
		return nil, err
	}
	if err := o.fs.addDirent(dir, name, ino); err != 0 {
		o.fs.freeInode(ino)
		return nil, err
	}
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return nil, err
	}
	in.Linkcount = 1
	if err := o.fs.writeInode(ino, &in); err != 0 {
		return nil, err
	}
	return o.fs.getVnode(ino)
}

func (o *fsOps) Mkdir(dir *vfs.Vnode, name string) (*vfs.Vnode, errno.Errno) {
	if _, err := o.fs.findDirent(dir, name); err == 0 {
		return nil, errno.EEXIST
	} else if err != errno.ENOENT {
		return nil, err
	}

	parentIno := handle(dir).ino
	ino, err := o.fs.allocInode(TypeDir, 0)
	if err != 0 {
		return nil, err
	}

	// The child's linkcount counts the parent's "name" entry and its
	// own "." entry; the parent's linkcount gains one for the child's
	// ".." entry pointing back at it. The child's count is set before
	// initDir, whose temporary vnode would otherwise be reclaimed with a
	// linkcount of zero when it is released.
	cin, err := o.fs.readInode(ino)
	if err != 0 {
		return nil, err
	}
	cin.Linkcount = 2
	if err := o.fs.writeInode(ino, &cin); err != 0 {
		return nil, err
	}
	if err := o.fs.initDir(nil, ino, parentIno); err != 0 {
		o.fs.freeInode(ino)
		return nil, err
	}
	if err := o.fs.addDirent(dir, name, ino); err != 0 {
		o.fs.freeInode(ino)
		return nil, err
	}
	pin, err := o.fs.readInode(parentIno)
	if err != 0 {
		return nil, err
	}
	pin.Linkcount++
	if err := o.fs.writeInode(parentIno, &pin); err != 0 {
		return nil, err
	}
	return o.fs.getVnode(ino)
}

func (o *fsOps) Rmdir(dir *vfs.Vnode, name string) errno.Errno {
	if name == "." {
		return errno.EINVAL
	}
	if name == ".." {
		return errno.ENOTEMPTY
	}
	ino, err := o.fs.findDirent(dir, name)
	if err != 0 {
		return err
	}
	child, err := o.fs.getVnode(ino)
	if err != 0 {
		return err
	}
	defer child.Put()
	if child.Type != vfs.VDIR {
		return errno.ENOTDIR
	}
	empty, err := o.fs.dirIsEmpty(child)
	if err != 0 {
		return err
	}
	if !empty {
		return errno.ENOTEMPTY
	}
	if err := o.fs.removeDirent(dir, name); err != 0 {
		return err
	}
	parentIno := handle(dir).ino
	pin, err := o.fs.readInode(parentIno)
	if err != 0 {
		return err
	}
	pin.Linkcount--
	if err := o.fs.writeInode(parentIno, &pin); err != 0 {
		return err
	}

	cin, err := o.fs.readInode(ino)
	if err != 0 {
		return err
	}
	cin.Linkcount = 0
	return o.fs.writeInode(ino, &cin)
}

func (o *fsOps) Mknod(dir *vfs.Vnode, name string, typ vfs.VType, devid blockdev.Devid) (*vfs.Vnode, errno.Errno) {
	if _, err := o.fs.findDirent(dir, name); err == 0 {
		return nil, errno.EEXIST
	} else if err != errno.ENOENT {
		return nil, err
	}
	s5type := uint16(TypeChr)
	if typ == vfs.VBLK {
		s5type = TypeBlk
	}
	ino, err := o.fs.allocInode(s5type, uint32(devid))
	if err != 0 {
		return nil, err
	}
	if err := o.fs.addDirent(dir, name, ino); err != 0 {
		o.fs.freeInode(ino)
		return nil, err
	}
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return nil, err
	}
	in.Linkcount = 1
	if err := o.fs.writeInode(ino, &in); err != 0 {
		return nil, err
	}
	return o.fs.getVnode(ino)
}

func (o *fsOps) Link(dir *vfs.Vnode, name string, target *vfs.Vnode) errno.Errno {
	if _, err := o.fs.findDirent(dir, name); err == 0 {
		return errno.EEXIST
	} else if err != errno.ENOENT {
		return err
	}
	ino := handle(target).ino
	if err := o.fs.addDirent(dir, name, ino); err != 0 {
		return err
	}
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return err
	}
	in.Linkcount++
	return o.fs.writeInode(ino, &in)
}

func (o *fsOps) Unlink(dir *vfs.Vnode, name string) errno.Errno {
	if name == "." || name == ".." {
		return errno.EINVAL
	}
	ino, err := o.fs.findDirent(dir, name)
	if err != 0 {
		return err
	}
	target, err := o.fs.getVnode(ino)
	if err != 0 {
		return err
	}
	defer target.Put()
	if target.Type == vfs.VDIR {
		return errno.EISDIR
	}
	if err := o.fs.removeDirent(dir, name); err != 0 {
		return err
	}
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return err
	}
	in.Linkcount--
	return o.fs.writeInode(ino, &in)
}

func (o *fsOps) Rename(olddir *vfs.Vnode, oldname string, newdir *vfs.Vnode, newname string) errno.Errno {
	ino, err := o.fs.findDirent(olddir, oldname)
	if err != 0 {
		return err
	}
	if _, err := o.fs.findDirent(newdir, newname); err == 0 {
		if err := newdir.Ops.Unlink(newdir, newname); err != 0 {
			return err
		}
	} else if err != errno.ENOENT {
		return err
	}
	if err := o.fs.addDirent(newdir, newname, ino); err != 0 {
		return err
	}
	return o.fs.removeDirent(olddir, oldname)
}

func (o *fsOps) Getdent(vn *vfs.Vnode, offset int64) (string, uint64, int64, errno.Errno) {
	return o.fs.getdent(vn, offset)
}

func (o *fsOps) Stat(vn *vfs.Vnode) (vfs.Stat, errno.Errno) {
	ino := handle(vn).ino
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return vfs.Stat{}, err
	}
	return vfs.Stat{
		Ino:   uint64(ino),
		Type:  vn.Type,
		Size:  vn.Len(),
		Nlink: int(in.Linkcount),
		Devid: vn.Devid,
	}, 0
}

func (o *fsOps) Truncate(vn *vfs.Vnode, size int64) errno.Errno {
	ino := handle(vn).ino
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return err
	}
	firstFreeBlock := (size + BlockSize - 1) / BlockSize
	for i := uint64(firstFreeBlock); i < NDirect; i++ {
		if in.Direct[i] != 0 {
			if err := o.fs.freeBlock(in.Direct[i]); err != 0 {
				return err
			}
			in.Direct[i] = 0
		}
	}
	if firstFreeBlock <= NDirect && in.Indirect != 0 {
		pf, err := o.fs.devobj.LookupPage(uint64(in.Indirect), false)
		if err != 0 {
			return err
		}
		entries := make([]uint32, NIndirect)
		decodeBlockArray(pf.Bytes, entries)
		for _, b := range entries {
			if b != 0 {
				if err := o.fs.freeBlock(b); err != 0 {
					return err
				}
			}
		}
		if err := o.fs.freeBlock(in.Indirect); err != 0 {
			return err
		}
		in.Indirect = 0
	}
	in.Size = uint32(size)
	if err := o.fs.writeInode(ino, &in); err != 0 {
		return err
	}
	vn.SetLen(size)
	return 0
}

// Reclaim deletes the on-disk inode once both the in-memory refcount
// and the on-disk link count have reached zero.
func (o *fsOps) Reclaim(vn *vfs.Vnode) errno.Errno {
	ino := handle(vn).ino
	o.fs.uncache(ino)
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return err
	}
	if in.Linkcount == 0 {
		return o.fs.freeInode(ino)
	}
	return 0
}

func (o *fsOps) FillPage(vn *vfs.Vnode, pf *mm.Pframe) errno.Errno {
	ino := handle(vn).ino
	blockno, err := o.fs.seekToBlock(ino, pf.Pagenum, false)
	if err != 0 {
		return err
	}
	if blockno == 0 {
		for i := range pf.Bytes {
			pf.Bytes[i] = 0
		}
		return 0
	}
	devpf, err := o.fs.devobj.LookupPage(uint64(blockno), false)
	if err != 0 {
		return err
	}
	copy(pf.Bytes, devpf.Bytes)
	return 0
}

func (o *fsOps) DirtyPage(vn *vfs.Vnode, pf *mm.Pframe) errno.Errno {
	ino := handle(vn).ino
	_, err := o.fs.seekToBlock(ino, pf.Pagenum, true)
	return err
}

func (o *fsOps) CleanPage(vn *vfs.Vnode, pf *mm.Pframe) errno.Errno {
	ino := handle(vn).ino
	blockno, err := o.fs.seekToBlock(ino, pf.Pagenum, false)
	if err != 0 {
		return err
	}
	if blockno == 0 {
		return 0
	}
	devpf, err := o.fs.devobj.LookupPage(uint64(blockno), true)
	if err != 0 {
		return err
	}
	copy(devpf.Bytes, pf.Bytes)
	if rc := devpf.Dirty(); rc != 0 {
		return errno.Errno(rc)
	}
	if rc := devpf.Clean(); rc != 0 {
		return errno.Errno(rc)
	}
	in, err := o.fs.readInode(ino)
	if err != 0 {
		return err
	}
	if n := uint32(vn.Len()); in.Size != n {
		in.Size = n
		return o.fs.writeInode(ino, &in)
	}
	return 0
}
