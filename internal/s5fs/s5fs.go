package s5fs

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/mm"
	"github.com/Metalgear47/Weenix/internal/vfs"
)

// Fs is a mounted S5FS instance. It owns the backing device's page
// cache (through which every superblock, inode-table, indirect, and
// data block passes) and the in-memory vnode cache that makes every
// open inode map to exactly one vfs.Vnode.
type Fs struct {
	devobj *mm.BlockDevObj

	// mu guards the superblock (inode/block free lists, counts). It is
	// always acquired while already holding the relevant vnode's lock
	// (the fs lock nests inside vnode locks, never the reverse), and held only for
	// the duration of the allocator bookkeeping itself.
	mu sync.Mutex
	sb superblock

	vmu    sync.Mutex
	vnodes map[uint32]*vfs.Vnode

	ops vfs.VnodeOps
}

// inodeHandle is the filesystem-private state vfs.Vnode.Data holds for
// an S5FS vnode: its inode number. The inode record itself is never
// cached independently of the device's page cache.
type inodeHandle struct {
	ino uint32
}

func handle(vn *vfs.Vnode) *inodeHandle { return vn.Data.(*inodeHandle) }

// Mkfs formats dev as a fresh S5FS volume of nblocks blocks and
// returns it mounted, with an empty root directory.
func Mkfs(dev mm.BlockDevice, nblocks uint64) (*Fs, errno.Errno) {
	const numInodes = 512
	inodeBlocks := uint32((numInodes + inodesPerBlock - 1) / inodesPerBlock)
	dataStart := 1 + inodeBlocks
	if uint64(dataStart) >= nblocks {
		return nil, errno.ENOSPC
	}

	fs := &Fs{
		devobj: mm.NewBlockDevObj(dev),
		vnodes: make(map[uint32]*vfs.Vnode),
	}
	fs.ops = &fsOps{fs: fs}

	fs.sb = superblock{
		Magic:           sbMagic,
		Version:         sbVersion,
		NumInodes:       numInodes,
		InodeBlocks:     inodeBlocks,
		DataStart:       dataStart,
		FreeInodeHead:   NoFree,
		RootInodeNumber: 0,
	}

	// Thread every inode but 0 (the root) onto the free list, highest
	// number first so allocation hands out inode 1 first.
	for i := int(numInodes) - 1; i >= 1; i-- {
		ino := uint32(i)
		var in s5Inode
		in.Type = TypeFree
		in.Indirect = fs.sb.FreeInodeHead
		if err := fs.writeInode(ino, &in); err != 0 {
			return nil, err
		}
		fs.sb.FreeInodeHead = ino
	}

	// Thread every data block onto the block free list, in reverse so
	// the lowest-numbered block allocates first.
	fs.sb.FreeBlocks[NBlksPerFnode-1] = NoFree
	for b := nblocks - 1; b >= uint64(dataStart); b-- {
		if err := fs.freeBlock(uint32(b)); err != 0 {
			return nil, err
		}
	}

	root := s5Inode{Type: TypeDir, Linkcount: 2}
	if err := fs.writeInode(0, &root); err != 0 {
		return nil, err
	}
	if err := fs.writeSuperblock(); err != 0 {
		return nil, err
	}

	rootVn := fs.newVnode(0, vfs.VDIR)
	if err := fs.initDir(rootVn, 0, 0); err != 0 {
		return nil, err
	}
	rootVn.Put()

	return fs, 0
}

// Mount reads an existing S5FS superblock from dev and returns the
// mounted filesystem.
func Mount(dev mm.BlockDevice) (*Fs, errno.Errno) {
	fs := &Fs{
		devobj: mm.NewBlockDevObj(dev),
		vnodes: make(map[uint32]*vfs.Vnode),
	}
	fs.ops = &fsOps{fs: fs}

	pf, err := fs.devobj.LookupPage(superblockNum, false)
	if err != 0 {
		return nil, err
	}
	fs.sb = decodeSuperblock(pf.Bytes)
	if fs.sb.Magic != sbMagic {
		return nil, errno.EINVAL
	}
	return fs, 0
}

// Root returns a referenced vnode for the filesystem's root directory.
func (fs *Fs) Root() (*vfs.Vnode, errno.Errno) {
	return fs.getVnode(fs.sb.RootInodeNumber)
}

func (fs *Fs) writeSuperblock() errno.Errno {
	pf, err := fs.devobj.LookupPage(superblockNum, true)
	if err != 0 {
		return err
	}
	fs.sb.encode(pf.Bytes)
	if rc := pf.Dirty(); rc != 0 {
		return errno.Errno(rc)
	}
	if rc := pf.Clean(); rc != 0 {
		return errno.Errno(rc)
	}
	return 0
}

func (fs *Fs) inodeBlockOffset(ino uint32) (blockno uint64, off int) {
	blockno = 1 + uint64(ino)/uint64(inodesPerBlock)
	off = int(ino%uint32(inodesPerBlock)) * inodeSize
	return
}

func (fs *Fs) readInode(ino uint32) (s5Inode, errno.Errno) {
	blockno, off := fs.inodeBlockOffset(ino)
	pf, err := fs.devobj.LookupPage(blockno, false)
	if err != 0 {
		return s5Inode{}, err
	}
	return decodeInode(pf.Bytes[off : off+inodeSize]), 0
}

func (fs *Fs) writeInode(ino uint32, in *s5Inode) errno.Errno {
	blockno, off := fs.inodeBlockOffset(ino)
	pf, err := fs.devobj.LookupPage(blockno, true)
	if err != 0 {
		return err
	}
	in.encode(pf.Bytes[off : off+inodeSize])
	if rc := pf.Dirty(); rc != 0 {
		return errno.Errno(rc)
	}
	if rc := pf.Clean(); rc != 0 {
		return errno.Errno(rc)
	}
	return 0
}

// newVnode allocates a fresh, uncached vfs.Vnode for ino without
// consulting or installing it in the vnode cache. Used by Mkfs before
// the filesystem is otherwise reachable.
func (fs *Fs) newVnode(ino uint32, typ vfs.VType) *vfs.Vnode {
	vn := vfs.NewVnode(typ, fs.ops)
	vn.Data = &inodeHandle{ino: ino}
	return vn
}

// getVnode returns a referenced vnode for ino, creating and caching it
// if this is the first reference ("one vnode per
// inode while referenced").
func (fs *Fs) getVnode(ino uint32) (*vfs.Vnode, errno.Errno) {
	fs.vmu.Lock()
	if vn, ok := fs.vnodes[ino]; ok {
		vn.Ref()
		fs.vmu.Unlock()
		return vn, 0
	}
	fs.vmu.Unlock()

	in, err := fs.readInode(ino)
	if err != 0 {
		return nil, err
	}

	var typ vfs.VType
	switch in.Type {
	case TypeData:
		typ = vfs.VREG
	case TypeDir:
		typ = vfs.VDIR
	case TypeChr:
		typ = vfs.VCHR
	case TypeBlk:
		typ = vfs.VBLK
	default:
		return nil, errno.ENOENT
	}

	fs.vmu.Lock()
	if vn, ok := fs.vnodes[ino]; ok {
		vn.Ref()
		fs.vmu.Unlock()
		return vn, 0
	}
	vn := fs.newVnode(ino, typ)
	vn.SetLen(int64(in.Size))
	if typ == vfs.VCHR || typ == vfs.VBLK {
		vn.Devid = blockdev.Devid(in.Indirect)
	}
	fs.vnodes[ino] = vn
	fs.vmu.Unlock()
	return vn, 0
}

func (fs *Fs) uncache(ino uint32) {
	fs.vmu.Lock()
	delete(fs.vnodes, ino)
	fs.vmu.Unlock()
}
