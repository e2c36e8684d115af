package s5fs

import "github.com/Metalgear47/Weenix/internal/errno"

// allocBlock pops one block off the free list, refilling the inline
// array from disk when it runs dry. Mirrors s5_alloc_block's inline
// free-array-with-chaining design, but symmetric with freeBlock below:
// the chain block harvested on refill is itself returned as the newly
// allocated block rather than left stranded untracked.
func (fs *Fs) allocBlock() (uint32, errno.Errno) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sb.Nfree == 0 {
		chain := fs.sb.FreeBlocks[NBlksPerFnode-1]
		if chain == NoFree {
			return 0, errno.ENOSPC
		}
		pf, err := fs.devobj.LookupPage(uint64(chain), false)
		if err != 0 {
			return 0, err
		}
		decodeBlockArray(pf.Bytes, fs.sb.FreeBlocks[:])
		fs.sb.Nfree = NBlksPerFnode - 1
		if err := fs.writeSuperblockLocked(); err != 0 {
			return 0, err
		}
		return chain, 0
	}

	fs.sb.Nfree--
	blockno := fs.sb.FreeBlocks[fs.sb.Nfree]
	if err := fs.writeSuperblockLocked(); err != 0 {
		return 0, err
	}
	return blockno, 0
}

// freeBlock returns blockno to the free list, spilling the inline
// array onto blockno itself (making it the new chain block) when the
// array is full.
func (fs *Fs) freeBlock(blockno uint32) errno.Errno {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sb.Nfree == NBlksPerFnode-1 {
		pf, err := fs.devobj.LookupPage(uint64(blockno), true)
		if err != 0 {
			return err
		}
		encodeBlockArray(pf.Bytes, fs.sb.FreeBlocks[:])
		if rc := pf.Dirty(); rc != 0 {
			return errno.Errno(rc)
		}
		if rc := pf.Clean(); rc != 0 {
			return errno.Errno(rc)
		}
		fs.sb.Nfree = 0
		fs.sb.FreeBlocks[NBlksPerFnode-1] = blockno
		return fs.writeSuperblockLocked()
	}

	fs.sb.FreeBlocks[fs.sb.Nfree] = blockno
	fs.sb.Nfree++
	return fs.writeSuperblockLocked()
}

// writeSuperblockLocked persists fs.sb; the caller must hold fs.mu.
func (fs *Fs) writeSuperblockLocked() errno.Errno {
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

func decodeBlockArray(buf []byte, out []uint32) {
	off := 0
	for i := range out {
		out[i] = uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
		off += 4
	}
}

func encodeBlockArray(buf []byte, in []uint32) {
	off := 0
	for _, v := range in {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
		off += 4
	}
}

// allocInode pops the head of the inode free list and initializes it
// as a fresh inode of type typ (devid is recorded for CHR/BLK nodes).
func (fs *Fs) allocInode(typ uint16, devid uint32) (uint32, errno.Errno) {
	fs.mu.Lock()
	head := fs.sb.FreeInodeHead
	if head == NoFree {
		fs.mu.Unlock()
		return 0, errno.ENOSPC
	}
	in, err := fs.readInode(head)
	if err != 0 {
		fs.mu.Unlock()
		return 0, err
	}
	fs.sb.FreeInodeHead = in.Indirect
	if err := fs.writeSuperblockLocked(); err != 0 {
		fs.mu.Unlock()
		return 0, err
	}
	fs.mu.Unlock()

	in = s5Inode{Type: typ}
	if typ == TypeChr || typ == TypeBlk {
		in.Indirect = devid
	}
	if err := fs.writeInode(head, &in); err != 0 {
		return 0, err
	}
	return head, 0
}

// freeInode releases every block the inode owns and returns it to the
// inode free list.
func (fs *Fs) freeInode(ino uint32) errno.Errno {
	in, err := fs.readInode(ino)
	if err != 0 {
		return err
	}

	for i, b := range in.Direct {
		if b != 0 {
			if err := fs.freeBlock(b); err != 0 {
				return err
			}
			in.Direct[i] = 0
		}
	}
	if (in.Type == TypeData || in.Type == TypeDir) && in.Indirect != 0 {
		pf, err := fs.devobj.LookupPage(uint64(in.Indirect), false)
		if err != 0 {
			return err
		}
		entries := make([]uint32, NIndirect)
		decodeBlockArray(pf.Bytes, entries)
		for _, b := range entries {
			if b != 0 {
				if err := fs.freeBlock(b); err != 0 {
					return err
				}
			}
		}
		if err := fs.freeBlock(in.Indirect); err != 0 {
			return err
		}
	}

	fs.mu.Lock()
	in.Type = TypeFree
	in.Linkcount = 0
	in.Size = 0
	in.Indirect = fs.sb.FreeInodeHead
	fs.sb.FreeInodeHead = ino
	werr := fs.writeSuperblockLocked()
	fs.mu.Unlock()
	if werr != 0 {
		return werr
	}
	return fs.writeInode(ino, &in)
}

// seekToBlock translates a file-relative block index into a device
// block number, allocating direct and indirect blocks on demand when
// alloc is true. A sparse block returns (0, 0) when alloc is false.
func (fs *Fs) seekToBlock(ino uint32, blocknumFile uint64, alloc bool) (uint32, errno.Errno) {
	if blocknumFile >= MaxFileBlocks {
		return 0, errno.EINVAL
	}

	in, err := fs.readInode(ino)
	if err != 0 {
		return 0, err
	}

	if blocknumFile < NDirect {
		b := in.Direct[blocknumFile]
		if b != 0 {
			return b, 0
		}
		if !alloc {
			return 0, 0
		}
		nb, err := fs.allocBlock()
		if err != 0 {
			return 0, err
		}
		in.Direct[blocknumFile] = nb
		if err := fs.writeInode(ino, &in); err != 0 {
			return 0, err
		}
		return nb, 0
	}

	idx := blocknumFile - NDirect
	if in.Indirect == 0 {
		if !alloc {
			return 0, 0
		}
		ib, err := fs.allocBlock()
		if err != 0 {
			return 0, err
		}
		pf, err := fs.devobj.LookupPage(uint64(ib), true)
		if err != 0 {
			return 0, err
		}
		for i := range pf.Bytes {
			pf.Bytes[i] = 0
		}
		if rc := pf.Dirty(); rc != 0 {
			return 0, errno.Errno(rc)
		}
		in.Indirect = ib
		if err := fs.writeInode(ino, &in); err != 0 {
			return 0, err
		}
	}

	pf, err := fs.devobj.LookupPage(uint64(in.Indirect), true)
	if err != 0 {
		return 0, err
	}
	off := idx * 4
	b := uint32(pf.Bytes[off]) | uint32(pf.Bytes[off+1])<<8 | uint32(pf.Bytes[off+2])<<16 | uint32(pf.Bytes[off+3])<<24
	if b != 0 {
		return b, 0
	}
	if !alloc {
		return 0, 0
	}
	nb, err := fs.allocBlock()
	if err != 0 {
		return 0, err
	}
	pf.Bytes[off] = byte(nb)
	pf.Bytes[off+1] = byte(nb >> 8)
	pf.Bytes[off+2] = byte(nb >> 16)
	pf.Bytes[off+3] = byte(nb >> 24)
	if rc := pf.Dirty(); rc != 0 {
		return 0, errno.Errno(rc)
	}
	return nb, 0
}
