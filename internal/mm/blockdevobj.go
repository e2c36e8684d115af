package mm

import "github.com/Metalgear47/Weenix/internal/errno"

// BlockDevice is the minimal contract a raw block device must offer
// to back a BlockDevObj: page-sized (block-sized) reads and writes
// addressed by block number. Concrete devices live in the blockdev
// package; this package only depends on the method set, not the
// concrete types, to keep mm free of a dependency on device drivers.
type BlockDevice interface {
	ReadBlock(blockno uint64, buf []byte) errno.Errno
	WriteBlock(blockno uint64, buf []byte) errno.Errno
}

// BlockDevObj is the page cache for a raw block device: S5FS mounts
// one per backing disk and serves superblock, inode-table, indirect-
// block, and data-block pages through it, and the VFS can map a
// device's raw bytes directly when opening a block-special file.
type BlockDevObj struct {
	Base
	dev BlockDevice
}

// NewBlockDevObj returns the page cache object for dev with one
// reference.
func NewBlockDevObj(dev BlockDevice) *BlockDevObj {
	b := &BlockDevObj{dev: dev}
	b.init(1)
	return b
}

func (b *BlockDevObj) Ref() { b.IncRef() }
func (b *BlockDevObj) Put() { b.DecRef() }

func (b *BlockDevObj) FillPage(pf *Pframe) errno.Errno {
	return b.dev.ReadBlock(pf.Pagenum, pf.Bytes)
}

func (b *BlockDevObj) DirtyPage(pf *Pframe) errno.Errno { return 0 }

func (b *BlockDevObj) CleanPage(pf *Pframe) errno.Errno {
	return b.dev.WriteBlock(pf.Pagenum, pf.Bytes)
}

func (b *BlockDevObj) LookupPage(pagenum uint64, forwrite bool) (*Pframe, errno.Errno) {
	return b.Get(b, pagenum)
}

func (b *BlockDevObj) Bottom() Mmobj { return b }
