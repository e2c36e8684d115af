// Package s5fs implements S5FS, the on-disk filesystem whose inode
// free list, block free-list chaining, and sparse/indirect block
// layout live here. It registers
// itself against the VFS by implementing vfs.VnodeOps; vfs itself
// never looks at an inode, a dirent, or a block number.
package s5fs

import (
	"encoding/binary"

	"github.com/Metalgear47/Weenix/internal/mm"
)

const (
	// BlockSize matches the page size: one block is one page-frame.
	BlockSize = mm.PageSize

	// NDirect is the number of direct block pointers an inode carries.
	NDirect = 10

	// NBlksPerFnode is the length of the superblock's inline free
	// block array; its last slot chains to another block of the same
	// shape when the array is exhausted.
	NBlksPerFnode = 62

	// NameLen is the fixed width of a dirent's name field, matching
	// vfs.MaxNameLen so a path component always fits in one dirent.
	NameLen = 60

	// NoFree marks the end of the inode or block free list.
	NoFree = 0xFFFFFFFF

	// NIndirect is the number of block pointers held in one indirect
	// block, extending a file past its NDirect direct blocks.
	NIndirect = BlockSize / 4

	// MaxFileBlocks is the number of blocks a file can address; valid
	// block indices are 0 through MaxFileBlocks-1.
	MaxFileBlocks = NDirect + NIndirect

	sbMagic   = 0x53354653 // "S5FS"
	sbVersion = 1

	// superblockNum is the fixed block holding the superblock.
	superblockNum = 0

	// Inode type codes, matching the on-disk format.
	TypeFree = 0
	TypeData = 1
	TypeDir  = 2
	TypeChr  = 3
	TypeBlk  = 4
)

// inodeSize is the packed on-disk size of one s5Inode.
const inodeSize = 2 + 2 + 4 + NDirect*4 + 4 // type, linkcount, size, direct[], indirect

// inodesPerBlock is how many s5Inode records are packed per block.
const inodesPerBlock = BlockSize / inodeSize

// direntSize is the packed on-disk size of one dirent: a 32-bit inode
// number followed by a fixed-width, NUL-padded name.
const direntSize = 4 + NameLen

// direntsPerBlock is how many dirents are packed per data block.
const direntsPerBlock = BlockSize / direntSize

// superblock is the decoded form of the filesystem's block-0
// superblock.
type superblock struct {
	Magic           uint32
	Version         uint32
	NumInodes       uint32
	InodeBlocks     uint32
	DataStart       uint32
	FreeInodeHead   uint32
	Nfree           uint32
	FreeBlocks      [NBlksPerFnode]uint32
	RootInodeNumber uint32
}

func (s *superblock) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:], s.Version)
	binary.LittleEndian.PutUint32(buf[8:], s.NumInodes)
	binary.LittleEndian.PutUint32(buf[12:], s.InodeBlocks)
	binary.LittleEndian.PutUint32(buf[16:], s.DataStart)
	binary.LittleEndian.PutUint32(buf[20:], s.FreeInodeHead)
	binary.LittleEndian.PutUint32(buf[24:], s.Nfree)
	off := 28
	for _, b := range s.FreeBlocks {
		binary.LittleEndian.PutUint32(buf[off:], b)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], s.RootInodeNumber)
}

func decodeSuperblock(buf []byte) superblock {
	var s superblock
	s.Magic = binary.LittleEndian.Uint32(buf[0:])
	s.Version = binary.LittleEndian.Uint32(buf[4:])
	s.NumInodes = binary.LittleEndian.Uint32(buf[8:])
	s.InodeBlocks = binary.LittleEndian.Uint32(buf[12:])
	s.DataStart = binary.LittleEndian.Uint32(buf[16:])
	s.FreeInodeHead = binary.LittleEndian.Uint32(buf[20:])
	s.Nfree = binary.LittleEndian.Uint32(buf[24:])
	off := 28
	for i := range s.FreeBlocks {
		s.FreeBlocks[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	s.RootInodeNumber = binary.LittleEndian.Uint32(buf[off:])
	return s
}

// s5Inode is the decoded on-disk inode record. The
// Indirect field does triple duty: an indirect-block pointer for
// regular files and directories, a device id for CHR/BLK nodes, and a
// next-free-inode pointer while the inode sits on the free list.
type s5Inode struct {
	Type      uint16
	Linkcount uint16
	Size      uint32
	Direct    [NDirect]uint32
	Indirect  uint32
}

func (n *s5Inode) encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:], n.Type)
	binary.LittleEndian.PutUint16(buf[2:], n.Linkcount)
	binary.LittleEndian.PutUint32(buf[4:], n.Size)
	off := 8
	for _, d := range n.Direct {
		binary.LittleEndian.PutUint32(buf[off:], d)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], n.Indirect)
}

func decodeInode(buf []byte) s5Inode {
	var n s5Inode
	n.Type = binary.LittleEndian.Uint16(buf[0:])
	n.Linkcount = binary.LittleEndian.Uint16(buf[2:])
	n.Size = binary.LittleEndian.Uint32(buf[4:])
	off := 8
	for i := range n.Direct {
		n.Direct[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	n.Indirect = binary.LittleEndian.Uint32(buf[off:])
	return n
}

// dirent is one fixed-length directory entry: inode number plus a
// NUL-padded name.
type dirent struct {
	Ino  uint32
	Name string
}

func (d *dirent) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], d.Ino)
	nb := buf[4 : 4+NameLen]
	for i := range nb {
		nb[i] = 0
	}
	copy(nb, d.Name)
}

func decodeDirent(buf []byte) dirent {
	var d dirent
	d.Ino = binary.LittleEndian.Uint32(buf[0:])
	nb := buf[4 : 4+NameLen]
	n := 0
	for n < len(nb) && nb[n] != 0 {
		n++
	}
	d.Name = string(nb[:n])
	return d
}
