package blockdev

import (
	"os"
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
)

// FileDisk is MemDisk's host-backed counterpart: a BlockDevice whose
// blocks live in a regular file instead of process memory, grounded
// on jnwhiteh-minixfs's device package (a minixfs block device backed
// by a host os.File rather than an in-memory array). It exists so
// cmd/weenixfuse can mount a volume that survives the process, the
// same role a real disk image plays for an emulator.
type FileDisk struct {
	mu      sync.Mutex
	f       *os.File
	nblocks uint64
}

// OpenFileDisk opens (creating if needed) path as a block device with
// nblocks blocks, growing the file to the required size if it is
// smaller.
func OpenFileDisk(path string, nblocks uint64) (*FileDisk, errno.Errno) {
	f, oerr := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if oerr != nil {
		return nil, errno.EIO
	}
	size := int64(nblocks * BlockSize)
	fi, serr := f.Stat()
	if serr != nil {
		f.Close()
		return nil, errno.EIO
	}
	if fi.Size() < size {
		if ferr := f.Truncate(size); ferr != nil {
			f.Close()
			return nil, errno.EIO
		}
	}
	return &FileDisk{f: f, nblocks: nblocks}, 0
}

// NumBlocks reports the device's fixed capacity.
func (d *FileDisk) NumBlocks() uint64 { return d.nblocks }

// ReadBlock reads one BlockSize-sized block into buf.
func (d *FileDisk) ReadBlock(blockno uint64, buf []byte) errno.Errno {
	if blockno >= d.nblocks {
		return errno.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.ReadAt(buf[:BlockSize], int64(blockno*BlockSize)); err != nil {
		return errno.EIO
	}
	return 0
}

// WriteBlock writes buf back to blockno.
func (d *FileDisk) WriteBlock(blockno uint64, buf []byte) errno.Errno {
	if blockno >= d.nblocks {
		return errno.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.WriteAt(buf[:BlockSize], int64(blockno*BlockSize)); err != nil {
		return errno.EIO
	}
	return 0
}

// Close flushes and closes the backing file.
func (d *FileDisk) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.f.Sync()
	d.f.Close()
}
