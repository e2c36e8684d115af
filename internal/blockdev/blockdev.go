// Package blockdev implements the block- and character-device
// contracts the kernel core treats as external collaborators: a block
// device offers ReadBlock(n)/WriteBlock(n) and a character device
// offers byte Read/Write. The ATA driver, AHCI controller, and TTY
// line discipline that would sit underneath these on real hardware
// are out of scope; MemDisk and FileDisk play their role for S5FS and
// for tests.
package blockdev

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/mm"
)

// BlockSize is fixed at the page size: S5FS blocks and VM pages share
// one page-frame cache, so there is exactly one size in the system.
const BlockSize = mm.PageSize

// request mirrors Biscuit's Bdev_req_t/AckCh design (common/disk.go):
// disk I/O is queued to a single worker and the submitter blocks on a
// channel, giving every caller of ReadBlock/WriteBlock a genuine
// suspension point the way real block I/O would.
type request struct {
	write  bool
	block  uint64
	buf    []byte
	ack    chan errno.Errno
}

// MemDisk is an in-memory block device: a fixed-size array of blocks
// served by a single worker goroutine that processes requests FIFO,
// the same ordering discipline the wait-queue package gives every
// other blocking resource in the kernel.
type MemDisk struct {
	mu     sync.Mutex
	blocks [][]byte
	reqs   chan *request
	done   chan struct{}
}

// NewMemDisk returns a zeroed disk of nblocks blocks.
func NewMemDisk(nblocks uint64) *MemDisk {
	d := &MemDisk{
		blocks: make([][]byte, nblocks),
		reqs:   make(chan *request, 64),
		done:   make(chan struct{}),
	}
	for i := range d.blocks {
		d.blocks[i] = make([]byte, BlockSize)
	}
	go d.worker()
	return d
}

func (d *MemDisk) worker() {
	for {
		select {
		case req := <-d.reqs:
			d.mu.Lock()
			if req.block >= uint64(len(d.blocks)) {
				d.mu.Unlock()
				req.ack <- errno.EINVAL
				continue
			}
			if req.write {
				copy(d.blocks[req.block], req.buf)
			} else {
				copy(req.buf, d.blocks[req.block])
			}
			d.mu.Unlock()
			req.ack <- 0
		case <-d.done:
			return
		}
	}
}

// NumBlocks reports the device's fixed capacity.
func (d *MemDisk) NumBlocks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.blocks))
}

// ReadBlock reads one BlockSize-sized block into buf, blocking until
// the (simulated) device completes the transfer.
func (d *MemDisk) ReadBlock(blockno uint64, buf []byte) errno.Errno {
	req := &request{block: blockno, buf: buf, ack: make(chan errno.Errno, 1)}
	d.reqs <- req
	return <-req.ack
}

// WriteBlock writes buf back to blockno, blocking until acknowledged.
func (d *MemDisk) WriteBlock(blockno uint64, buf []byte) errno.Errno {
	req := &request{write: true, block: blockno, buf: buf, ack: make(chan errno.Errno, 1)}
	d.reqs <- req
	return <-req.ack
}

// Close stops the worker goroutine.
func (d *MemDisk) Close() {
	close(d.done)
}
