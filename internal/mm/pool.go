package mm

import (
	"sync"

	"golang.org/x/sys/unix"
)

// PageSize is the fixed size, in bytes, of every page frame and every
// on-disk block: S5FS blocks and VM pages are the same size, so a
// single page frame cache serves both.
const PageSize = 4096

// framesPerChunk sizes each mmap request the pool makes to the host.
const framesPerChunk = 256 // 1 MiB per chunk

// PagePool hands out page-aligned physical frames backed by anonymous
// host mmap regions. A real kernel's page-frame cache draws its frames
// from a physical-page allocator; hosted on top of an OS instead of
// bare metal, host virtual memory plays that role, the same trick
// gvisor's sentry uses to back guest "physical" memory with host pages
// (pkg/sentry/pgalloc/pgalloc.go, pkg/memutil/memutil_unsafe.go). Frames
// are only ever handed to exactly one Pframe at a time, so page-aligned
// mmap'd regions are indistinguishable from a slab of real frames for
// the purposes of pin/dirty bookkeeping above this layer.
type PagePool struct {
	mu     sync.Mutex
	chunks [][]byte
	free   [][]byte
}

// NewPagePool returns an empty pool that grows lazily on first Alloc.
func NewPagePool() *PagePool {
	return &PagePool{}
}

func (p *PagePool) grow() error {
	size := framesPerChunk * PageSize
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return err
	}
	p.chunks = append(p.chunks, b)
	for i := 0; i < framesPerChunk; i++ {
		p.free = append(p.free, b[i*PageSize:(i+1)*PageSize:(i+1)*PageSize])
	}
	return nil
}

// Alloc returns a zeroed, page-sized frame.
func (p *PagePool) Alloc() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		if err := p.grow(); err != nil {
			return nil, err
		}
	}
	n := len(p.free) - 1
	b := p.free[n]
	p.free = p.free[:n]
	for i := range b {
		b[i] = 0
	}
	return b, nil
}

// Free returns a frame previously obtained from Alloc back to the pool.
func (p *PagePool) Free(b []byte) {
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Close unmaps every chunk the pool has grown. Only safe once no
// outstanding frame is in use.
func (p *PagePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, c := range p.chunks {
		if err := unix.Munmap(c); err != nil && first == nil {
			first = err
		}
	}
	p.chunks = nil
	p.free = nil
	return first
}

// defaultPool backs every mmobj variant in this package: Base.init
// assigns it to every object, and no other pool is ever installed.
var defaultPool = NewPagePool()
