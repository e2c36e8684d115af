package blockdev

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/errno"
)

// Devid identifies a device node: an 8-bit major selecting the driver
// class and an 8-bit minor selecting the instance, packed into 16
// bits.
type Devid uint16

// MkDevid packs a (major, minor) pair.
func MkDevid(major, minor uint8) Devid {
	return Devid(uint16(major)<<8 | uint16(minor))
}

func (d Devid) Major() uint8 { return uint8(d >> 8) }
func (d Devid) Minor() uint8 { return uint8(d) }

// Well-known device classes. Memory devices (/dev/null, /dev/zero)
// share one major; ttys share another; block device 0 is always the
// root disk.
const (
	MemMajor = 1
	TtyMajor = 2

	NullMinor = 0
	ZeroMinor = 1

	RootDisk = 0
)

// CharDevice is the byte-stream contract a character-special vnode
// delegates to.
type CharDevice interface {
	Read(buf []byte) (int, errno.Errno)
	Write(buf []byte) (int, errno.Errno)
}

// NullCharDevice backs /dev/null: reads return EOF, writes are
// discarded and report full length written.
type NullCharDevice struct{}

func (NullCharDevice) Read(buf []byte) (int, errno.Errno)  { return 0, 0 }
func (NullCharDevice) Write(buf []byte) (int, errno.Errno) { return len(buf), 0 }

// ZeroCharDevice backs /dev/zero: reads are zero-filled, writes are
// discarded.
type ZeroCharDevice struct{}

func (ZeroCharDevice) Read(buf []byte) (int, errno.Errno) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), 0
}
func (ZeroCharDevice) Write(buf []byte) (int, errno.Errno) { return len(buf), 0 }

// TtyCharDevice is a minimal byte-buffered stand-in for a real tty
// line discipline, which is treated as an external
// collaborator out of this core's scope. It is just enough to let
// init's mknod("/dev/tty0", ...) and basic read/write syscalls work
// end to end without a real console driver.
type TtyCharDevice struct {
	buf []byte
}

func NewTtyCharDevice() *TtyCharDevice { return &TtyCharDevice{} }

func (t *TtyCharDevice) Write(buf []byte) (int, errno.Errno) {
	t.buf = append(t.buf, buf...)
	return len(buf), 0
}

func (t *TtyCharDevice) Read(buf []byte) (int, errno.Errno) {
	n := copy(buf, t.buf)
	t.buf = t.buf[n:]
	return n, 0
}

// charDevs maps a devid to the live CharDevice it names. A vnode
// only remembers its Devid; looking the driver up here keeps every
// /dev/null vnode (however many inodes a filesystem happens to have
// linked to it) sharing one instance, the way one real driver backs
// every mknod'd node of the same major/minor.
var (
	charDevMu sync.Mutex
	charDevs  = map[Devid]CharDevice{
		MkDevid(MemMajor, NullMinor): NullCharDevice{},
		MkDevid(MemMajor, ZeroMinor): ZeroCharDevice{},
	}
)

// RegisterCharDevice binds devid to dev, overwriting any prior
// binding. Used to install a fresh TtyCharDevice per boot, since
// unlike null/zero it has session-local buffered state.
func RegisterCharDevice(devid Devid, dev CharDevice) {
	charDevMu.Lock()
	charDevs[devid] = dev
	charDevMu.Unlock()
}

// LookupCharDevice resolves devid to its driver. A vnode of type VCHR
// whose devid was never registered (a stale mknod from a disk image
// for a driver this boot didn't install) reports ENODEV.
func LookupCharDevice(devid Devid) (CharDevice, errno.Errno) {
	charDevMu.Lock()
	dev, ok := charDevs[devid]
	charDevMu.Unlock()
	if !ok {
		return nil, errno.ENODEV
	}
	return dev, 0
}
