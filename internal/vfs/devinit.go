package vfs

import (
	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
)

// InitDevNodes creates /dev and mknods the memory and tty devices
// into it, the step kmain.c's boot sequence takes before starting
// init so that well-known device paths exist from the very first
// userland open() call. A fresh TtyCharDevice is registered per boot
// since, unlike /dev/null and /dev/zero, it carries buffered state
// that must not survive a remount.
func InitDevNodes(root, cwd *Vnode, who any) errno.Errno {
	if err := DoMkdir(root, cwd, who, "/dev"); err != 0 {
		return err
	}
	if err := DoMknod(root, cwd, who, "/dev/null", VCHR, blockdev.MkDevid(blockdev.MemMajor, blockdev.NullMinor)); err != 0 {
		return err
	}
	if err := DoMknod(root, cwd, who, "/dev/zero", VCHR, blockdev.MkDevid(blockdev.MemMajor, blockdev.ZeroMinor)); err != 0 {
		return err
	}
	ttyDevid := blockdev.MkDevid(blockdev.TtyMajor, 0)
	blockdev.RegisterCharDevice(ttyDevid, blockdev.NewTtyCharDevice())
	if err := DoMknod(root, cwd, who, "/dev/tty0", VCHR, ttyDevid); err != 0 {
		return err
	}
	return 0
}
