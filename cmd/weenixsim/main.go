// Command weenixsim boots the hosted kernel simulation: it formats a
// fresh S5FS volume on an in-memory block device, starts the init
// process, and drives a short scripted workload exercising the
// filesystem, address-space, and process subsystems end to end. It
// exists to give the kernel packages a runnable entry point the way
// biscuit/main.go drives the real kernel's boot sequence, not as a
// user-facing tool.
package main

import (
	"fmt"
	"os"

	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/klog"
	"github.com/Metalgear47/Weenix/internal/s5fs"
	"github.com/Metalgear47/Weenix/internal/sched"
	"github.com/Metalgear47/Weenix/internal/vfs"
	"github.com/Metalgear47/Weenix/internal/vm"
)

const diskBlocks = 8192

func main() {
	if err := run(); err != 0 {
		fmt.Fprintf(os.Stderr, "weenixsim: %v\n", err)
		os.Exit(1)
	}
}

func run() errno.Errno {
	klog.Infof("formatting %d-block root disk", diskBlocks)
	dev := blockdev.NewMemDisk(diskBlocks)
	fs, err := s5fs.Mkfs(dev, diskBlocks)
	if err != 0 {
		return err
	}

	root, err := fs.Root()
	if err != 0 {
		return err
	}
	defer root.Put()

	klog.Infof("starting init")
	init0, err := sched.CreateProc("init", nil)
	if err != 0 {
		return err
	}
	root.Ref()
	init0.Cwd = root

	who := init0

	if err := vfs.DoMkdir(root, init0.Cwd, who, "/bin"); err != 0 {
		return err
	}
	klog.Infof("mkdir /bin -> ok")

	if err := vfs.InitDevNodes(root, init0.Cwd, who); err != 0 {
		return err
	}
	klog.Infof("mknod /dev/{null,zero,tty0} -> ok")

	fd, err := vfs.DoOpen(root, init0.Cwd, init0.Fds, who, "/greeting", vfs.OCREAT|vfs.ORDWR)
	if err != 0 {
		return err
	}
	payload := []byte("hello from a hosted kernel\n")
	n, err := vfs.DoWrite(init0.Fds, who, fd, payload)
	if err != 0 {
		return err
	}
	klog.Infof("wrote %d bytes to /greeting", n)

	if _, err := vfs.DoLseek(init0.Fds, fd, 0, vfs.SeekSet); err != 0 {
		return err
	}
	buf := make([]byte, len(payload))
	if _, err := vfs.DoRead(init0.Fds, who, fd, buf); err != 0 {
		return err
	}
	klog.Infof("read back: %s", buf)
	if err := vfs.DoClose(init0.Fds, fd); err != 0 {
		return err
	}

	area, err := init0.Vmmap.Map(nil, 0, 4, vm.ProtRead|vm.ProtWrite, vm.MapPriv, 0, vm.LoHi)
	if err != 0 {
		return err
	}
	if err := vm.HandleFault(init0.Vmmap, area.Start*vm.PageSize, vm.FaultWrite); err != 0 {
		return err
	}
	klog.Infof("mapped %d anonymous pages at vpn %d", area.Npages, area.Start)

	status := make(chan int, 1)
	child, _, err := sched.DoFork(init0, func(self *sched.Thread, a1, a2 any) int {
		klog.Infof("child pid %d running", self.Proc.Pid)
		sched.DoExit(self.Proc, self, 42)
		status <- 42
		return 42
	}, nil, nil)
	if err != 0 {
		return err
	}
	<-status

	_, exitStatus, err := sched.DoWaitpid(init0, child.Pid, 0)
	if err != 0 {
		return err
	}
	klog.Infof("reaped child pid %d, status %d", child.Pid, exitStatus)

	return 0
}

