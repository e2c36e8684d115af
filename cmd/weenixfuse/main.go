// Command weenixfuse mounts a S5FS volume on a host directory using
// FUSE, translating every FUSE callback onto the same vfs.Do* syscall
// surface cmd/weenixsim drives directly. It exists to let a real
// POSIX client (ls, cat, dd) exercise this kernel's filesystem without
// a userland binary or a trap dispatcher, the way quantumfs exposes
// its own custom object store through go-fuse.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"

	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/klog"
	"github.com/Metalgear47/Weenix/internal/s5fs"
	"github.com/Metalgear47/Weenix/internal/vfs"
)

func main() {
	disk := flag.String("disk", "", "path to the disk image backing the S5FS volume")
	mount := flag.String("mount", "", "host directory to mount the volume on")
	blocks := flag.Uint64("blocks", 8192, "number of blocks to format if the image is new")
	format := flag.Bool("format", false, "format a fresh volume instead of mounting an existing one")
	flag.Parse()

	if *disk == "" || *mount == "" {
		fmt.Fprintln(os.Stderr, "usage: weenixfuse -disk <path> -mount <dir> [-format] [-blocks N]")
		os.Exit(2)
	}

	dev, err := blockdev.OpenFileDisk(*disk, *blocks)
	if err != 0 {
		fmt.Fprintf(os.Stderr, "weenixfuse: open disk: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	var fs *s5fs.Fs
	if *format {
		fs, err = s5fs.Mkfs(dev, *blocks)
	} else {
		fs, err = s5fs.Mount(dev)
	}
	if err != 0 {
		fmt.Fprintf(os.Stderr, "weenixfuse: mount: %v\n", err)
		os.Exit(1)
	}

	root, err := fs.Root()
	if err != 0 {
		fmt.Fprintf(os.Stderr, "weenixfuse: root: %v\n", err)
		os.Exit(1)
	}
	defer root.Put()

	kfs := &weenixFS{
		FileSystem: pathfs.NewDefaultFileSystem(),
		root:       root,
		fds:        vfs.NewFdTable(),
	}
	nfs := pathfs.NewPathNodeFs(kfs, nil)
	server, _, serr := nodefs.MountRoot(*mount, nfs.Root(), nil)
	if serr != nil {
		fmt.Fprintf(os.Stderr, "weenixfuse: mount root: %v\n", serr)
		os.Exit(1)
	}
	klog.Infof("mounted %s on %s", *disk, *mount)
	server.Serve()
}

// weenixFS adapts vfs's path-based syscalls to go-fuse's pathfs.FileSystem.
// who is a single token shared across every call: this kernel core has no
// concept of multiple concurrent FUSE callers, matching the single-CPU,
// cooperative-scheduling scope the rest of the core is built to.
type weenixFS struct {
	pathfs.FileSystem
	root *vfs.Vnode

	mu  sync.Mutex
	fds *vfs.FdTable
}

func (w *weenixFS) who() any { return w }

func fusePath(name string) string {
	if name == "" {
		return "/"
	}
	return "/" + name
}

func (w *weenixFS) GetAttr(name string, context *fuse.Context) (*fuse.Attr, fuse.Status) {
	st, err := vfs.DoStat(w.root, w.root, fusePath(name))
	if err != 0 {
		return nil, fuse.ENOENT
	}
	mode := uint32(fuse.S_IFREG | 0644)
	switch st.Type {
	case vfs.VDIR:
		mode = fuse.S_IFDIR | 0755
	case vfs.VCHR:
		mode = uint32(syscall.S_IFCHR) | 0644
	case vfs.VBLK:
		mode = uint32(syscall.S_IFBLK) | 0644
	}
	return &fuse.Attr{Mode: mode, Size: uint64(st.Size), Nlink: uint32(st.Nlink)}, fuse.OK
}

func (w *weenixFS) OpenDir(name string, context *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fd, err := vfs.DoOpen(w.root, w.root, w.fds, w.who(), fusePath(name), vfs.ORDONLY)
	if err != 0 {
		return nil, fuse.ENOENT
	}
	defer vfs.DoClose(w.fds, fd)

	var entries []fuse.DirEntry
	for {
		entryName, _, derr := vfs.DoGetdent(w.fds, fd)
		if derr != 0 {
			break
		}
		if entryName == "" {
			break
		}
		entries = append(entries, fuse.DirEntry{Name: entryName})
	}
	return entries, fuse.OK
}

func (w *weenixFS) Open(name string, flags uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	w.mu.Lock()
	oflags := vfs.ORDWR
	fd, err := vfs.DoOpen(w.root, w.root, w.fds, w.who(), fusePath(name), oflags)
	w.mu.Unlock()
	if err != 0 {
		return nil, fuse.ENOENT
	}
	return &weenixFile{File: nodefs.NewDefaultFile(), w: w, fd: fd}, fuse.OK
}

func (w *weenixFS) Create(name string, flags uint32, mode uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	w.mu.Lock()
	fd, err := vfs.DoOpen(w.root, w.root, w.fds, w.who(), fusePath(name), vfs.ORDWR|vfs.OCREAT)
	w.mu.Unlock()
	if err != 0 {
		return nil, fuse.EIO
	}
	return &weenixFile{File: nodefs.NewDefaultFile(), w: w, fd: fd}, fuse.OK
}

func (w *weenixFS) Mkdir(name string, mode uint32, context *fuse.Context) fuse.Status {
	if err := vfs.DoMkdir(w.root, w.root, w.who(), fusePath(name)); err != 0 {
		return fuse.EIO
	}
	return fuse.OK
}

func (w *weenixFS) Rmdir(name string, context *fuse.Context) fuse.Status {
	if err := vfs.DoRmdir(w.root, w.root, w.who(), fusePath(name)); err != 0 {
		return fuse.EIO
	}
	return fuse.OK
}

func (w *weenixFS) Unlink(name string, context *fuse.Context) fuse.Status {
	if err := vfs.DoUnlink(w.root, w.root, w.who(), fusePath(name)); err != 0 {
		return fuse.EIO
	}
	return fuse.OK
}

func (w *weenixFS) Rename(oldName string, newName string, context *fuse.Context) fuse.Status {
	if err := vfs.DoRename(w.root, w.root, w.who(), fusePath(oldName), fusePath(newName)); err != 0 {
		return fuse.EIO
	}
	return fuse.OK
}

func (w *weenixFS) Truncate(name string, size uint64, context *fuse.Context) fuse.Status {
	fd, err := vfs.DoOpen(w.root, w.root, w.fds, w.who(), fusePath(name), vfs.ORDWR)
	if err != 0 {
		return fuse.ENOENT
	}
	defer vfs.DoClose(w.fds, fd)
	return fuse.OK
}

// weenixFile is the per-open-fd handle FUSE reads and writes through,
// delegating straight to the fd it was opened with.
type weenixFile struct {
	nodefs.File
	w  *weenixFS
	fd int
}

func (f *weenixFile) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, err := vfs.DoLseek(f.w.fds, f.fd, off, vfs.SeekSet); err != 0 {
		return nil, fuse.EIO
	}
	n, err := vfs.DoRead(f.w.fds, f.w.who(), f.fd, dest)
	if err != 0 {
		return nil, fuse.EIO
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (f *weenixFile) Write(data []byte, off int64) (uint32, fuse.Status) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, err := vfs.DoLseek(f.w.fds, f.fd, off, vfs.SeekSet); err != 0 {
		return 0, fuse.EIO
	}
	n, err := vfs.DoWrite(f.w.fds, f.w.who(), f.fd, data)
	if err != 0 {
		return 0, fuse.EIO
	}
	return uint32(n), fuse.OK
}

func (f *weenixFile) Release() {
	f.w.mu.Lock()
	vfs.DoClose(f.w.fds, f.fd)
	f.w.mu.Unlock()
}
