package s5fs

import (
	"bytes"
	"testing"

	"github.com/Metalgear47/Weenix/internal/blockdev"
	"github.com/Metalgear47/Weenix/internal/errno"
	"github.com/Metalgear47/Weenix/internal/vfs"
)

func newTestFs(t *testing.T) *Fs {
	t.Helper()
	dev := blockdev.NewMemDisk(4096)
	fs, err := Mkfs(dev, 4096)
	if err != 0 {
		t.Fatalf("mkfs: %v", err)
	}
	return fs
}

func TestDevNullAndZeroReadWrite(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	who := t
	if err := vfs.InitDevNodes(root, root, who); err != 0 {
		t.Fatalf("initdevnodes: %v", err)
	}

	fds := vfs.NewFdTable()
	nullFd, err := vfs.DoOpen(root, root, fds, who, "/dev/null", vfs.ORDWR)
	if err != 0 {
		t.Fatalf("open /dev/null: %v", err)
	}
	if n, err := vfs.DoWrite(fds, who, nullFd, []byte("discarded")); err != 0 || n != len("discarded") {
		t.Fatalf("write /dev/null: n=%d err=%v", n, err)
	}
	buf := make([]byte, 4)
	if n, err := vfs.DoRead(fds, who, nullFd, buf); err != 0 || n != 0 {
		t.Fatalf("read /dev/null: n=%d err=%v, want EOF", n, err)
	}
	if err := vfs.DoClose(fds, nullFd); err != 0 {
		t.Fatalf("close /dev/null: %v", err)
	}

	zeroFd, err := vfs.DoOpen(root, root, fds, who, "/dev/zero", vfs.ORDONLY)
	if err != 0 {
		t.Fatalf("open /dev/zero: %v", err)
	}
	zbuf := []byte{0xff, 0xff, 0xff}
	if n, err := vfs.DoRead(fds, who, zeroFd, zbuf); err != 0 || n != len(zbuf) {
		t.Fatalf("read /dev/zero: n=%d err=%v", n, err)
	}
	for _, b := range zbuf {
		if b != 0 {
			t.Fatalf("/dev/zero read returned non-zero byte %x", b)
		}
	}
	if err := vfs.DoClose(fds, zeroFd); err != 0 {
		t.Fatalf("close /dev/zero: %v", err)
	}
}

func TestMkfsRootIsEmptyDir(t *testing.T) {
	fs := newTestFs(t)
	root, err := fs.Root()
	if err != 0 {
		t.Fatalf("root: %v", err)
	}
	defer root.Put()
	if root.Type != vfs.VDIR {
		t.Fatalf("root type = %v, want VDIR", root.Type)
	}
	empty, err := fs.dirIsEmpty(root)
	if err != 0 {
		t.Fatalf("dirIsEmpty: %v", err)
	}
	if !empty {
		t.Fatalf("freshly made root should contain only . and ..")
	}
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	root.Lock(t)
	vn, err := fs.ops.Create(root, "hello")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	defer vn.Put()

	payload := []byte("hello, s5fs")
	pf, err := vn.Fobj.LookupPage(0, true)
	if err != 0 {
		t.Fatalf("lookuppage: %v", err)
	}
	copy(pf.Bytes, payload)
	if rc := pf.Dirty(); rc != 0 {
		t.Fatalf("dirty: %v", errno.Errno(rc))
	}
	vn.SetLen(int64(len(payload)))
	if rc := pf.Clean(); rc != 0 {
		t.Fatalf("clean: %v", errno.Errno(rc))
	}

	ino, err := fs.findDirent(root, "hello")
	if err != 0 {
		t.Fatalf("find: %v", err)
	}
	reopened, err := fs.getVnode(ino)
	if err != 0 {
		t.Fatalf("getvnode: %v", err)
	}
	defer reopened.Put()

	rpf, err := reopened.Fobj.LookupPage(0, false)
	if err != 0 {
		t.Fatalf("reread lookuppage: %v", err)
	}
	if !bytes.Equal(rpf.Bytes[:len(payload)], payload) {
		t.Fatalf("round trip mismatch: got %q", rpf.Bytes[:len(payload)])
	}
}

func TestSparseWriteLeavesHoleZeroed(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	root.Lock(t)
	vn, err := fs.ops.Create(root, "sparse")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	defer vn.Put()

	// Write block 3 directly without touching blocks 0-2; the
	// filesystem must never materialize a direct pointer for them.
	pf, err := vn.Fobj.LookupPage(3, true)
	if err != 0 {
		t.Fatalf("lookuppage(3): %v", err)
	}
	pf.Bytes[0] = 0x7
	pf.Dirty()
	vn.SetLen(4 * BlockSize)

	hole, err := vn.Fobj.LookupPage(1, false)
	if err != 0 {
		t.Fatalf("lookuppage(1): %v", err)
	}
	for i, b := range hole.Bytes {
		if b != 0 {
			t.Fatalf("sparse block byte %d = %x, want 0", i, b)
		}
	}

	blockno, err := fs.seekToBlock(handle(vn).ino, 1, false)
	if err != 0 {
		t.Fatalf("seektoblock: %v", err)
	}
	if blockno != 0 {
		t.Fatalf("hole block got allocated: blockno = %d", blockno)
	}
}

func TestMkdirRmdirRoundTrip(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	root.Lock(t)
	sub, err := fs.ops.Mkdir(root, "sub")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("mkdir: %v", err)
	}

	in, _ := fs.readInode(handle(sub).ino)
	if in.Linkcount != 2 {
		t.Fatalf("new dir linkcount = %d, want 2", in.Linkcount)
	}
	pin, _ := fs.readInode(handle(root).ino)
	if pin.Linkcount != 3 {
		t.Fatalf("parent linkcount after mkdir = %d, want 3", pin.Linkcount)
	}
	sub.Put()

	root.Lock(t)
	err = fs.ops.Rmdir(root, "sub")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("rmdir: %v", err)
	}
	if _, err := fs.findDirent(root, "sub"); err != errno.ENOENT {
		t.Fatalf("find after rmdir = %v, want ENOENT", err)
	}
}

func TestRmdirNonEmptyFails(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	root.Lock(t)
	sub, err := fs.ops.Mkdir(root, "sub")
	if err != 0 {
		t.Fatalf("mkdir: %v", err)
	}
	child, err := fs.ops.Create(sub, "f")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	child.Put()

	root.Lock(t)
	err = fs.ops.Rmdir(root, "sub")
	root.Unlock(t)
	if err != errno.ENOTEMPTY {
		t.Fatalf("rmdir non-empty = %v, want ENOTEMPTY", err)
	}
	sub.Put()
}

func TestLinkAndUnlink(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	root.Lock(t)
	vn, err := fs.ops.Create(root, "a")
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	err = fs.ops.Link(root, "b", vn)
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("link: %v", err)
	}

	in, _ := fs.readInode(handle(vn).ino)
	if in.Linkcount != 2 {
		t.Fatalf("linkcount after link = %d, want 2", in.Linkcount)
	}

	root.Lock(t)
	err = fs.ops.Unlink(root, "a")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("unlink a: %v", err)
	}
	if _, err := fs.findDirent(root, "b"); err != 0 {
		t.Fatalf("b should still resolve after unlinking a: %v", err)
	}
	vn.Put()
}

func TestGetdentIteratesDotAndDotDot(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	var names []string
	var off int64
	for {
		name, _, next, err := fs.ops.Getdent(root, off)
		if err != 0 {
			t.Fatalf("getdent: %v", err)
		}
		if next == off {
			break
		}
		names = append(names, name)
		off = next
	}
	if len(names) != 2 || names[0] != "." || names[1] != ".." {
		t.Fatalf("unexpected dirent sequence: %v", names)
	}
}

func TestTruncateFreesBlocks(t *testing.T) {
	fs := newTestFs(t)
	root, _ := fs.Root()
	defer root.Put()

	root.Lock(t)
	vn, err := fs.ops.Create(root, "big")
	root.Unlock(t)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	defer vn.Put()

	for i := uint64(0); i < 3; i++ {
		pf, err := vn.Fobj.LookupPage(i, true)
		if err != 0 {
			t.Fatalf("lookuppage(%d): %v", i, err)
		}
		pf.Dirty()
	}
	vn.SetLen(3 * BlockSize)

	if err := fs.ops.Truncate(vn, BlockSize); err != 0 {
		t.Fatalf("truncate: %v", err)
	}
	ino := handle(vn).ino
	in, _ := fs.readInode(ino)
	if in.Direct[1] != 0 || in.Direct[2] != 0 {
		t.Fatalf("truncate left direct blocks allocated: %+v", in.Direct[:3])
	}
	if vn.Len() != BlockSize {
		t.Fatalf("len after truncate = %d, want %d", vn.Len(), BlockSize)
	}
}
