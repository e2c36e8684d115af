package vfs

import (
	"strings"

	"github.com/Metalgear47/Weenix/internal/errno"
)

// Lookup resolves name within dir, which must be a directory.
// Delegates to dir's vnode ops.
func Lookup(dir *Vnode, name string) (*Vnode, errno.Errno) {
	if dir.Type != VDIR {
		return nil, errno.ENOTDIR
	}
	if len(name) > MaxNameLen {
		return nil, errno.ENAMETOOLONG
	}
	return dir.Ops.Lookup(dir, name)
}

// splitPath breaks path into its non-empty "/"-separated components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DirNamev resolves all but the final component of path, returning a
// referenced vnode for the containing directory plus the final
// component's name. Absolute paths (leading "/") start at root;
// relative paths start at base.
func DirNamev(root, base *Vnode, path string) (*Vnode, string, errno.Errno) {
	if path == "" {
		return nil, "", errno.EINVAL
	}
	comps := splitPath(path)
	start := base
	if strings.HasPrefix(path, "/") || start == nil {
		start = root
	}
	if len(comps) == 0 {
		// path was "/" or equivalent: no final component to
		// return a parent for.
		return nil, "", errno.EINVAL
	}
	cur := start
	cur.Ref()
	for _, c := range comps[:len(comps)-1] {
		if len(c) > MaxNameLen {
			cur.Put()
			return nil, "", errno.ENAMETOOLONG
		}
		next, err := Lookup(cur, c)
		cur.Put()
		if err != 0 {
			return nil, "", err
		}
		cur = next
	}
	last := comps[len(comps)-1]
	if len(last) > MaxNameLen {
		cur.Put()
		return nil, "", errno.ENAMETOOLONG
	}
	return cur, last, 0
}

// OpenNamev resolves path fully, honoring O_CREAT: if the final
// component doesn't exist and create is true, it is created in the
// parent directory via Create. The ENOENT-check-then-Create sequence
// runs under the parent's lock, the same way every other mutating
// syscall in this package serializes against the parent directory, so
// two concurrent O_CREAT opens of the same nonexistent name can't both
// win the race and leak a second inode.
func OpenNamev(root, base *Vnode, who any, path string, create bool) (*Vnode, errno.Errno) {
	parent, name, err := DirNamev(root, base, path)
	if err != 0 {
		return nil, err
	}
	defer parent.Put()

	if !create {
		return Lookup(parent, name)
	}

	parent.Lock(who)
	defer parent.Unlock(who)

	vn, err := Lookup(parent, name)
	if err == 0 {
		return vn, 0
	}
	if err != errno.ENOENT {
		return nil, err
	}
	return parent.Ops.Create(parent, name)
}
