package vm

import "golang.org/x/sys/unix"

// Prot's bits are defined equal to unix.PROT_*, not just numerically
// compatible with them: a syscall-dispatch layer built on top of this
// package can take the prot argument straight out of a trap frame and
// pass it to vmmap.Map without a translation table, the same way a
// real do_mmap reads the raw value a libc mmap(2) wrapper put in a
// register.
const (
	ProtNone  Prot = 0
	ProtRead  Prot = Prot(unix.PROT_READ)
	ProtWrite Prot = Prot(unix.PROT_WRITE)
	ProtExec  Prot = Prot(unix.PROT_EXEC)
)

// MapFlags mirrors unix.MAP_* the same way. MapAnon marks a mapping
// with no on-disk/file backing; this kernel always knows statically
// whether a mapping is anonymous (the caller either passes a vnode or
// doesn't) and never needs to decode it back out of a flags word the
// way a real mmap(2) trap handler does, but the bit is still sourced
// from unix.MAP_ANON for the same trap-frame-passthrough reason as Prot.
const (
	MapShared MapFlags = MapFlags(unix.MAP_SHARED)
	MapPriv   MapFlags = MapFlags(unix.MAP_PRIVATE)
	MapFixed  MapFlags = MapFlags(unix.MAP_FIXED)
	MapAnon   MapFlags = MapFlags(unix.MAP_ANON)
)
