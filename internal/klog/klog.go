// Package klog is the hosted kernel's console: one prefixed, leveled
// wrapper around the standard library's log.Logger, in place of the
// freestanding kernel's own early-boot printf. No third-party
// structured-logging package appears anywhere in the retrieval pack,
// so this stays on the standard library rather than reaching for one
// that was never grounded.
package klog

import (
	"io"
	"log"
	"os"
)

var std = log.New(os.Stderr, "[weenixsim] ", 0)

// SetOutput redirects the console, mainly for tests that want to
// capture boot narration instead of letting it hit stderr.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Infof narrates a milestone: mount, fork, reap, mkfs.
func Infof(format string, args ...any) {
	std.Printf(format, args...)
}

// Faultf narrates a recoverable fault: a process killed by EFAULT, a
// sparse-read miss. Distinguished from Infof only by prefix, since
// this kernel has no log-level filtering to configure.
func Faultf(format string, args ...any) {
	std.Printf("fault: "+format, args...)
}
