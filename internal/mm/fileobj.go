package mm

import "github.com/Metalgear47/Weenix/internal/errno"

// FileObj is the file-backed memory object embedded in every vfs
// vnode. It never self-destructs on Put: a vnode's page cache persists
// for as long as the vnode itself does, independent of how many
// vmareas currently map it ("file-backed never
// auto-frees"). All of the filesystem-specific translation from page
// number to block number lives behind the Pager supplied at
// construction, which for S5FS is the owning vnode itself.
type FileObj struct {
	Base
	pager Pager
}

// NewFileObj returns a file-backed object delegating to pager, with
// one reference.
func NewFileObj(pager Pager) *FileObj {
	f := &FileObj{pager: pager}
	f.init(1)
	return f
}

func (f *FileObj) Ref() { f.IncRef() }
func (f *FileObj) Put() { f.DecRef() }

func (f *FileObj) FillPage(pf *Pframe) errno.Errno  { return f.pager.FillPage(pf) }
func (f *FileObj) DirtyPage(pf *Pframe) errno.Errno { return f.pager.DirtyPage(pf) }
func (f *FileObj) CleanPage(pf *Pframe) errno.Errno { return f.pager.CleanPage(pf) }

func (f *FileObj) LookupPage(pagenum uint64, forwrite bool) (*Pframe, errno.Errno) {
	return f.Get(f, pagenum)
}

func (f *FileObj) Bottom() Mmobj { return f }

// Flush cleans every resident page, writing back anything dirty. Used
// by vnode close/sync paths.
func (f *FileObj) Flush() errno.Errno {
	for _, pf := range f.residentSnapshot() {
		if err := pf.Clean(); err != 0 {
			return errno.Errno(err)
		}
	}
	return 0
}
