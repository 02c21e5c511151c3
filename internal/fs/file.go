package fs

import (
	"context"
	"io"
	"os"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"mediafirefs/internal/errs"
)

// File is a file node: a thin, stateless view onto the catalog at a
// given path. The open file's actual content lives in the staging fd
// owned by the FileHandle produced by Open/Create, not here.
type File struct {
	fs   *VfsAdapter
	path string
}

var _ Directory = (*Dir)(nil)
var _ FileInterface = (*File)(nil)
var _ FileHandleInterface = (*FileHandle)(nil)

// Attr implements fusefs.Node.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	return f.fs.getattr(ctx, f.path, a)
}

// Open implements fusefs.NodeOpener, applying the exclusion rules of
// §4.2 via the open-handle manager before materializing or reusing a
// staging file.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	writable := req.Flags&fuse.OpenFlags(os.O_WRONLY) != 0 || req.Flags&fuse.OpenFlags(os.O_RDWR) != 0

	h, err := f.fs.handles.Open(ctx, f.path, writable)
	if err != nil {
		return nil, errs.ToErrno(err)
	}

	resp.Flags |= fuse.OpenDirectIO
	return &FileHandle{fs: f.fs, path: f.path, token: h.Token, staged: h.Staged}, nil
}

// FileHandle is the open-handle-backed fusefs.Handle returned by
// Open/Create. It holds the staged fd until Release; READONLY handles on
// the same path share one staged fd, which the manager closes when the
// last of them is released.
type FileHandle struct {
	fs     *VfsAdapter
	path   string
	token  string
	staged *os.File
}

// Read implements fusefs.HandleReader via pread-style access to the
// staged fd, so concurrent READONLY handles sharing one staging file
// never race on a file position.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := fh.staged.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		return errs.ToErrno(errs.CorruptIO("read", fh.path, err))
	}
	resp.Data = buf[:n]
	return nil
}

// Write implements fusefs.HandleWriter via pwrite-style access to the
// staged fd.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := fh.staged.WriteAt(req.Data, req.Offset)
	if err != nil {
		return errs.ToErrno(errs.CorruptIO("write", fh.path, err))
	}
	resp.Size = n
	return nil
}

// Fsync satisfies fusefs.NodeFsyncer's method set (see
// FileHandleInterface) by flushing the staging fd to
// local disk. The remote has no durability barrier short of a completed
// upload at Release, so a caller that fsyncs mid-write and crashes
// before Release still loses the pending upload — this only guarantees
// the local staging copy survives (§1: stronger durability than
// staged-then-uploaded-on-release is out of scope).
func (fh *FileHandle) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	if err := fh.staged.Sync(); err != nil {
		return errs.ToErrno(errs.CorruptIO("fsync", fh.path, err))
	}
	return nil
}

// Flush implements fusefs.HandleFlusher. Per §1/§4.2, nothing is
// committed to the remote until Release runs the upload/patch sequence;
// an intermediate flush has no durability effect to pass through.
func (fh *FileHandle) Flush(_ context.Context, _ *fuse.FlushRequest) error {
	return nil
}

// Release implements fusefs.HandleReleaser, driving the role-specific
// upload/patch sequence of §4.2. The host discards the return value
// (§7); the manager still frees all resources on every path.
func (fh *FileHandle) Release(ctx context.Context, _ *fuse.ReleaseRequest) error {
	if err := fh.fs.handles.Release(ctx, fh.token); err != nil {
		log.WithError(err).WithField("path", fh.path).Warn("release failed")
		return syscall.EACCES
	}
	return nil
}
