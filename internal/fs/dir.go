package fs

import (
	"context"
	"path"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"mediafirefs/internal/catalog"
	"mediafirefs/internal/errs"
)

// Dir is a folder node: a thin, stateless view onto the catalog at a
// given path, re-resolved against FolderTree on every call.
type Dir struct {
	fs   *VfsAdapter
	path string
}

// Attr implements fusefs.Node.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	return d.fs.getattr(ctx, d.path, a)
}

// Lookup implements fusefs.NodeStringLookuper. §4.5 says getattr is
// invoked by the host before most other operations on the same path, so
// Lookup itself does not force a resync; it resolves against whatever
// the catalog currently holds.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	childPath := joinPath(d.path, name)

	kind, _ := d.fs.tree.Resolve(childPath)
	switch kind {
	case catalog.EntryFolder:
		return &Dir{fs: d.fs, path: childPath}, nil
	case catalog.EntryFile:
		return &File{fs: d.fs, path: childPath}, nil
	}

	if d.fs.handles.IsLocalNew(childPath) {
		return &File{fs: d.fs, path: childPath}, nil
	}
	return nil, syscall.ENOENT
}

// ReadDirAll implements fusefs.HandleReadDirAller.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.tree.Readdir(d.path)
	if err != nil {
		return nil, errs.ToErrno(err)
	}

	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		if e.Dir {
			typ = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Name: e.Name, Type: typ})
	}
	return out, nil
}

// Mkdir implements fusefs.NodeMkdirer.
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	childPath := joinPath(d.path, req.Name)
	if err := d.fs.tree.Mkdir(ctx, childPath); err != nil {
		return nil, errs.ToErrno(err)
	}
	return &Dir{fs: d.fs, path: childPath}, nil
}

// Remove implements fusefs.NodeRemover, dispatching to rmdir or unlink
// depending on req.Dir. Existence/emptiness preconditions are assumed
// already checked by the host's preceding getattr/readdir (§4.3).
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	childPath := joinPath(d.path, req.Name)
	var err error
	if req.Dir {
		err = d.fs.tree.Rmdir(ctx, childPath)
	} else {
		err = d.fs.tree.Unlink(ctx, childPath)
	}
	return errs.ToErrno(err)
}

// Create implements fusefs.NodeCreater: it opens a LOCAL_NEW handle
// backed by an empty staging file (§4.2).
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, _ *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	childPath := joinPath(d.path, req.Name)

	h, err := d.fs.handles.Create(childPath)
	if err != nil {
		return nil, nil, errs.ToErrno(err)
	}

	node := &File{fs: d.fs, path: childPath}
	handle := &FileHandle{fs: d.fs, path: childPath, token: h.Token, staged: h.Staged}
	return node, handle, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return path.Clean(dir + "/" + name)
}
