package fs

import (
	"context"
	"os"
	"syscall"
	"testing"

	"bazil.org/fuse"

	"mediafirefs/internal/catalog"
	"mediafirefs/internal/remote"
)

func setupTestAdapter(t *testing.T) (*VfsAdapter, *catalog.FolderTree, *remote.Fake) {
	t.Helper()
	stagingDir := t.TempDir()
	fake := remote.NewFake("acct-1")
	tree := catalog.NewFolderTree(fake, stagingDir)
	if err := tree.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	handles := catalog.NewManager(tree, fake)
	dirCache := t.TempDir() + "/dir-cache"
	adapter := New(tree, handles, fake, dirCache, "acct-1")
	return adapter, tree, fake
}

func TestRootIsDirectory(t *testing.T) {
	adapter, _, _ := setupTestAdapter(t)
	ctx := context.Background()

	root, err := adapter.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	attr := &fuse.Attr{}
	if err := root.Attr(ctx, attr); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if attr.Mode&os.ModeDir == 0 {
		t.Fatalf("root Mode = %v, want a directory bit set", attr.Mode)
	}
}

func TestMkdirLookupRemove(t *testing.T) {
	adapter, _, _ := setupTestAdapter(t)
	ctx := context.Background()

	root, _ := adapter.Root()
	dir := root.(*Dir)

	node, err := dir.Mkdir(ctx, &fuse.MkdirRequest{Name: "photos"})
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, ok := node.(*Dir); !ok {
		t.Fatalf("Mkdir returned %T, want *Dir", node)
	}

	found, err := dir.Lookup(ctx, "photos")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, ok := found.(*Dir); !ok {
		t.Fatalf("Lookup returned %T, want *Dir", found)
	}

	if err := dir.Remove(ctx, &fuse.RemoveRequest{Name: "photos", Dir: true}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := dir.Lookup(ctx, "photos"); err == nil {
		t.Fatalf("Lookup(photos) after Remove succeeded, want ENOENT")
	}
}

func TestCreateWriteReleaseRoundTrip(t *testing.T) {
	adapter, tree, fake := setupTestAdapter(t)
	ctx := context.Background()

	root, _ := adapter.Root()
	dir := root.(*Dir)

	_, handle, err := dir.Create(ctx, &fuse.CreateRequest{Name: "note.txt"}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fh := handle.(*FileHandle)

	writeReq := &fuse.WriteRequest{Data: []byte("hello"), Offset: 0}
	writeResp := &fuse.WriteResponse{}
	if err := fh.Write(ctx, writeReq, writeResp); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if writeResp.Size != 5 {
		t.Fatalf("Write reported %d bytes, want 5", writeResp.Size)
	}

	if err := fh.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if fake.Revision() == 0 { // sanity that the fake advanced state during upload
		t.Fatalf("fake revision after upload = 0, want > 0")
	}

	// A fresh open must see the uploaded content, not the discarded fd.
	file := &File{fs: adapter, path: "/note.txt"}
	openResp := &fuse.OpenResponse{}
	openedHandle, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenFlags(os.O_RDONLY)}, openResp)
	if err != nil {
		t.Fatalf("Open after release: %v", err)
	}
	readFh := openedHandle.(*FileHandle)

	readReq := &fuse.ReadRequest{Size: 5, Offset: 0}
	readResp := &fuse.ReadResponse{}
	if err := readFh.Read(ctx, readReq, readResp); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(readResp.Data) != "hello" {
		t.Fatalf("Read = %q, want %q", readResp.Data, "hello")
	}
	if err := adapter.handles.Release(ctx, readFh.token); err != nil {
		t.Fatalf("Release read handle: %v", err)
	}

	st, err := tree.Getattr("/note.txt")
	if err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if st.Size != 5 {
		t.Fatalf("Getattr size = %d, want 5", st.Size)
	}
}

func TestGetattrSynthesizesLocalNew(t *testing.T) {
	adapter, _, _ := setupTestAdapter(t)
	ctx := context.Background()

	root, _ := adapter.Root()
	dir := root.(*Dir)

	node, _, err := dir.Create(ctx, &fuse.CreateRequest{Name: "draft.txt"}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	attr := &fuse.Attr{}
	if err := node.(*File).Attr(ctx, attr); err != nil {
		t.Fatalf("Attr before release: %v", err)
	}
	if attr.Size != 0 {
		t.Fatalf("synthetic LOCAL_NEW size = %d, want 0", attr.Size)
	}
	if attr.Uid != adapter.uid || attr.Gid != adapter.gid {
		t.Fatalf("synthetic LOCAL_NEW owner = %d:%d, want %d:%d", attr.Uid, attr.Gid, adapter.uid, adapter.gid)
	}
}

func TestWritableExclusionReturnsEACCES(t *testing.T) {
	adapter, tree, fake := setupTestAdapter(t)
	ctx := context.Background()

	uploadKey, err := fake.UploadSimple(ctx, "", strReaderFS(t, "content"), "shared.txt")
	if err != nil {
		t.Fatalf("UploadSimple: %v", err)
	}
	if _, err := fake.UploadPoll(ctx, uploadKey); err != nil {
		t.Fatalf("UploadPoll: %v", err)
	}
	if err := tree.Update(ctx, true); err != nil {
		t.Fatalf("Update: %v", err)
	}

	file := &File{fs: adapter, path: "/shared.txt"}
	_, err = file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenFlags(os.O_RDWR)}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("first writable Open: %v", err)
	}

	_, err = file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenFlags(os.O_RDONLY)}, &fuse.OpenResponse{})
	if err != syscall.EACCES {
		t.Fatalf("concurrent Open while writable held = %v, want EACCES", err)
	}
}

func strReaderFS(t *testing.T, s string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "mediafirefs-fstest-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(s); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	return f
}
