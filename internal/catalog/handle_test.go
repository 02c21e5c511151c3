package catalog

import (
	"context"
	"testing"

	"mediafirefs/internal/errs"
	"mediafirefs/internal/remote"
)

func newTestManager(t *testing.T) (*FolderTree, *Manager, *remote.Fake) {
	t.Helper()
	dir := t.TempDir()
	fake := remote.NewFake("acct-1")
	tree := NewFolderTree(fake, dir)
	if err := tree.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	mgr := NewManager(tree, fake)
	return tree, mgr, fake
}

func TestReadonlyOpensConcurrently(t *testing.T) {
	tree, mgr, fake := newTestManager(t)
	ctx := context.Background()
	mustUploadDone(t, tree, fake, "/f.txt", "hello")

	h1, err := mgr.Open(ctx, "/f.txt", false)
	if err != nil {
		t.Fatalf("first readonly Open: %v", err)
	}
	h2, err := mgr.Open(ctx, "/f.txt", false)
	if err != nil {
		t.Fatalf("second readonly Open: %v", err)
	}
	if h1.Token == h2.Token {
		t.Fatalf("expected distinct handle tokens")
	}

	if err := mgr.Release(ctx, h1.Token); err != nil {
		t.Fatalf("Release h1: %v", err)
	}
	if err := mgr.Release(ctx, h2.Token); err != nil {
		t.Fatalf("Release h2: %v", err)
	}
}

func TestWritableExcludesReadonly(t *testing.T) {
	tree, mgr, fake := newTestManager(t)
	ctx := context.Background()
	mustUploadDone(t, tree, fake, "/f.txt", "hello")

	h1, err := mgr.Open(ctx, "/f.txt", true)
	if err != nil {
		t.Fatalf("writable Open: %v", err)
	}

	if _, err := mgr.Open(ctx, "/f.txt", false); !errs.Is(err, errs.KindAccessDenied) {
		t.Fatalf("concurrent readonly Open while writable is held = %v, want KindAccessDenied", err)
	}

	if err := mgr.Release(ctx, h1.Token); err != nil {
		t.Fatalf("Release h1: %v", err)
	}

	h2, err := mgr.Open(ctx, "/f.txt", false)
	if err != nil {
		t.Fatalf("readonly Open after writable release: %v", err)
	}
	if err := mgr.Release(ctx, h2.Token); err != nil {
		t.Fatalf("Release h2: %v", err)
	}
}

func TestSecondWritableExcluded(t *testing.T) {
	tree, mgr, fake := newTestManager(t)
	ctx := context.Background()
	mustUploadDone(t, tree, fake, "/f.txt", "hello")

	h1, err := mgr.Open(ctx, "/f.txt", true)
	if err != nil {
		t.Fatalf("first writable Open: %v", err)
	}
	if _, err := mgr.Open(ctx, "/f.txt", true); !errs.Is(err, errs.KindAccessDenied) {
		t.Fatalf("second writable Open = %v, want KindAccessDenied", err)
	}
	if err := mgr.Release(ctx, h1.Token); err != nil {
		t.Fatalf("Release h1: %v", err)
	}
}

func TestCreateThenReleaseUploadsLocalNew(t *testing.T) {
	tree, mgr, _ := newTestManager(t)
	ctx := context.Background()

	h, err := mgr.Create("/g.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.Role != LocalNew {
		t.Fatalf("Create role = %v, want LocalNew", h.Role)
	}
	if !mgr.IsLocalNew("/g.txt") {
		t.Fatalf("IsLocalNew(/g.txt) = false before release, want true")
	}

	if _, err := h.Staged.WriteString("new content"); err != nil {
		t.Fatalf("write staged: %v", err)
	}

	if err := mgr.Release(ctx, h.Token); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if mgr.IsLocalNew("/g.txt") {
		t.Fatalf("IsLocalNew(/g.txt) = true after release, want false")
	}

	kind, _ := tree.Resolve("/g.txt")
	if kind != EntryFile {
		t.Fatalf("Resolve(/g.txt) after release = %v, want EntryFile", kind)
	}
}

func TestReleaseWritableExistingUploadsWhenContentDiffers(t *testing.T) {
	tree, mgr, fake := newTestManager(t)
	ctx := context.Background()
	mustUploadDone(t, tree, fake, "/f.txt", "hello")

	before := fake.Revision()

	h, err := mgr.Open(ctx, "/f.txt", true)
	if err != nil {
		t.Fatalf("writable Open: %v", err)
	}
	if err := h.Staged.Truncate(0); err != nil {
		t.Fatalf("truncate staged: %v", err)
	}
	if _, err := h.Staged.WriteAt([]byte("goodbye world"), 0); err != nil {
		t.Fatalf("write staged: %v", err)
	}

	if err := mgr.Release(ctx, h.Token); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if fake.Revision() <= before {
		t.Fatalf("Revision after patch with differing content = %d, want > %d", fake.Revision(), before)
	}

	st, err := tree.Getattr("/f.txt")
	if err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if st.Size != int64(len("goodbye world")) {
		t.Fatalf("Getattr(/f.txt).Size = %d, want %d", st.Size, len("goodbye world"))
	}
}

func TestReleaseWritableExistingSkipsUploadWhenContentUnchanged(t *testing.T) {
	tree, mgr, fake := newTestManager(t)
	ctx := context.Background()
	mustUploadDone(t, tree, fake, "/f.txt", "hello")

	before := fake.Revision()

	h, err := mgr.Open(ctx, "/f.txt", true)
	if err != nil {
		t.Fatalf("writable Open: %v", err)
	}
	// Read back the staged content and write it right back unchanged.
	buf := make([]byte, len("hello"))
	if _, err := h.Staged.ReadAt(buf, 0); err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if _, err := h.Staged.WriteAt(buf, 0); err != nil {
		t.Fatalf("rewrite staged: %v", err)
	}

	if err := mgr.Release(ctx, h.Token); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if fake.Revision() != before {
		t.Fatalf("Revision after patch with identical content = %d, want unchanged %d", fake.Revision(), before)
	}
}

func TestUpdateDefersChangeToHeldPathThenAppliesAfterRelease(t *testing.T) {
	tree, mgr, fake := newTestManager(t)
	ctx := context.Background()
	mustUploadDone(t, tree, fake, "/f.txt", "hello")
	mustUploadDone(t, tree, fake, "/g.txt", "unrelated")

	// Hold /f.txt open (readonly) so it can't be mutated by a concurrent
	// Update while a caller has it open (§4.2 point 4).
	h, err := mgr.Open(ctx, "/f.txt", false)
	if err != nil {
		t.Fatalf("Open /f.txt: %v", err)
	}

	// Simulate a remote-side patch to the held file, plus an unrelated
	// change to another path, arriving in the same journal batch.
	patchKey, err := fake.UploadPatch(ctx, fileKeyOf(t, tree, "/f.txt"), strReader("goodbye world"))
	if err != nil {
		t.Fatalf("UploadPatch: %v", err)
	}
	if _, err := fake.UploadPoll(ctx, patchKey); err != nil {
		t.Fatalf("UploadPoll: %v", err)
	}
	if err := fake.FolderCreate(ctx, "", "unrelated-dir"); err != nil {
		t.Fatalf("FolderCreate: %v", err)
	}

	if err := tree.Update(ctx, true); err != nil {
		t.Fatalf("Update while held: %v", err)
	}

	// The unrelated folder shows up immediately...
	entries, err := tree.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if !containsName(entries, "unrelated-dir") {
		t.Fatalf("Readdir(/) = %v, want it to contain unrelated-dir", entries)
	}
	// ...but the held file's metadata must stay stale until released.
	st, err := tree.Getattr("/f.txt")
	if err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if st.Size != int64(len("hello")) {
		t.Fatalf("Getattr(/f.txt).Size while held = %d, want stale %d", st.Size, len("hello"))
	}

	if err := mgr.Release(ctx, h.Token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := tree.Update(ctx, true); err != nil {
		t.Fatalf("Update after release: %v", err)
	}

	st, err = tree.Getattr("/f.txt")
	if err != nil {
		t.Fatalf("Getattr after release: %v", err)
	}
	if st.Size != int64(len("goodbye world")) {
		t.Fatalf("Getattr(/f.txt).Size after release+Update = %d, want %d", st.Size, len("goodbye world"))
	}
}

// fileKeyOf resolves path to its remote file key via the tree's snapshot,
// for tests that need to drive the fake remote directly by key.
func fileKeyOf(t *testing.T, tree *FolderTree, path string) string {
	t.Helper()
	kind, key := tree.Resolve(path)
	if kind != EntryFile {
		t.Fatalf("Resolve(%q) kind = %v, want EntryFile", path, kind)
	}
	store, _ := tree.Snapshot()
	f, ok := store.Files[key]
	if !ok {
		t.Fatalf("no file in snapshot for key %q (path %q)", key, path)
	}
	return f.Key
}

// mustUploadDone seeds the fake remote with a file at path containing
// content, then forces an Update so the catalog picks it up.
func mustUploadDone(t *testing.T, tree *FolderTree, fake *remote.Fake, path, content string) {
	t.Helper()
	ctx := context.Background()
	f := strReader(content)
	defer f.Close()

	uploadKey, err := fake.UploadSimple(ctx, "", f, path[1:])
	if err != nil {
		t.Fatalf("UploadSimple: %v", err)
	}
	if _, err := fake.UploadPoll(ctx, uploadKey); err != nil {
		t.Fatalf("UploadPoll: %v", err)
	}
	if err := tree.Update(ctx, true); err != nil {
		t.Fatalf("Update: %v", err)
	}
}
