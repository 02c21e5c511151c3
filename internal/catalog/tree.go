package catalog

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"mediafirefs/internal/errs"
	"mediafirefs/internal/logging"
	"mediafirefs/internal/remote"
)

var treeLog = logging.Get("foldertree")

const defaultDebounce = 2 * time.Second

// Stat is the VFS-shaped attribute record returned by Getattr (§4.1).
type Stat struct {
	Dir       bool
	Size      int64
	Mtime     time.Time
	Synthetic bool // a LOCAL_NEW placeholder, not a catalog entry (§4.5)
}

// DirEntry is one entry emitted by Readdir.
type DirEntry struct {
	Name string
	Dir  bool
}

// HeldPathChecker lets FolderTree consult the open-handle manager without
// importing it, avoiding a layering dependency in the other direction.
// Manager implements this interface.
type HeldPathChecker interface {
	// IsHeld reports whether path currently has any open handle, so
	// Update can skip refreshing it (§4.2 point 4).
	IsHeld(path string) bool
	// IsLocalNew reports whether path is a LOCAL_NEW staged create not
	// yet reflected in the catalog (§4.5).
	IsLocalNew(path string) bool
}

// FolderTree is the authoritative in-memory projection of the remote
// namespace (§4.1): it owns the catalog, the staging directory, and the
// synchronization algorithm against the remote change journal.
type FolderTree struct {
	mu sync.RWMutex

	remote   remote.Client
	store    *Store
	revision int64

	stagingDir string
	held       HeldPathChecker

	debounce     time.Duration
	lastUpdate   time.Time
	pollInterval time.Duration
}

const defaultPollInterval = time.Second

// NewFolderTree returns a FolderTree backed by client, staging new files
// under stagingDir. The catalog starts empty; callers load a persisted
// snapshot via Restore or populate it via Bootstrap.
func NewFolderTree(client remote.Client, stagingDir string) *FolderTree {
	return &FolderTree{
		remote:       client,
		store:        NewStore(),
		stagingDir:   stagingDir,
		debounce:     defaultDebounce,
		pollInterval: defaultPollInterval,
	}
}

// SetHeldChecker wires the open-handle manager in after both have been
// constructed, since the manager also needs a reference back to the tree.
func (t *FolderTree) SetHeldChecker(h HeldPathChecker) {
	t.held = h
}

// SetPollInterval overrides the ~1 Hz default used by pollUpload's backoff
// (§4.2, §9), driven by the CLI's --poll-interval-seconds flag. Values <= 0
// are ignored and the default is kept.
func (t *FolderTree) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.pollInterval = d
}

// Snapshot returns a deep copy of the catalog and the locally-applied
// device revision, for the persistence layer to serialize.
func (t *FolderTree) Snapshot() (*Store, int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.Clone(), t.revision
}

// Restore replaces the catalog with a previously persisted snapshot.
func (t *FolderTree) Restore(s *Store, revision int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store = s
	t.revision = revision
}

// Bootstrap populates the catalog from scratch via a full remote
// enumeration, used when no usable persisted snapshot exists (§6.3).
func (t *FolderTree) Bootstrap(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store.Reset()
	t.revision = 0
	return t.bootstrapFolder(ctx, remote.RootKey)
}

func (t *FolderTree) bootstrapFolder(ctx context.Context, remoteKey string) error {
	folders, files, err := t.remote.FolderGetContent(ctx, remoteKey)
	if err != nil {
		return errs.Transient("bootstrap", remoteKey, err)
	}
	for _, fi := range files {
		t.store.PutFile(fileFromRemote(fi))
	}
	for _, fo := range folders {
		t.store.PutFolder(folderFromRemote(fo))
		if err := t.bootstrapFolder(ctx, fo.Key); err != nil {
			return err
		}
	}
	return nil
}

// Update pulls the remote change journal since the last known revision
// and applies each record in order (§4.1). If force is false the call
// may be a no-op within the debounce window.
//
// The device-revision cursor used as the next call's "since" is not
// simply the highest revision seen: if any record in this batch targets
// a currently held-open path, the cursor is held back to just before
// that record's revision, so the next Update re-fetches it (and every
// record after it) until the path frees up. Records that are re-fetched
// this way but were already applied are safe to reprocess because
// applyChange's per-entity revision check (§3: "a record whose
// new-revision ≤ local-revision for that entity is dropped") makes
// replay idempotent — the catalog only tracks one global counter, but
// each Folder/File record carries its own Revision for exactly this.
func (t *FolderTree) Update(ctx context.Context, force bool) error {
	t.mu.Lock()
	if !force && time.Since(t.lastUpdate) < t.debounce {
		t.mu.Unlock()
		return nil
	}
	since := t.revision
	t.mu.Unlock()

	changes, err := t.remote.DeviceChanges(ctx, since)
	if err != nil {
		return errs.Transient("update", "", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var maxApplied int64 = -1
	var minDeferred int64 = -1

	for _, rec := range changes {
		if rec.Type == remote.ChangeResetRequired {
			treeLog.Warn("remote reported reset required, flushing catalog")
			t.store.Reset()
			t.revision = 0
			maxApplied, minDeferred = -1, -1
			if err := t.bootstrapFolder(ctx, remote.RootKey); err != nil {
				return err
			}
			continue
		}

		if t.applyChange(rec) {
			if rec.NewRevision > maxApplied {
				maxApplied = rec.NewRevision
			}
		} else if minDeferred == -1 || rec.NewRevision < minDeferred {
			minDeferred = rec.NewRevision
		}
	}

	switch {
	case minDeferred >= 0:
		if minDeferred-1 > t.revision {
			t.revision = minDeferred - 1
		}
	case maxApplied >= 0:
		if maxApplied > t.revision {
			t.revision = maxApplied
		}
	}

	t.lastUpdate = time.Now()
	return nil
}

// applyChange applies rec to the catalog and reports whether it was
// applied. It returns false, leaving the catalog untouched, when rec
// targets a path currently held open (§4.2 point 4): the caller is
// responsible for keeping the "since" cursor from advancing past it.
func (t *FolderTree) applyChange(rec remote.ChangeRecord) bool {
	rev, exists := t.currentEntityRevision(rec)
	isDelete := rec.Type == remote.ChangeFolderDeleted || rec.Type == remote.ChangeFileDeleted
	switch {
	case isDelete && !exists:
		return true // already deleted; journal replay must be idempotent
	case !isDelete && exists && rec.NewRevision <= rev:
		return true // already applied at this or a later revision
	}

	if path := t.pathOfChange(rec); path != "" && t.held != nil && t.held.IsHeld(path) {
		// §4.2 point 4: leave the held path at its captured revision;
		// the deferred change is picked up on a later Update once the
		// path is no longer held.
		treeLog.WithField("path", path).Debug("deferring journal record for held-open path")
		return false
	}

	switch rec.Type {
	case remote.ChangeFolderCreated, remote.ChangeFolderUpdated:
		if rec.Folder != nil {
			t.store.PutFolder(folderFromRemote(*rec.Folder))
		}
	case remote.ChangeFolderDeleted:
		t.store.RemoveFolder(rec.Key)
	case remote.ChangeFileCreated, remote.ChangeFileUpdated:
		if rec.File != nil {
			t.store.PutFile(fileFromRemote(*rec.File))
		}
	case remote.ChangeFileDeleted:
		t.store.RemoveFile(rec.Key)
	}
	return true
}

// currentEntityRevision returns the revision the catalog currently holds
// for rec's entity, and whether the entity exists in the catalog at all
// (§3's per-entity idempotency gate, as opposed to a single tree-wide
// counter).
func (t *FolderTree) currentEntityRevision(rec remote.ChangeRecord) (rev int64, exists bool) {
	switch rec.Type {
	case remote.ChangeFolderCreated, remote.ChangeFolderUpdated, remote.ChangeFolderDeleted:
		f, ok := t.store.Folders[rec.Key]
		if !ok {
			return 0, false
		}
		return f.Revision, true
	default:
		f, ok := t.store.Files[rec.Key]
		if !ok {
			return 0, false
		}
		return f.Revision, true
	}
}

func (t *FolderTree) pathOfChange(rec remote.ChangeRecord) string {
	switch rec.Type {
	case remote.ChangeFolderCreated, remote.ChangeFolderUpdated, remote.ChangeFolderDeleted:
		p, ok := t.store.PathOfFolder(rec.Key)
		if !ok {
			return ""
		}
		return p
	default:
		p, ok := t.store.PathOfFile(rec.Key)
		if !ok {
			return ""
		}
		return p
	}
}

// Getattr fills a stat-shaped record for path (§4.1).
func (t *FolderTree) Getattr(path string) (Stat, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	kind, key := t.store.Resolve(path)
	switch kind {
	case EntryFolder:
		return Stat{Dir: true}, nil
	case EntryFile:
		f := t.store.Files[key]
		return Stat{Size: f.Size, Mtime: time.Unix(f.ModifiedAt, 0)}, nil
	}

	if t.held != nil && t.held.IsLocalNew(path) {
		return Stat{Synthetic: true, Mtime: time.Now()}, nil
	}
	return Stat{}, errs.NotFound("getattr", path)
}

// Readdir enumerates ".", "..", then each child folder then each child
// file of the directory at path (§4.1).
func (t *FolderTree) Readdir(path string) ([]DirEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key, ok := t.store.ResolveFolder(path)
	if !ok {
		return nil, errs.NotFound("readdir", path)
	}
	folders, files, err := t.store.ListChildren(key)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(folders)+len(files)+2)
	entries = append(entries, DirEntry{Name: ".", Dir: true}, DirEntry{Name: "..", Dir: true})
	for _, n := range folders {
		entries = append(entries, DirEntry{Name: n, Dir: true})
	}
	for _, n := range files {
		entries = append(entries, DirEntry{Name: n, Dir: false})
	}
	return entries, nil
}

// Resolve resolves path to either a folder or a file entry, for Lookup.
func (t *FolderTree) Resolve(path string) (EntryKind, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.Resolve(path)
}

// PathGetKey resolves folder paths only (§4.1).
func (t *FolderTree) PathGetKey(path string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key, ok := t.store.ResolveFolder(path)
	if !ok {
		return "", errs.NotFound("path_get_key", path)
	}
	return key, nil
}

// OpenFile downloads path's current remote content into a fresh staging
// file, or returns NotFound if path no longer resolves (§4.1). Reuse of
// an existing staging file for concurrent readers is decided entirely
// by the caller (Manager.Open's staged map) before this is ever
// called — OpenFile always refreshes from the remote.
func (t *FolderTree) OpenFile(ctx context.Context, path string) (*os.File, error) {
	t.mu.RLock()
	kind, key := t.store.Resolve(path)
	if kind != EntryFile {
		t.mu.RUnlock()
		return nil, errs.NotFound("open_file", path)
	}
	fileKey := t.store.Files[key].Key
	t.mu.RUnlock()

	info, err := t.remote.FileGetInfo(ctx, fileKey)
	if err != nil {
		return nil, errs.AccessDenied("open_file", path)
	}

	fd, err := newStagingFile(t.stagingDir)
	if err != nil {
		return nil, errs.CorruptIO("open_file", path, err)
	}
	if err := t.remote.Download(ctx, info.DirectLink, fd); err != nil {
		fd.Close()
		return nil, errs.AccessDenied("open_file", path)
	}
	if _, err := fd.Seek(0, io.SeekStart); err != nil {
		fd.Close()
		return nil, errs.CorruptIO("open_file", path, err)
	}
	return fd, nil
}

// remoteParentKey translates an internal folder key to the wire
// convention of §6.2, where the account root is "" rather than the
// internal RootFolderKey sentinel.
func remoteParentKey(key string) string {
	if key == RootFolderKey {
		return ""
	}
	return key
}

// Mkdir creates a folder at path (§4.3).
func (t *FolderTree) Mkdir(ctx context.Context, path string) error {
	parentDir, base := splitParentBase(path)
	t.mu.RLock()
	parentKey, ok := t.store.ResolveFolder(parentDir)
	t.mu.RUnlock()
	if !ok {
		return errs.NotFound("mkdir", path)
	}

	if err := t.remote.FolderCreate(ctx, remoteParentKey(parentKey), base); err != nil {
		return errs.Transient("mkdir", path, err)
	}
	return t.Update(ctx, true)
}

// Rmdir deletes the folder at path (§4.3). Existence/emptiness/not-root
// preconditions are assumed already checked by the VFS bridge's
// preceding getattr/readdir calls.
func (t *FolderTree) Rmdir(ctx context.Context, path string) error {
	t.mu.RLock()
	key, ok := t.store.ResolveFolder(path)
	t.mu.RUnlock()
	if !ok {
		return errs.NotFound("rmdir", path)
	}
	if err := t.remote.FolderDelete(ctx, key); err != nil {
		return errs.Transient("rmdir", path, err)
	}
	return t.Update(ctx, true)
}

// Unlink deletes the file at path (§4.3).
func (t *FolderTree) Unlink(ctx context.Context, path string) error {
	t.mu.RLock()
	kind, key := t.store.Resolve(path)
	t.mu.RUnlock()
	if kind != EntryFile {
		return errs.NotFound("unlink", path)
	}
	if err := t.remote.FileDelete(ctx, key); err != nil {
		return errs.Transient("unlink", path, err)
	}
	return t.Update(ctx, true)
}

// UploadPatch implements the WRITABLE_EXISTING release path (§4.2): it
// compares the staged content's hash against the cached remote hash and,
// if they differ, uploads the staged bytes as a new revision and polls
// until terminal success. r must support Seek so the hash pass and the
// upload pass can both read from the start.
func (t *FolderTree) UploadPatch(ctx context.Context, path string, r io.ReadSeeker) error {
	t.mu.RLock()
	kind, key := t.store.Resolve(path)
	if kind != EntryFile {
		t.mu.RUnlock()
		return errs.NotFound("upload_patch", path)
	}
	remoteHash := t.store.Files[key].Hash
	t.mu.RUnlock()

	localHash, err := hashLike(remoteHash, r)
	if err != nil {
		return errs.CorruptIO("upload_patch", path, err)
	}
	if localHash == remoteHash {
		return nil // content unchanged; no-op per §4.1
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return errs.CorruptIO("upload_patch", path, err)
	}

	uploadKey, err := t.remote.UploadPatch(ctx, key, r)
	if err != nil {
		return errs.Transient("upload_patch", path, err)
	}
	return t.pollUpload(ctx, uploadKey)
}

// hashLike hashes r with SHA-256 or legacy MD5 depending on the length
// of the remote hash it will be compared against, since accounts may
// report either (§3).
func hashLike(remoteHash string, r io.Reader) (string, error) {
	if len(remoteHash) == hex.EncodedLen(md5.Size) {
		h := md5.New()
		if _, err := io.Copy(h, r); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// pollUpload polls an initiated upload at t.pollInterval (§4.2, §9's
// "~1 Hz" default) with mild backoff until terminal success (status 99)
// or a non-recoverable file error. It polls forever on transient poll
// failures, matching §5's "a stalled upload polls forever;
// implementations are expected to delegate timeout to the HTTP
// transport."
func (t *FolderTree) pollUpload(ctx context.Context, uploadKey string) error {
	err := retry.Do(
		func() error {
			status, err := t.remote.UploadPoll(ctx, uploadKey)
			if err != nil {
				return err
			}
			if status.FileError != 0 {
				return retry.Unrecoverable(errs.AccessDenied("upload_poll", uploadKey))
			}
			if status.Status != remote.StatusDone {
				return errRetryPending
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(t.pollInterval),
		retry.MaxDelay(3*t.pollInterval),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			return e
		}
		return errs.Transient("upload_poll", uploadKey, err)
	}
	return nil
}

var errRetryPending = errs.Transient("upload_poll", "", nil)
