package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"mediafirefs/internal/errs"
	"mediafirefs/internal/logging"
	"mediafirefs/internal/pathset"
	"mediafirefs/internal/remote"
)

var handleLog = logging.Get("openhandle")

// Role is the three-way classification of an open handle that determines
// its release behavior (§3).
type Role int

const (
	// Readonly handles may be opened concurrently any number of times.
	Readonly Role = iota
	// WritableExisting handles patch an existing remote file on release.
	WritableExisting
	// LocalNew handles upload a brand-new file on release.
	LocalNew
)

func (r Role) String() string {
	switch r {
	case Readonly:
		return "READONLY"
	case WritableExisting:
		return "WRITABLE_EXISTING"
	case LocalNew:
		return "LOCAL_NEW"
	default:
		return "UNKNOWN"
	}
}

// OpenHandle is the per-open state of §3: a staged descriptor, the
// originating virtual path, and the role that governs release. The host
// owns the handle via the opaque Token returned from Open/Create and
// surrenders it at Release (§9: single-owner transfer, not reference
// counting).
type OpenHandle struct {
	Token  string
	Path   string
	Role   Role
	Staged *os.File
}

// Manager is the OpenHandle manager of §4.2: it enforces POSIX-like
// exclusion over the non-POSIX remote using two path-multisets,
// readonly_open and writable_open, and drives the role-specific release
// sequence of §4.2 including the upload/patch/poll calls back into
// FolderTree and RemoteClient.
type Manager struct {
	mu sync.Mutex

	tree   *FolderTree
	remote remote.Client

	readonly *pathset.Set
	writable *pathset.Set

	// staged shares one staging fd across concurrent READONLY opens of
	// the same path, since reads use explicit offsets (pread-style) and
	// never rely on the file's current position.
	staged map[string]*os.File

	handles map[string]*OpenHandle
}

// NewManager returns a Manager driving tree and remote.
func NewManager(tree *FolderTree, client remote.Client) *Manager {
	m := &Manager{
		tree:     tree,
		remote:   client,
		readonly: pathset.New(),
		writable: pathset.New(),
		staged:   map[string]*os.File{},
		handles:  map[string]*OpenHandle{},
	}
	tree.SetHeldChecker(m)
	return m
}

// IsHeld implements HeldPathChecker.
func (m *Manager) IsHeld(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readonly.Contains(path) || m.writable.Contains(path)
}

// IsLocalNew implements HeldPathChecker.
func (m *Manager) IsLocalNew(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		if h.Path == path && h.Role == LocalNew {
			return true
		}
	}
	return false
}

// Open opens path for reading, or for writing an existing file, applying
// the exclusion rules of §4.2:
//
//  1. readonly may be opened any number of times concurrently.
//  2. writable may be opened only if no handle of any mode is open.
func (m *Manager) Open(ctx context.Context, path string, writable bool) (*OpenHandle, error) {
	m.mu.Lock()
	if writable {
		if m.writable.Contains(path) || m.readonly.Contains(path) {
			m.mu.Unlock()
			return nil, errs.AccessDenied("open", path)
		}
	} else if m.writable.Contains(path) {
		m.mu.Unlock()
		return nil, errs.AccessDenied("open", path)
	}
	shared, hasShared := m.staged[path]
	m.mu.Unlock()

	fd := shared
	if !hasShared {
		var err error
		fd, err = m.tree.OpenFile(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	role := Readonly
	if writable {
		role = WritableExisting
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if writable {
		m.writable.Add(path)
	} else {
		m.readonly.Add(path)
		m.staged[path] = fd
	}

	h := &OpenHandle{Token: uuid.NewString(), Path: path, Role: role, Staged: fd}
	m.handles[h.Token] = h
	return h, nil
}

// Create opens a brand-new LOCAL_NEW handle backed by an empty staging
// file allocated by newStagingFile in the tree's staging directory (§4.2).
func (m *Manager) Create(path string) (*OpenHandle, error) {
	m.mu.Lock()
	if m.writable.Contains(path) || m.readonly.Contains(path) {
		m.mu.Unlock()
		return nil, errs.AccessDenied("create", path)
	}
	m.mu.Unlock()

	fd, err := newStagingFile(m.tree.stagingDir)
	if err != nil {
		return nil, errs.CorruptIO("create", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writable.Add(path)
	h := &OpenHandle{Token: uuid.NewString(), Path: path, Role: LocalNew, Staged: fd}
	m.handles[h.Token] = h
	return h, nil
}

// Handle looks up a live handle by token, for Read/Write.
func (m *Manager) Handle(token string) (*OpenHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[token]
	return h, ok
}

// Release implements §4.2's release semantics, dispatching on role.
// Every branch decrements the relevant multiset and frees handle state
// even on error, so a path is never left permanently locked (§7).
func (m *Manager) Release(ctx context.Context, token string) error {
	m.mu.Lock()
	h, ok := m.handles[token]
	if !ok {
		m.mu.Unlock()
		return errs.CorruptIO("release", "", fmt.Errorf("unknown handle token %s", token))
	}
	delete(m.handles, token)
	m.mu.Unlock()

	switch h.Role {
	case Readonly:
		return m.releaseReadonly(h)
	case WritableExisting:
		return m.releaseWritableExisting(ctx, h)
	case LocalNew:
		return m.releaseLocalNew(ctx, h)
	default:
		return nil
	}
}

func (m *Manager) releaseReadonly(h *OpenHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.readonly.Remove(h.Path) {
		handleLog.WithField("path", h.Path).Fatal("invariant violation: readonly_open multiset missing entry on release")
	}
	if !m.readonly.Contains(h.Path) {
		if fd, ok := m.staged[h.Path]; ok {
			fd.Close()
			delete(m.staged, h.Path)
		}
	}
	return nil
}

func (m *Manager) releaseWritableExisting(ctx context.Context, h *OpenHandle) error {
	defer h.Staged.Close()

	var uploadErr error
	if _, err := h.Staged.Seek(0, io.SeekStart); err != nil {
		uploadErr = errs.CorruptIO("release", h.Path, err)
	} else {
		uploadErr = m.tree.UploadPatch(ctx, h.Path, h.Staged)
	}

	m.mu.Lock()
	if !m.writable.Remove(h.Path) {
		handleLog.WithField("path", h.Path).Fatal("invariant violation: writable_open multiset missing entry on release")
	}
	m.mu.Unlock()

	if uploadErr != nil {
		handleLog.WithError(uploadErr).WithField("path", h.Path).Warn("upload_patch failed on release")
		return errs.AccessDenied("release", h.Path)
	}
	return m.tree.Update(ctx, true)
}

func (m *Manager) releaseLocalNew(ctx context.Context, h *OpenHandle) error {
	defer h.Staged.Close()

	release := func(err error) error {
		m.mu.Lock()
		if !m.writable.Remove(h.Path) {
			handleLog.WithField("path", h.Path).Fatal("invariant violation: writable_open multiset missing entry on release")
		}
		m.mu.Unlock()
		if err != nil {
			handleLog.WithError(err).WithField("path", h.Path).Warn("local_new upload failed on release")
			return errs.AccessDenied("release", h.Path)
		}
		return m.tree.Update(ctx, true)
	}

	if _, err := h.Staged.Seek(0, io.SeekStart); err != nil {
		return release(err)
	}

	parentDir, base := splitParentBase(h.Path)
	parentKey, err := m.tree.PathGetKey(parentDir)
	if err != nil {
		return release(err)
	}

	uploadKey, err := m.remote.UploadSimple(ctx, remoteParentKey(parentKey), h.Staged, base)
	if err != nil {
		return release(err)
	}

	return release(m.tree.pollUpload(ctx, uploadKey))
}
