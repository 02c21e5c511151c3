// Package remote defines the contract of §6.2: the opaque RemoteClient
// the core consumes. The transport, authentication, and wire format
// behind this interface are explicitly out of scope (§1) — this package
// states the contract and ships one concrete, minimal implementation
// (HTTPClient) over net/http, since the remote account's API shape isn't
// something any third-party SDK in the reference corpus models.
package remote

import (
	"context"
	"io"
)

// RootKey is the sentinel parent-key convention of §6.2: either a nil
// key or this string both mean "the account root".
const RootKey = "myfiles"

// ChangeType enumerates the kinds of record the device-changes journal
// emits.
type ChangeType int

const (
	ChangeFolderCreated ChangeType = iota
	ChangeFolderUpdated
	ChangeFolderDeleted
	ChangeFileCreated
	ChangeFileUpdated
	ChangeFileDeleted
	// ChangeResetRequired signals a counter wrap or epoch change: the
	// catalog must be flushed and refetched wholesale (§4.1).
	ChangeResetRequired
)

// FolderInfo is the folder-shaped payload of a change record or of
// FolderGetContent.
type FolderInfo struct {
	Key        string
	Name       string
	ParentKey  string // empty for root
	Revision   int64
	CreatedAt  int64
	ModifiedAt int64
}

// FileInfo is the file-shaped payload of a change record, of
// FolderGetContent, or of FileGetInfo.
type FileInfo struct {
	Key         string
	Name        string
	ParentKey   string
	Hash        string // hex, SHA-256 or legacy MD5
	Size        int64
	ModifiedAt  int64
	Revision    int64
	DirectLink  string // short-lived download URL, populated by FileGetInfo
}

// ChangeRecord is one entry of the device-changes journal of §4.1.
type ChangeRecord struct {
	Type        ChangeType
	Key         string
	NewRevision int64
	Folder      *FolderInfo // set when Type is folder-shaped
	File        *FileInfo   // set when Type is file-shaped
}

// UploadStatus is the result of polling an upload. StatusDone is the
// numeric 99 terminal-success status from §6.2; any other status keeps
// polling, and FileError non-zero means a non-recoverable failure.
type UploadStatus struct {
	Status    int
	FileError int
}

// StatusDone is the terminal success status code defined by §6.2.
const StatusDone = 99

// Client is the contract of §6.2. Every method may block on network I/O
// and every method may fail with an *errs.Error of kind KindTransient;
// callers must not retry internally (§9 open question: the core
// surfaces EAGAIN unconditionally rather than retrying transient
// failures, matching the original source's behavior).
type Client interface {
	// FolderCreate creates a folder named name under parentKey (RootKey
	// or "" for the account root).
	FolderCreate(ctx context.Context, parentKey, name string) error
	// FolderDelete deletes the folder identified by key.
	FolderDelete(ctx context.Context, key string) error
	// FileDelete deletes the file identified by key.
	FileDelete(ctx context.Context, key string) error

	// DeviceChanges returns the ordered change journal since sinceRevision.
	DeviceChanges(ctx context.Context, sinceRevision int64) ([]ChangeRecord, error)

	// FolderGetContent returns the immediate children of the folder
	// identified by key, for bootstrap or forced refresh.
	FolderGetContent(ctx context.Context, key string) ([]FolderInfo, []FileInfo, error)

	// FileGetInfo returns metadata for the file identified by key,
	// including a fresh direct-link URL.
	FileGetInfo(ctx context.Context, key string) (FileInfo, error)

	// Download streams the content addressed by url into w.
	Download(ctx context.Context, url string, w io.Writer) error

	// UploadSimple uploads the full content of r as a new file named
	// name inside parentKey, returning an upload key to poll.
	UploadSimple(ctx context.Context, parentKey string, r io.Reader, name string) (uploadKey string, err error)
	// UploadPatch uploads the full content of r as a new revision of the
	// existing file fileKey, returning an upload key to poll.
	UploadPatch(ctx context.Context, fileKey string, r io.Reader) (uploadKey string, err error)
	// UploadPoll reports the current status of an upload initiated by
	// UploadSimple or UploadPatch.
	UploadPoll(ctx context.Context, uploadKey string) (UploadStatus, error)

	// AccountID returns a stable identifier for the authenticated
	// account, used by the persistence layer (§6.3) to detect a stale
	// dir-cache belonging to a different account.
	AccountID(ctx context.Context) (string, error)
}
