package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"mediafirefs/internal/errs"
)

// Fake is an in-memory implementation of Client, used by the catalog and
// VFS adapter tests in place of a real account. It is exported (rather
// than living in a _test.go file) so that other packages' tests can
// import it directly, the way latentfs's tests/integration package
// builds fixtures against its own storage layer.
type Fake struct {
	mu sync.Mutex

	accountID string
	revision  int64
	nextKey   int

	folders map[string]FolderInfo
	files   map[string]FileInfo
	content map[string][]byte // file key -> bytes

	journal []ChangeRecord

	uploads map[string]*fakeUpload
}

type fakeUpload struct {
	status    int
	fileError int
	data      []byte
	parentKey string
	fileKey   string
	name      string
	isPatch   bool
}

// NewFake returns a Fake pre-populated with just the account root.
func NewFake(accountID string) *Fake {
	return &Fake{
		accountID: accountID,
		folders:   map[string]FolderInfo{},
		files:     map[string]FileInfo{},
		content:   map[string][]byte{},
		uploads:   map[string]*fakeUpload{},
	}
}

func (f *Fake) nextFolderKey() string {
	f.nextKey++
	return fmt.Sprintf("fldr%06d", f.nextKey)
}

func (f *Fake) nextFileKey() string {
	f.nextKey++
	return fmt.Sprintf("file%07d", f.nextKey)
}

func (f *Fake) bumpRevision() int64 {
	f.revision++
	return f.revision
}

func normalizeParent(key string) string {
	if key == "" || key == RootKey {
		return ""
	}
	return key
}

// FolderCreate implements Client.
func (f *Fake) FolderCreate(_ context.Context, parentKey, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := f.nextFolderKey()
	rev := f.bumpRevision()
	info := FolderInfo{Key: key, Name: name, ParentKey: normalizeParent(parentKey), Revision: rev}
	f.folders[key] = info
	f.journal = append(f.journal, ChangeRecord{Type: ChangeFolderCreated, Key: key, NewRevision: rev, Folder: &info})
	return nil
}

// FolderDelete implements Client.
func (f *Fake) FolderDelete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.folders[key]; !ok {
		return errs.NotFound("folder_delete", key)
	}
	delete(f.folders, key)
	rev := f.bumpRevision()
	f.journal = append(f.journal, ChangeRecord{Type: ChangeFolderDeleted, Key: key, NewRevision: rev})
	return nil
}

// FileDelete implements Client.
func (f *Fake) FileDelete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[key]; !ok {
		return errs.NotFound("file_delete", key)
	}
	delete(f.files, key)
	delete(f.content, key)
	rev := f.bumpRevision()
	f.journal = append(f.journal, ChangeRecord{Type: ChangeFileDeleted, Key: key, NewRevision: rev})
	return nil
}

// DeviceChanges implements Client.
func (f *Fake) DeviceChanges(_ context.Context, since int64) ([]ChangeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ChangeRecord
	for _, rec := range f.journal {
		if rec.NewRevision > since {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FolderGetContent implements Client.
func (f *Fake) FolderGetContent(_ context.Context, key string) ([]FolderInfo, []FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key = normalizeParent(key)
	var folders []FolderInfo
	var files []FileInfo
	for _, fo := range f.folders {
		if fo.ParentKey == key {
			folders = append(folders, fo)
		}
	}
	for _, fi := range f.files {
		if fi.ParentKey == key {
			files = append(files, fi)
		}
	}
	return folders, files, nil
}

// FileGetInfo implements Client.
func (f *Fake) FileGetInfo(_ context.Context, key string) (FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, ok := f.files[key]
	if !ok {
		return FileInfo{}, errs.NotFound("file_get_info", key)
	}
	info.DirectLink = "fake://" + key
	return info, nil
}

// Download implements Client.
func (f *Fake) Download(_ context.Context, link string, w io.Writer) error {
	f.mu.Lock()
	key := link[len("fake://"):]
	data := f.content[key]
	f.mu.Unlock()

	_, err := w.Write(data)
	return err
}

// UploadSimple implements Client.
func (f *Fake) UploadSimple(_ context.Context, parentKey string, r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	uploadKey := fmt.Sprintf("upl%06d", len(f.uploads)+1)
	f.uploads[uploadKey] = &fakeUpload{
		status:    StatusDone,
		data:      data,
		parentKey: normalizeParent(parentKey),
		name:      name,
	}
	return uploadKey, nil
}

// UploadPatch implements Client.
func (f *Fake) UploadPatch(_ context.Context, fileKey string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	uploadKey := fmt.Sprintf("upl%06d", len(f.uploads)+1)
	f.uploads[uploadKey] = &fakeUpload{
		status:  StatusDone,
		data:    data,
		fileKey: fileKey,
		isPatch: true,
	}
	return uploadKey, nil
}

// UploadPoll implements Client. Every fake upload resolves to StatusDone
// the first time it's polled, after materializing the catalog entry —
// there is no asynchronous delay to simulate in the fake.
func (f *Fake) UploadPoll(_ context.Context, uploadKey string) (UploadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.uploads[uploadKey]
	if !ok {
		return UploadStatus{}, errs.NotFound("upload_poll", uploadKey)
	}
	if u.status != StatusDone {
		return UploadStatus{Status: u.status, FileError: u.fileError}, nil
	}

	if u.isPatch {
		info, exists := f.files[u.fileKey]
		if !exists {
			return UploadStatus{}, errs.NotFound("upload_poll", u.fileKey)
		}
		info.Size = int64(len(u.data))
		info.Hash = fakeHash(u.data)
		info.Revision = f.bumpRevision()
		f.files[u.fileKey] = info
		f.content[u.fileKey] = u.data
		f.journal = append(f.journal, ChangeRecord{
			Type: ChangeFileUpdated, Key: u.fileKey, NewRevision: info.Revision, File: &info,
		})
	} else {
		key := f.nextFileKey()
		rev := f.bumpRevision()
		info := FileInfo{
			Key: key, Name: u.name, ParentKey: u.parentKey,
			Size: int64(len(u.data)), Hash: fakeHash(u.data), Revision: rev,
		}
		f.files[key] = info
		f.content[key] = u.data
		f.journal = append(f.journal, ChangeRecord{Type: ChangeFileCreated, Key: key, NewRevision: rev, File: &info})
	}

	delete(f.uploads, uploadKey)
	return UploadStatus{Status: StatusDone}, nil
}

// AccountID implements Client.
func (f *Fake) AccountID(_ context.Context) (string, error) {
	return f.accountID, nil
}

// Revision returns the fake's current device revision, for assertions.
func (f *Fake) Revision() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revision
}

// fakeHash reports the real SHA-256 of data, hex-encoded, so that
// FolderTree.hashLike's own SHA-256 pass over locally staged bytes
// actually agrees with what the fake remote reports (§3).
func fakeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var _ Client = (*Fake)(nil)
