package catalog

import (
	"strings"

	"mediafirefs/internal/errs"
)

// Store is the Hashtable/TreeStore of §2: a flat, serializable table of
// folders and files keyed by remote ID, with parent-key and child-key
// lists rather than a pointer graph (§9: "represent it as a flat table
// keyed by folder-key with parent-key and child-key lists (arena +
// index), not as a pointer graph"). Store itself holds no lock; callers
// (FolderTree) serialize access as part of the single catalog mutex of
// §5.
type Store struct {
	Folders map[string]*Folder `cbor:"folders"`
	Files   map[string]*File   `cbor:"files"`
}

// NewStore returns a Store containing only the root folder.
func NewStore() *Store {
	return &Store{
		Folders: map[string]*Folder{
			RootFolderKey: {Key: RootFolderKey, Name: "/", ParentKey: ""},
		},
		Files: map[string]*File{},
	}
}

// Reset clears the store back to just the root folder, used when the
// remote journal signals "reset required" (§4.1).
func (s *Store) Reset() {
	s.Folders = map[string]*Folder{
		RootFolderKey: {Key: RootFolderKey, Name: "/", ParentKey: ""},
	}
	s.Files = map[string]*File{}
}

// PutFolder inserts or replaces a folder record and keeps the parent's
// child list consistent.
func (s *Store) PutFolder(f Folder) {
	if existing, ok := s.Folders[f.Key]; ok {
		f.Children = existing.Children
		f.ChildFiles = existing.ChildFiles
		if existing.ParentKey != f.ParentKey {
			s.detachFolderFromParent(existing.Key, existing.ParentKey)
		}
	}
	s.Folders[f.Key] = &f
	s.attachFolderToParent(f.Key, f.ParentKey)
}

// PutFile inserts or replaces a file record and keeps the parent's
// child-file list consistent.
func (s *Store) PutFile(f File) {
	if existing, ok := s.Files[f.Key]; ok && existing.ParentKey != f.ParentKey {
		s.detachFileFromParent(existing.Key, existing.ParentKey)
	}
	s.Files[f.Key] = &f
	s.attachFileToParent(f.Key, f.ParentKey)
}

// RemoveFolder deletes a folder record and detaches it from its parent.
// It does not recursively remove children; the remote journal is
// expected to emit a delete record for every descendant.
func (s *Store) RemoveFolder(key string) {
	f, ok := s.Folders[key]
	if !ok {
		return
	}
	s.detachFolderFromParent(key, f.ParentKey)
	delete(s.Folders, key)
}

// RemoveFile deletes a file record and detaches it from its parent.
func (s *Store) RemoveFile(key string) {
	f, ok := s.Files[key]
	if !ok {
		return
	}
	s.detachFileFromParent(key, f.ParentKey)
	delete(s.Files, key)
}

func (s *Store) attachFolderToParent(key, parentKey string) {
	parent, ok := s.Folders[parentKey]
	if !ok {
		return
	}
	for _, c := range parent.Children {
		if c == key {
			return
		}
	}
	parent.Children = append(parent.Children, key)
}

func (s *Store) detachFolderFromParent(key, parentKey string) {
	parent, ok := s.Folders[parentKey]
	if !ok {
		return
	}
	parent.Children = removeString(parent.Children, key)
}

func (s *Store) attachFileToParent(key, parentKey string) {
	parent, ok := s.Folders[parentKey]
	if !ok {
		return
	}
	for _, c := range parent.ChildFiles {
		if c == key {
			return
		}
	}
	parent.ChildFiles = append(parent.ChildFiles, key)
}

func (s *Store) detachFileFromParent(key, parentKey string) {
	parent, ok := s.Folders[parentKey]
	if !ok {
		return
	}
	parent.ChildFiles = removeString(parent.ChildFiles, key)
}

func removeString(list []string, target string) []string {
	for i, v := range list {
		if v == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Folder entry kinds returned by Resolve.
type EntryKind int

const (
	// EntryNone means the path does not resolve to anything.
	EntryNone EntryKind = iota
	EntryFolder
	EntryFile
)

// Resolve walks path from the root through folder children by name,
// per §3's "Path resolution". The terminal component may be a file or a
// folder; every intermediate component must be a folder.
func (s *Store) Resolve(path string) (kind EntryKind, key string) {
	parts := splitPath(path)
	cur := RootFolderKey
	if len(parts) == 0 {
		return EntryFolder, RootFolderKey
	}

	for i, name := range parts {
		folder, ok := s.Folders[cur]
		if !ok {
			return EntryNone, ""
		}
		last := i == len(parts)-1

		if childKey, ok := s.childFolderByName(folder, name); ok {
			cur = childKey
			if last {
				return EntryFolder, cur
			}
			continue
		}
		if last {
			if childKey, ok := s.childFileByName(folder, name); ok {
				return EntryFile, childKey
			}
		}
		return EntryNone, ""
	}
	return EntryNone, ""
}

// ResolveFolder resolves path to a folder key only, failing if the
// terminal component is a file. Used by path_get_key (§4.1).
func (s *Store) ResolveFolder(path string) (string, bool) {
	kind, key := s.Resolve(path)
	if kind != EntryFolder {
		return "", false
	}
	return key, true
}

func (s *Store) childFolderByName(f *Folder, name string) (string, bool) {
	for _, key := range f.Children {
		if child, ok := s.Folders[key]; ok && child.Name == name {
			return key, true
		}
	}
	return "", false
}

func (s *Store) childFileByName(f *Folder, name string) (string, bool) {
	for _, key := range f.ChildFiles {
		if child, ok := s.Files[key]; ok && child.Name == name {
			return key, true
		}
	}
	return "", false
}

// ListChildren returns the immediate child folders and files of the
// folder identified by folderKey, for readdir (§4.1). names are
// returned, not keys.
func (s *Store) ListChildren(folderKey string) (folders, files []string, err error) {
	f, ok := s.Folders[folderKey]
	if !ok {
		return nil, nil, errs.NotFound("readdir", folderKey)
	}
	for _, key := range f.Children {
		if child, ok := s.Folders[key]; ok {
			folders = append(folders, child.Name)
		}
	}
	for _, key := range f.ChildFiles {
		if child, ok := s.Files[key]; ok {
			files = append(files, child.Name)
		}
	}
	return folders, files, nil
}

// splitPath splits an absolute, clean, slash-separated path into its
// non-empty components. Resolution of "." and ".." is assumed to have
// already happened upstream, per §3.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// PathOfFolder reconstructs the absolute path of a folder by walking
// parent links up to the root.
func (s *Store) PathOfFolder(key string) (string, bool) {
	var parts []string
	cur := key
	for {
		f, ok := s.Folders[cur]
		if !ok {
			return "", false
		}
		if cur == RootFolderKey {
			break
		}
		parts = append([]string{f.Name}, parts...)
		cur = f.ParentKey
	}
	return "/" + strings.Join(parts, "/"), true
}

// PathOfFile reconstructs the absolute path of a file from its parent's
// path plus its own name.
func (s *Store) PathOfFile(key string) (string, bool) {
	f, ok := s.Files[key]
	if !ok {
		return "", false
	}
	parentPath, ok := s.PathOfFolder(f.ParentKey)
	if !ok {
		return "", false
	}
	if parentPath == "/" {
		return "/" + f.Name, true
	}
	return parentPath + "/" + f.Name, true
}

// Clone returns a deep copy, used to snapshot the catalog for
// persistence without holding the catalog lock across the encode.
func (s *Store) Clone() *Store {
	out := &Store{
		Folders: make(map[string]*Folder, len(s.Folders)),
		Files:   make(map[string]*File, len(s.Files)),
	}
	for k, f := range s.Folders {
		cp := *f
		cp.Children = append([]string(nil), f.Children...)
		cp.ChildFiles = append([]string(nil), f.ChildFiles...)
		out.Folders[k] = &cp
	}
	for k, f := range s.Files {
		cp := *f
		out.Files[k] = &cp
	}
	return out
}

func splitParentBase(path string) (parentDir, base string) {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", trimmed
	}
	if idx == 0 {
		return "/", trimmed[idx+1:]
	}
	return trimmed[:idx], trimmed[idx+1:]
}
