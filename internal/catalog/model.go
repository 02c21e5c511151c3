// Package catalog implements the FolderTree, TreeStore and OpenHandle
// manager of §3/§4: the in-memory catalog of the remote namespace, its
// synchronization against the remote change journal, and the exclusion
// rules for open file handles.
package catalog

import "mediafirefs/internal/remote"

// RootFolderKey is the sentinel folder-key for the account root (§3).
const RootFolderKey = "root"

// Folder is the in-memory record of §3's Folder entity.
type Folder struct {
	Key        string   `cbor:"key"`
	Name       string   `cbor:"name"`
	ParentKey  string   `cbor:"parent_key"` // "" for the root
	Revision   int64    `cbor:"revision"`
	Children   []string `cbor:"children_folders"` // child folder keys
	ChildFiles []string `cbor:"children_files"`   // child file keys
	CreatedAt  int64    `cbor:"created_at"`
	ModifiedAt int64    `cbor:"modified_at"`
}

// File is the in-memory record of §3's File entity.
type File struct {
	Key        string `cbor:"key"`
	Name       string `cbor:"name"`
	ParentKey  string `cbor:"parent_key"`
	Hash       string `cbor:"hash"`
	Size       int64  `cbor:"size"`
	ModifiedAt int64  `cbor:"modified_at"`
	Revision   int64  `cbor:"revision"`
}

func folderFromRemote(fi remote.FolderInfo) Folder {
	parent := fi.ParentKey
	if parent == "" {
		parent = RootFolderKey
	}
	return Folder{
		Key:        fi.Key,
		Name:       fi.Name,
		ParentKey:  parent,
		Revision:   fi.Revision,
		CreatedAt:  fi.CreatedAt,
		ModifiedAt: fi.ModifiedAt,
	}
}

func fileFromRemote(fi remote.FileInfo) File {
	parent := fi.ParentKey
	if parent == "" {
		parent = RootFolderKey
	}
	return File{
		Key:        fi.Key,
		Name:       fi.Name,
		ParentKey:  parent,
		Hash:       fi.Hash,
		Size:       fi.Size,
		ModifiedAt: fi.ModifiedAt,
		Revision:   fi.Revision,
	}
}
