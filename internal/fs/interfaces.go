// internal/fs/interfaces.go

package fs

import (
	"bazil.org/fuse/fs"
)

// Directory is the set of fusefs interfaces Dir implements.
type Directory interface {
	fs.Node
	fs.NodeStringLookuper
	fs.HandleReadDirAller
	fs.NodeMkdirer
	fs.NodeRemover
	fs.NodeCreater
}

// FileInterface is the set of fusefs interfaces File implements.
type FileInterface interface {
	fs.Node
	fs.NodeOpener
}

// FileHandleInterface is the set of fusefs interfaces FileHandle
// implements.
type FileHandleInterface interface {
	fs.Handle
	fs.HandleReader
	fs.HandleWriter
	fs.HandleReleaser
	fs.HandleFlusher
	fs.NodeFsyncer
}
