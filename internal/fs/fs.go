// Package fs is the VfsAdapter of §4.5: a thin translation of the VFS
// entry points the host bridge invokes into FolderTree and OpenHandle
// manager operations, plus the error-kind-to-errno mapping of §7.
package fs

import (
	"context"
	"fmt"
	"os"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"mediafirefs/internal/catalog"
	"mediafirefs/internal/errs"
	"mediafirefs/internal/logging"
	"mediafirefs/internal/persist"
	"mediafirefs/internal/remote"
)

var log = logging.Get("vfs")

// VfsAdapter is the root of the translation layer (§4.5). It is the
// bazil.org/fuse fusefs.FS implementation served by the mount command.
type VfsAdapter struct {
	tree    *catalog.FolderTree
	handles *catalog.Manager
	remote  remote.Client

	dirCachePath string
	accountID    string

	uid uint32
	gid uint32

	conn *fuse.Conn
}

// New wires an adapter over tree, handles and client. accountID and
// dirCachePath are used by Destroy to persist the catalog on shutdown.
func New(tree *catalog.FolderTree, handles *catalog.Manager, client remote.Client, dirCachePath, accountID string) *VfsAdapter {
	return &VfsAdapter{
		tree:         tree,
		handles:      handles,
		remote:       client,
		dirCachePath: dirCachePath,
		accountID:    accountID,
		uid:          safeIntToUint32(os.Getuid()),
		gid:          safeIntToUint32(os.Getgid()),
	}
}

// Root implements fusefs.FS.
func (a *VfsAdapter) Root() (fusefs.Node, error) {
	return &Dir{fs: a, path: "/"}, nil
}

// Destroy implements fusefs.FSDestroyer. It is invoked by the host on
// the normal unmount path and persists the catalog (§4.4): a failure
// here is logged but must not block shutdown.
func (a *VfsAdapter) Destroy() {
	if err := persist.Store(a.dirCachePath, a.accountID, a.tree); err != nil {
		log.WithError(err).Warn("failed to persist dir-cache on shutdown")
	}
}

// mountReadyTimeout bounds how long Mount waits for the kernel to
// publish the mountpoint before giving up (§4.5).
const mountReadyTimeout = 3 * time.Second

// mountReadyPoll is the interval between waitForMount's stat attempts.
const mountReadyPoll = 100 * time.Millisecond

// Mount brings the filesystem up at mountPoint and serves it in a
// background goroutine.
func (a *VfsAdapter) Mount(mountPoint string) error {
	log.WithField("mount_point", mountPoint).Info("mounting")

	opts := []fuse.MountOption{
		fuse.FSName("mediafirefs"),
		fuse.Subtype("mediafirefs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}

	c, err := fuse.Mount(mountPoint, opts...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountPoint, err)
	}
	a.conn = c

	go func() {
		if err := fusefs.Serve(c, a); err != nil {
			log.WithError(err).Error("fuse server exited")
		}
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		return err
	}
	log.WithField("mount_point", mountPoint).Info("mounted")
	return nil
}

// waitForMount polls until the kernel reports mountPoint as a live
// mount, or gives up after mountReadyTimeout.
func waitForMount(mountPoint string) error {
	deadline := mountReadyTimeout
	attempts := int(deadline / mountReadyPoll)
	for i := 0; i < attempts; i++ {
		info, err := os.Stat(mountPoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(mountReadyPoll)
	}
	return fmt.Errorf("mount point %s not ready after %s", mountPoint, deadline)
}

// Unmount cleanly unmounts the filesystem.
func (a *VfsAdapter) Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}

// getattr is shared by Dir.Attr and File.Attr. It triggers a
// non-forced Update — "the only place where opportunistic sync
// happens" (§4.5) — then fills a fuse.Attr from the catalog, including
// the synthetic 0-byte LOCAL_NEW record.
func (a *VfsAdapter) getattr(ctx context.Context, path string, out *fuse.Attr) error {
	_ = a.tree.Update(ctx, false)

	st, err := a.tree.Getattr(path)
	if err != nil {
		return errs.ToErrno(err)
	}

	out.Uid = a.uid
	out.Gid = a.gid
	out.Mtime = st.Mtime
	out.Atime = st.Mtime
	out.Ctime = st.Mtime

	if st.Dir {
		out.Mode = os.ModeDir | 0755
		out.Nlink = 1
		return nil
	}

	out.Mode = 0644
	out.Size = safeInt64ToUint64(st.Size)
	out.Nlink = 1
	return nil
}
