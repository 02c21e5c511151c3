// Command mediafirefs mounts a remote cloud file-storage account as a
// local POSIX filesystem.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mediafirefs/internal/catalog"
	"mediafirefs/internal/config"
	"mediafirefs/internal/fs"
	"mediafirefs/internal/logging"
	"mediafirefs/internal/persist"
	"mediafirefs/internal/remote"
)

var log = logging.Get("main")

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.Verbose {
		logging.SetLevel(logrus.DebugLevel)
	}

	mountPoint := filepath.Clean(cfg.MountPoint)
	stagingDir := filepath.Clean(cfg.StagingDir)

	if info, err := os.Stat(stagingDir); err != nil || !info.IsDir() {
		log.WithField("staging_dir", stagingDir).Fatal("staging directory must exist and be writable")
	}

	client := remote.NewHTTPClient(cfg.BaseURL, cfg.APIKey)

	ctx := context.Background()
	accountID, err := client.AccountID(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve account identity")
	}

	tree := catalog.NewFolderTree(client, stagingDir)
	tree.SetPollInterval(time.Duration(cfg.PollInterval) * time.Second)
	handles := catalog.NewManager(tree, client)

	ok, err := persist.Load(cfg.DirCachePath, accountID, tree)
	if err != nil {
		log.WithError(err).Warn("failed to read dir-cache, bootstrapping from remote")
	}
	if !ok {
		if err := tree.Bootstrap(ctx); err != nil {
			log.WithError(err).Fatal("failed to bootstrap catalog from remote")
		}
	}

	adapter := fs.New(tree, handles, client, cfg.DirCachePath, accountID)

	log.WithField("mount_point", mountPoint).Info("mounting")
	if err := adapter.Mount(mountPoint); err != nil {
		log.WithError(err).Fatal("mount failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("received shutdown signal, unmounting")

	if err := adapter.Unmount(mountPoint); err != nil {
		log.WithError(err).Error("unmount failed")
	}
}
