// Package persist implements the dir-cache file of §4.4/§6.3: the
// self-describing, CBOR-encoded snapshot of the catalog that is written
// at shutdown and reloaded at the next startup.
package persist

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"mediafirefs/internal/catalog"
	"mediafirefs/internal/logging"
)

var log = logging.Get("persist")

// magic and schemaVersion identify the file format; Load rejects any
// file whose header doesn't match, falling back to a full remote
// bootstrap per §6.3.
const (
	magic         = "MFFS"
	schemaVersion = 1
)

// envelope is the on-disk shape of the dir-cache file: a header self-
// describing enough to reject a stale schema or a different account,
// followed by the serialized catalog.
type envelope struct {
	Magic     string        `cbor:"magic"`
	Version   int           `cbor:"version"`
	AccountID string        `cbor:"account_id"`
	Revision  int64         `cbor:"revision"`
	Catalog   *catalog.Store `cbor:"catalog"`
}

// Store serializes tree's current catalog to path, tagged with
// accountID. A failure here is the caller's to log; it must never block
// shutdown (§4.4).
func Store(path, accountID string, tree *catalog.FolderTree) error {
	store, revision := tree.Snapshot()

	env := envelope{
		Magic:     magic,
		Version:   schemaVersion,
		AccountID: accountID,
		Revision:  revision,
		Catalog:   store,
	}

	data, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("persist: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("persist: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist: rename: %w", err)
	}
	return nil
}

// Load reads path and, if its header matches schemaVersion and
// accountID, restores the catalog into tree and reports ok=true. Any
// mismatch — missing file, bad magic, version skew, different account —
// is reported as ok=false so the caller bootstraps from the remote
// instead (§6.3); it is not treated as a fatal error.
func Load(path, accountID string, tree *catalog.FolderTree) (ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no dir-cache present, bootstrapping from remote")
			return false, nil
		}
		return false, fmt.Errorf("persist: open: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return false, fmt.Errorf("persist: read: %w", err)
	}

	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		log.WithError(err).Warn("dir-cache is corrupt, discarding")
		return false, nil
	}

	if env.Magic != magic || env.Version != schemaVersion {
		log.WithField("version", env.Version).Warn("dir-cache schema mismatch, discarding")
		return false, nil
	}
	if env.AccountID != accountID {
		log.WithField("cached_account", env.AccountID).Warn("dir-cache belongs to a different account, discarding")
		return false, nil
	}

	store := env.Catalog
	if store == nil {
		store = catalog.NewStore()
	}
	if store.Folders == nil {
		store.Folders = map[string]*catalog.Folder{}
	}
	if store.Files == nil {
		store.Files = map[string]*catalog.File{}
	}
	tree.Restore(store, env.Revision)
	return true, nil
}
