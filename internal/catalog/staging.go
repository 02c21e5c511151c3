package catalog

import "os"

// newStagingFile allocates a fresh, empty staging file under dir and
// immediately unlinks it (§6.4): the only remaining reference is the
// open descriptor, so the staged bytes disappear with the fd whether the
// caller closes it deliberately or the process dies (§5: "staging-
// directory files are unnamed ... so process death cleans them up"),
// grounded on the create-then-remove temp-file pattern used for staged
// writes across the reference corpus (e.g. FruitSalade's FUSE layer).
func newStagingFile(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, "mediafirefs-*.staged")
	if err != nil {
		return nil, err
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
