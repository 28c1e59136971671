package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/google/uuid"
)

// TempMarker is embedded in every temp file name so leftovers can be recognised.
const TempMarker = ".riceify-tmp-"

// TempPath returns a unique temp file path next to path.
func TempPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+TempMarker+uuid.NewString())
}

// IsTempPath reports whether path was produced by TempPath.
func IsTempPath(path string) bool {
	return strings.Contains(filepath.Base(path), TempMarker)
}

// WriteFileAtomic writes data to path through a temp file and a rename.
// Parent directories are created as needed. The temp file is removed on
// every failure path.
func WriteFileAtomic(fsys types.FS, path string, data []byte, perm fs.FileMode) (err error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}

	tmp := TempPath(path)
	defer func() {
		if err != nil {
			_ = fsys.Remove(tmp)
		}
	}()

	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file over %s: %w", path, err)
	}
	return nil
}

// RemoveIfExists removes path, treating a missing file as success.
func RemoveIfExists(fsys types.FS, path string) error {
	if err := fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path exists. Errors other than not-exist are returned.
func Exists(fsys types.FS, path string) (bool, error) {
	_, err := fsys.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
