package utils

import (
	"io/fs"
	"os"
	"path/filepath"
)

// ChownTree hands root and everything below it to uid:gid. Symlinks are
// re-owned, never followed.
func ChownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}
