// Package naming picks local file names that do not collide with files
// already present in a directory.
package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolve returns desiredName if no file of that name exists in directory.
// Otherwise it returns the first of base(1)ext, base(2)ext, ... that is free,
// where ext is the final extension of desiredName including its dot.
//
// The result reflects the directory at call time only. Two resolvers racing
// on the same directory can pick the same name; callers that need
// uniqueness must create the file with O_EXCL or serialize their calls.
// The scan is unbounded, so a directory holding thousands of numbered
// variants costs one stat per variant.
func Resolve(desiredName, directory string) (string, error) {
	free, err := isFree(filepath.Join(directory, desiredName))
	if err != nil {
		return "", err
	}
	if free {
		return desiredName, nil
	}

	ext := filepath.Ext(desiredName)
	base := strings.TrimSuffix(desiredName, ext)

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		free, err := isFree(filepath.Join(directory, candidate))
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
}

func isFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("failed to check %s: %w", path, err)
}
