package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IsContainer reports whether a listing entry is folder-like: its final
// segment carries no extension.
func IsContainer(name string) bool {
	return !strings.Contains(name, ".")
}

// JoinPath joins object key segments with "/", ignoring empty ones.
func JoinPath(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// LocalPath maps an object key to a file under root. Keys that are absolute
// or contain "." or ".." segments are rejected with ErrUnsafePath, so the
// mapping stays reversible by ObjectPath.
func LocalPath(root, objectPath string) (string, error) {
	if objectPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if strings.HasPrefix(objectPath, "/") || filepath.IsAbs(objectPath) {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, objectPath)
	}
	for _, seg := range strings.Split(objectPath, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, objectPath)
		}
	}
	return filepath.Join(root, filepath.FromSlash(objectPath)), nil
}

// ObjectPath is the inverse of LocalPath: it turns a file under root back
// into a "/"-joined object key.
func ObjectPath(root, localPath string) (string, error) {
	rel, err := filepath.Rel(root, localPath)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", localPath, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrUnsafePath, localPath, root)
	}
	return filepath.ToSlash(rel), nil
}
