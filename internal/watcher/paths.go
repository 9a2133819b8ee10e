package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ToLogical converts a local file path under root into a logical path:
// slash separated with a leading slash.
func ToLogical(root, localPath string) (string, error) {
	rel, err := filepath.Rel(root, localPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", localPath, root)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// ToLocal converts a logical path into a file path under root.
func ToLocal(root, logical string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(logical, "/")))
}
