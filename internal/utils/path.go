package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsafePath = errors.New("unsafe relative path")

func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// Resolve relative paths (.., .) and return an absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	return EnsureDir(dir)
}

func EnsureDir(path string) error {
	// already exists
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.MkdirAll(path, 0o755)
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// NormPath normalizes a slash separated relative path: cleans it, converts
// backslashes and trims leading slashes.
func NormPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	path = strings.TrimLeft(path, "/")
	return path
}

// SafeRelPath validates that path stays inside its root once joined.
// It returns the normalized slash form.
func SafeRelPath(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return "", ErrUnsafePath
	}
	if filepath.VolumeName(path) != "" {
		return "", ErrUnsafePath
	}
	norm := NormPath(path)
	if norm == "." || norm == "" {
		return "", ErrUnsafePath
	}
	for _, part := range strings.Split(norm, "/") {
		if part == ".." {
			return "", ErrUnsafePath
		}
	}
	return norm, nil
}

// JoinRel joins a slash separated relative path onto root.
func JoinRel(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
