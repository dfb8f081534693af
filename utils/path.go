package utils

import (
	"path/filepath"
	"strings"
)

// IsPathWithin returns true if the given local path is within any of the roots.
func IsPathWithin(p string, roots []string) bool {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		resolved = p
	}
	absPath, err := filepath.Abs(resolved)
	if err != nil {
		return false
	}
	for _, root := range roots {
		rResolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			rResolved = root
		}
		absRoot, err := filepath.Abs(rResolved)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// JoinRemote joins a share-relative directory and an entry name with "/".
func JoinRemote(dir, name string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// CleanRemote normalizes a share-relative path: backslashes become "/",
// empty, "." and ".." segments are dropped.
func CleanRemote(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}

// WindowsPath converts a share-relative "/" path to SMB "\" form.
func WindowsPath(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}
