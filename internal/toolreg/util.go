package toolreg

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// errOutsideRoot is returned by absWithin when path resolves outside root.
var errOutsideRoot = errors.New("path escapes root_dir")

// absWithin canonicalizes path (joining it against root if relative) and
// verifies the result is contained within root, per §4.2's "reject paths
// outside root_dir (canonicalize and prefix-check)" requirement.
func absWithin(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)

	rel, err := filepath.Rel(cleanRoot, cleanPath)
	if err != nil {
		return "", errOutsideRoot
	}
	if rel == "." {
		return cleanPath, nil
	}
	if strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", errOutsideRoot
	}
	return cleanPath, nil
}
