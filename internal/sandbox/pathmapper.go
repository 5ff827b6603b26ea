package sandbox

import (
	"path/filepath"
	"strings"
)

// PathMapper provides a total, bijective conversion between host paths
// under hostRoot and sandbox paths under sandboxRoot. Any path outside
// either root is rejected — the workspace boundary is the core safety
// invariant tools rely on.
type PathMapper struct {
	hostRoot    string
	sandboxRoot string
}

// NewPathMapper builds a mapper over the given host/sandbox workspace
// root pair. Both roots are passed through filepath.Clean; a relative
// root is not made absolute.
func NewPathMapper(hostRoot, sandboxRoot string) *PathMapper {
	return &PathMapper{
		hostRoot:    filepath.Clean(hostRoot),
		sandboxRoot: filepath.Clean(sandboxRoot),
	}
}

// IdentityPathMapper returns a mapper where host and sandbox paths are the
// same — the passthrough runtime's mapper, per §4.4.
func IdentityPathMapper(root string) *PathMapper {
	return NewPathMapper(root, root)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// ToSandbox converts a host path to its sandbox equivalent. Returns
// ErrOutsideWorkspace if hostPath is not under the host root.
func (m *PathMapper) ToSandbox(hostPath string) (string, error) {
	clean := filepath.Clean(hostPath)
	if !within(m.hostRoot, clean) {
		return "", ErrOutsideWorkspace
	}
	rel, err := filepath.Rel(m.hostRoot, clean)
	if err != nil {
		return "", ErrOutsideWorkspace
	}
	if rel == "." {
		return m.sandboxRoot, nil
	}
	return filepath.Join(m.sandboxRoot, rel), nil
}

// ToHost converts a sandbox path to its host equivalent. Returns
// ErrOutsideWorkspace if sandboxPath is not under the sandbox root.
func (m *PathMapper) ToHost(sandboxPath string) (string, error) {
	clean := filepath.Clean(sandboxPath)
	if !within(m.sandboxRoot, clean) {
		return "", ErrOutsideWorkspace
	}
	rel, err := filepath.Rel(m.sandboxRoot, clean)
	if err != nil {
		return "", ErrOutsideWorkspace
	}
	if rel == "." {
		return m.hostRoot, nil
	}
	return filepath.Join(m.hostRoot, rel), nil
}

// RewriteOutput replaces every occurrence of the sandbox root prefix in s
// with the host root, so that file paths a sandboxed command printed to
// stdout read correctly once returned to the model.
func (m *PathMapper) RewriteOutput(s string) string {
	if m.sandboxRoot == m.hostRoot {
		return s
	}
	return strings.ReplaceAll(s, m.sandboxRoot, m.hostRoot)
}

// HostRoot returns the host-side workspace root.
func (m *PathMapper) HostRoot() string { return m.hostRoot }

// SandboxRoot returns the sandbox-side workspace root.
func (m *PathMapper) SandboxRoot() string { return m.sandboxRoot }
