// Package fileio resolves, filters and reads the files tools reference.
// Every path that reaches a model goes through this package: absolute-path
// enforcement, symlink resolution, a deny list of sensitive locations, and
// framed output so omissions are visible to the model.
package fileio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath marks a path rejected by validation. The wrapped message
// says why; callers surface it as an InvalidRequest.
var ErrUnsafePath = errors.New("fileio: unsafe path")

// deniedPrefixes are directory roots that must never be read, even through
// symlinks. The server's own directory is added at runtime by NewValidator.
var deniedPrefixes = []string{
	"/etc",
	"/usr",
	"/bin",
	"/sbin",
	"/var",
	"/boot",
	"/sys",
	"/proc",
	"/dev",
}

// traversalMarkers are rejected anywhere in the raw input, before any
// resolution: plain traversal, URL-encoded traversal and separators, and
// hex-escaped separators.
var traversalMarkers = []string{
	"..",
	"%2e%2e",
	"%2f",
	"%5c",
	`\x2f`,
	`\x5c`,
}

// Validator checks paths against the sandbox policy.
type Validator struct {
	denied   []string // prefix-denied roots
	homeRoot string   // exact-match denied: the home directory itself
}

// NewValidator builds a Validator. serverDir (the running server's own
// directory) is appended to the prefix deny list; pass "" to skip. The user
// home root itself is denied exactly (embedding all of ~ is never intended)
// while project directories under it remain readable.
func NewValidator(serverDir string) *Validator {
	denied := make([]string, 0, len(deniedPrefixes)+1)
	denied = append(denied, deniedPrefixes...)
	if serverDir != "" {
		if abs, err := filepath.Abs(serverDir); err == nil {
			denied = append(denied, filepath.Clean(abs))
		}
	}
	v := &Validator{denied: denied}
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		v.homeRoot = filepath.Clean(home)
	}
	return v
}

// Resolve validates raw and returns its canonical absolute form.
//
// Rejections: relative paths, NUL bytes, traversal and encoded-separator
// markers, and any resolved path inside the deny list. The deny check runs
// after symlink resolution so links cannot smuggle a denied target.
func (v *Validator) Resolve(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: null byte in path", ErrUnsafePath)
	}
	lower := strings.ToLower(raw)
	for _, marker := range traversalMarkers {
		if strings.Contains(lower, marker) {
			return "", fmt.Errorf("%w: traversal marker %q in %q", ErrUnsafePath, marker, raw)
		}
	}
	if !filepath.IsAbs(raw) {
		return "", fmt.Errorf("%w: %q is not absolute; all file paths must be absolute", ErrUnsafePath, raw)
	}

	resolved := filepath.Clean(raw)
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}

	if v.homeRoot != "" && resolved == v.homeRoot {
		return "", fmt.Errorf("%w: refusing to read the home directory root %q", ErrUnsafePath, raw)
	}
	for _, denied := range v.denied {
		if resolved == denied || strings.HasPrefix(resolved, denied+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %q is inside protected location %q", ErrUnsafePath, raw, denied)
		}
	}
	return resolved, nil
}
