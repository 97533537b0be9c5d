package fileio

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// excludedDirs is the fixed set of directory names skipped during directory
// expansion: VCS metadata, build output, dependency trees and caches.
var excludedDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "bower_components": true,
	"__pycache__": true, ".pytest_cache": true, ".mypy_cache": true,
	".tox": true, "venv": true, ".venv": true, "env": true,
	"build": true, "dist": true, "out": true, "target": true, "bin": true, "obj": true,
	".gradle": true, ".idea": true, ".vscode": true,
	".cache": true, ".npm": true, ".yarn": true,
	"vendor": true, ".terraform": true,
	".next": true, ".nuxt": true, ".turbo": true,
}

// ExpandPaths turns a mixed list of file and directory paths into a flat,
// sorted, deduplicated list of readable files. Directories are walked
// recursively; hidden entries, excluded ecosystems and the server's own
// directory are skipped. Invalid inputs are logged and dropped rather than
// failing the whole expansion: a single bad path must not sink a request
// that references twenty good ones.
func (v *Validator) ExpandPaths(paths []string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, raw := range paths {
		resolved, err := v.Resolve(raw)
		if err != nil {
			log.Printf("[FileIO] Skipping %q: %v", raw, err)
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil {
			log.Printf("[FileIO] Skipping %q: %v", raw, err)
			continue
		}
		if !info.IsDir() {
			add(resolved)
			continue
		}

		walkErr := filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree: skip, don't abort
			}
			name := d.Name()
			if d.IsDir() {
				if p != resolved && (strings.HasPrefix(name, ".") || excludedDirs[name]) {
					return filepath.SkipDir
				}
				if _, err := v.Resolve(p); err != nil && p != resolved {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			add(p)
			return nil
		})
		if walkErr != nil {
			log.Printf("[FileIO] Walk %q: %v", resolved, walkErr)
		}
	}

	sort.Strings(out)
	return out
}
