package watcher

import (
	"path/filepath"
	"strings"
)

// ExcludeGlobs returns a filter that rejects paths matching any of the
// given patterns. Relative patterns are evaluated against the root: they
// match when they glob the root-relative path, glob any single path
// element, or name a leading directory. An absolute pattern (such as an
// absolute build output directory) excludes itself and everything under
// it, wherever the watched path lies.
func ExcludeGlobs(root string, patterns []string) PathFilter {
	cleanRoot := filepath.Clean(root)

	return func(path string) bool {
		cleanPath := filepath.Clean(path)

		for _, pattern := range patterns {
			if !filepath.IsAbs(pattern) {
				continue
			}
			abs := cleanPath
			if !filepath.IsAbs(abs) {
				if resolved, err := filepath.Abs(abs); err == nil {
					abs = resolved
				}
			}
			excluded := filepath.Clean(pattern)
			if abs == excluded || strings.HasPrefix(abs, excluded+string(filepath.Separator)) {
				return false
			}
		}

		rel, err := filepath.Rel(cleanRoot, cleanPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			// Outside the root; leave it to other roots' filters.
			return true
		}

		elements := strings.Split(rel, string(filepath.Separator))
		for _, pattern := range patterns {
			if filepath.IsAbs(pattern) {
				continue
			}
			if matched, _ := filepath.Match(pattern, rel); matched {
				return false
			}
			for _, element := range elements {
				if matched, _ := filepath.Match(pattern, element); matched {
					return false
				}
			}
			if rel == pattern || strings.HasPrefix(rel, pattern+string(filepath.Separator)) {
				return false
			}
		}
		return true
	}
}

// NoHidden rejects dotfiles and editor temp files anywhere in the path,
// which otherwise generate spurious rebuilds on every save.
func NoHidden(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && base != "." {
		return false
	}
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}
