// Package buildcontext resolves host-side state against a build context
// root: whether a path exists, whether it is a directory, and whether
// .dockerignore excludes it. The executor's local operation resolution
// (4.6.1) consults it before a changed file becomes an upload or a delete.
package buildcontext

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/patternmatcher"
)

// BuildContext resolves paths relative to a single build context root,
// lazily loading .dockerignore on first use.
type BuildContext struct {
	Root string

	mu             sync.RWMutex
	patternMatcher *patternmatcher.PatternMatcher
	patterns       []string
	initialized    bool
	initErr        error
}

// New returns a BuildContext rooted at root, resolved to an absolute path.
func New(root string) (*BuildContext, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &BuildContext{Root: abs}, nil
}

// Exists reports whether path (context-relative, POSIX-style) names
// anything on the host.
func (bc *BuildContext) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(bc.Root, filepath.FromSlash(path)))
	return err == nil
}

// IsFile reports whether path names a regular file (not a directory) on
// the host, per 4.6.1's "real source existing and differing from f" check.
func (bc *BuildContext) IsFile(path string) bool {
	info, err := os.Stat(filepath.Join(bc.Root, filepath.FromSlash(path)))
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsDir reports whether path names a directory on the host.
func (bc *BuildContext) IsDir(path string) bool {
	info, err := os.Stat(filepath.Join(bc.Root, filepath.FromSlash(path)))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsIgnored reports whether path (context-relative) is excluded by
// .dockerignore or .containerignore.
func (bc *BuildContext) IsIgnored(path string) (bool, error) {
	if err := bc.ensureInitialized(); err != nil {
		return false, err
	}

	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if bc.patternMatcher == nil {
		return false, nil
	}
	return bc.patternMatcher.MatchesOrParentMatches(filepath.ToSlash(path))
}

// HasIgnoreFile reports whether this context root carries a dockerignore
// file at all.
func (bc *BuildContext) HasIgnoreFile() bool {
	if err := bc.ensureInitialized(); err != nil {
		return false
	}
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.patterns) > 0
}

func (bc *BuildContext) ensureInitialized() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.initialized {
		return bc.initErr
	}
	bc.initialized = true

	bc.patterns, bc.initErr = LoadDockerignore(bc.Root)
	if bc.initErr != nil {
		return bc.initErr
	}
	if len(bc.patterns) > 0 {
		bc.patternMatcher, bc.initErr = patternmatcher.New(bc.patterns)
	}
	return bc.initErr
}
