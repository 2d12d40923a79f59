package core

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
)

// PatternFilter decides whether a path is a candidate result file. A file
// matches when its name satisfies at least one glob and, when a MIME
// allow-list is configured, its sniffed content type is on that list.
// Symlinks and zero-byte files never match.
type PatternFilter struct {
	patterns  []string
	mimeTypes []string
}

func NewPatternFilter(patterns, mimeTypes []string) *PatternFilter {
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	return &PatternFilter{patterns: patterns, mimeTypes: mimeTypes}
}

// Matches sniffs the file on disk, so the path must exist at call time. A
// vanished file simply does not match.
func (f *PatternFilter) Matches(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return false
	}
	if info.Size() == 0 {
		return false
	}

	name := filepath.Base(path)
	matched := false
	for _, p := range f.patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if len(f.mimeTypes) == 0 {
		return true
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for _, allowed := range f.mimeTypes {
		if mt.Is(allowed) || strings.EqualFold(mt.String(), allowed) {
			return true
		}
	}
	return false
}
