package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveMover relocates sent files from the source directory into the
// archive directory by rename, so the move is atomic when both live on
// the same filesystem. Name collisions are disambiguated with a numbered
// suffix before the extension, up to a fixed bound.
type ArchiveMover struct {
	archiveDir     string
	collisionBound int
}

func NewArchiveMover(archiveDir string) *ArchiveMover {
	return &ArchiveMover{archiveDir: archiveDir, collisionBound: 100}
}

// Archive moves localPath into the archive dir and returns the archived
// path. The original file is left in place on any failure.
func (a *ArchiveMover) Archive(localPath string) (string, error) {
	if err := os.MkdirAll(a.archiveDir, 0755); err != nil {
		return "", fmt.Errorf("%w: create archive dir: %v", ErrLocalIOFailure, err)
	}

	name := filepath.Base(localPath)
	for n := 0; n <= a.collisionBound; n++ {
		dest := filepath.Join(a.archiveDir, disambiguate(name, n))
		if _, err := os.Lstat(dest); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("%w: stat %s: %v", ErrLocalIOFailure, dest, err)
		}

		if err := os.Rename(localPath, dest); err != nil {
			return "", fmt.Errorf("%w: rename to %s: %v", ErrLocalIOFailure, dest, err)
		}
		return dest, nil
	}
	return "", fmt.Errorf("%w: %s", ErrCollisionUnresolved, name)
}

// disambiguate appends a numeric suffix before the extension: report.pdf
// becomes report_1.pdf on the first collision.
func disambiguate(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", base, n, ext)
}
