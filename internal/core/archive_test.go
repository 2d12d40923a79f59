package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveMove(t *testing.T) {
	src := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")

	path := writeFile(t, src, "066-129999-9.pdf", pdfBytes)

	a := NewArchiveMover(archive)
	dest, err := a.Archive(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archive, "066-129999-9.pdf"), dest)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "source copy must be gone")
	_, err = os.Stat(dest)
	assert.NoError(t, err)
}

func TestArchiveCollisionSuffix(t *testing.T) {
	src := t.TempDir()
	archive := t.TempDir()
	a := NewArchiveMover(archive)

	first := writeFile(t, src, "report.pdf", []byte("one"))
	dest1, err := a.Archive(first)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", filepath.Base(dest1))

	second := writeFile(t, src, "report.pdf", []byte("two"))
	dest2, err := a.Archive(second)
	require.NoError(t, err)
	assert.Equal(t, "report_1.pdf", filepath.Base(dest2))

	third := writeFile(t, src, "report.pdf", []byte("three"))
	dest3, err := a.Archive(third)
	require.NoError(t, err)
	assert.Equal(t, "report_2.pdf", filepath.Base(dest3))

	// Neither archived copy was overwritten.
	one, _ := os.ReadFile(dest1)
	two, _ := os.ReadFile(dest2)
	assert.Equal(t, "one", string(one))
	assert.Equal(t, "two", string(two))
}

func TestArchiveCollisionBound(t *testing.T) {
	src := t.TempDir()
	archive := t.TempDir()

	a := NewArchiveMover(archive)
	a.collisionBound = 1

	writeFile(t, archive, "report.pdf", nil)
	writeFile(t, archive, "report_1.pdf", nil)

	path := writeFile(t, src, "report.pdf", []byte("payload"))
	_, err := a.Archive(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollisionUnresolved))

	// Original stays put on failure.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
