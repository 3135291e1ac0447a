package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/an-heidi/image-resizer/internal/resize"
)

func TestSave_CreatesTierDirectory(t *testing.T) {
	base := t.TempDir()
	s := NewVariantStore(base, nil)

	err := s.Save(resize.QualityLow, "abc123", "photo.jpg", []byte("data"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(base, "low", "abc123-photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestSave_StripsDirectoryFromName(t *testing.T) {
	base := t.TempDir()
	s := NewVariantStore(base, nil)

	err := s.Save(resize.QualityMedium, "p", "../../escape.jpg", []byte("x"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "medium", "p-escape.jpg"))
	assert.NoError(t, err)
}

func TestSaveAll_WritesEveryTier(t *testing.T) {
	base := t.TempDir()
	s := NewVariantStore(base, nil)

	s.SaveAll("img.jpg", map[resize.Quality][]byte{
		resize.QualityLow:      []byte("l"),
		resize.QualityMedium:   []byte("m"),
		resize.QualityOriginal: []byte("o"),
	})

	for _, tier := range resize.Tiers {
		entries, err := os.ReadDir(filepath.Join(base, string(tier)))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "tier %s", tier)
	}
}

func TestSaveAll_SwallowsErrors(t *testing.T) {
	// Base path is a file, so every MkdirAll fails; SaveAll must not panic
	// or return anything.
	base := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0600))

	s := NewVariantStore(base, nil)
	s.SaveAll("img.jpg", map[resize.Quality][]byte{resize.QualityLow: []byte("l")})
}
