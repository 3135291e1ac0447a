// Package storage persists processed image variants on the local
// filesystem, one directory per quality tier.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/resize"
)

// VariantStore writes quality variants under <base>/<tier>/.
type VariantStore struct {
	basePath string
	logger   *zap.Logger
}

// NewVariantStore creates a store rooted at basePath.
func NewVariantStore(basePath string, logger *zap.Logger) *VariantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VariantStore{basePath: basePath, logger: logger}
}

// Save writes one variant. The stored name is <prefix>-<originalName> so
// variants from the same request batch stay associated.
func (s *VariantStore) Save(tier resize.Quality, prefix, originalName string, data []byte) error {
	dir := filepath.Join(s.basePath, string(tier))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create tier directory: %w", err)
	}

	fullPath := filepath.Join(dir, prefix+"-"+filepath.Base(originalName))
	if err := os.WriteFile(fullPath, data, 0640); err != nil {
		return fmt.Errorf("write variant: %w", err)
	}

	s.logger.Debug("variant saved",
		zap.String("tier", string(tier)),
		zap.String("path", fullPath),
		zap.Int("bytes", len(data)))
	return nil
}

// SaveAll persists every tier of one processed file under a fresh shared
// prefix. Errors are logged and swallowed: persistence is a best-effort
// side effect and never surfaces in the HTTP response.
func (s *VariantStore) SaveAll(originalName string, variants map[resize.Quality][]byte) {
	prefix := uuid.New().String()[:8]
	for tier, data := range variants {
		if err := s.Save(tier, prefix, originalName, data); err != nil {
			s.logger.Warn("variant persistence failed",
				zap.String("tier", string(tier)),
				zap.String("file", originalName),
				zap.Error(err))
		}
	}
}
