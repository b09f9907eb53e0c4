// Package storage keeps the binary artifacts of a job on the local filesystem:
// the original upload and the annotated detection result.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

const defaultExt = ".jpg"

// FileStore writes artifacts under two directories, addressed by job id.
type FileStore struct {
	uploadDir string
	resultDir string
	logger    *zap.Logger
}

// NewFileStore creates the upload and result directories if needed.
func NewFileStore(uploadDir, resultDir string, logger *zap.Logger) (*FileStore, error) {
	for _, dir := range []string{uploadDir, resultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", domain.ErrStorage, dir, err)
		}
	}
	return &FileStore{uploadDir: uploadDir, resultDir: resultDir, logger: logger}, nil
}

// SaveUpload writes body to <uploadDir>/<id>_original<ext> and returns the path.
// The file is written to a temp name first so readers never see a partial upload.
func (s *FileStore) SaveUpload(id uuid.UUID, filename string, body []byte) (string, error) {
	path := filepath.Join(s.uploadDir, id.String()+"_original"+extOf(filename))

	tmp, err := os.CreateTemp(s.uploadDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", domain.ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: write upload: %v", domain.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: close upload: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename upload: %v", domain.ErrStorage, err)
	}

	s.logger.Debug("upload stored",
		zap.String("job_id", id.String()),
		zap.String("path", path),
		zap.Int("bytes", len(body)),
	)
	return path, nil
}

// RemoveUpload deletes an upload that no job refers to. A missing file is not an error.
func (s *FileStore) RemoveUpload(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove upload: %v", domain.ErrStorage, err)
	}
	return nil
}

// ResultPath returns where the annotated image for a job belongs. The extension
// follows the upload so the annotator can keep the input format.
func (s *FileStore) ResultPath(id uuid.UUID, uploadPath string) string {
	return filepath.Join(s.resultDir, id.String()+"_result"+extOf(uploadPath))
}

// Exists reports whether path is a regular file.
func (s *FileStore) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func extOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return ext
	default:
		return defaultExt
	}
}
