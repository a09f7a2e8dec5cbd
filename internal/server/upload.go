package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// saveUpload copies an uploaded export to a unique path under the temp dir.
// The returned cleanup removes it and is safe to call on every exit path.
func (s *Server) saveUpload(src io.Reader) (string, func(), error) {
	name := fmt.Sprintf("upload-%s-%s.csv", time.Now().UTC().Format("20060102T150405.000000000"), uuid.NewString())
	path := filepath.Join(s.config.TempDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove temp file", "path", path, "error", err)
		}
	}

	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to close temp file: %w", err)
	}

	return path, cleanup, nil
}
