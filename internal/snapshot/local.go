package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalArchive writes snapshots under a base directory.
type LocalArchive struct {
	baseDir string
}

// NewLocal validates the base directory, creating it when missing.
func NewLocal(baseDir string) (*LocalArchive, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(baseDir, 0o750); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat snapshot directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("snapshot path %s is not a directory", baseDir)
	}
	return &LocalArchive{baseDir: baseDir}, nil
}

// Save writes one snapshot file and returns a file:// URI.
func (a *LocalArchive) Save(_ context.Context, name string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("snapshot name is required")
	}
	full := filepath.Join(a.baseDir, name)
	// Names come from SafeName; still refuse anything escaping the base.
	if !strings.HasPrefix(filepath.Clean(full), filepath.Clean(a.baseDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("snapshot name %q escapes the archive directory", name)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return "file://" + full, nil
}
