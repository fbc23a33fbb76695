package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hls-radio/internal/radio"
)

// LocalMaterializer resolves song keys against a directory on disk.
type LocalMaterializer struct {
	Root string
}

// NewLocalMaterializer returns a LocalMaterializer rooted at root.
func NewLocalMaterializer(root string) *LocalMaterializer {
	return &LocalMaterializer{Root: root}
}

// Materialize implements radio.Materializer. The file is used in place, so
// release does nothing.
func (m *LocalMaterializer) Materialize(ctx context.Context, song radio.Song) (string, func(), error) {
	path, err := resolveKey(m.Root, song.Key)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("song %s: %w", song.ID, err)
	}
	return path, func() {}, nil
}

// resolveKey joins key onto root and rejects keys that escape it.
func resolveKey(root, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty song key")
	}
	path := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("song key %q escapes library root", key)
	}
	return path, nil
}
