package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlobStore writes evidence under a directory served at /uploads. Used in development.
type LocalBlobStore struct {
	root    string
	baseURL string
}

func NewLocalBlobStore(root, publicBaseURL string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir %s: %w", root, err)
	}
	return &LocalBlobStore{root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *LocalBlobStore) UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	destPath := filepath.Join(s.root, filepath.FromSlash(key))
	// ✅ Security: keys must stay inside root
	if !strings.HasPrefix(destPath, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal object key: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return fmt.Sprintf("%s/uploads/%s", s.baseURL, key), nil
}
