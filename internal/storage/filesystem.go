package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore writes attachments below a local directory
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("please provide a directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &FileStore{root: abs}, nil
}

func (f *FileStore) Put(ctx context.Context, key string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("invalid key %q", key)
	}
	p := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(p, content, 0o600); err != nil {
		return fmt.Errorf("could not write %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) String() string {
	return f.root
}
