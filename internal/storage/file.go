package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	BackupSuffix    = ".backup"
	TmpSuffix       = ".tmp"
	FilePermissions = 0644
)

// File stores one JSON file per key inside dir. A write keeps the previous
// document as <file>.backup and lands the new one through a tmp file + rename.
type File struct {
	dir string
}

func OpenFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Path returns the file backing key ("@students" -> <dir>/students.json).
func (s *File) Path(key string) string {
	name := strings.TrimLeft(key, "@")
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	return filepath.Join(s.dir, name+".json")
}

func (s *File) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *File) Write(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.Path(key)
	tmp := target + TmpSuffix
	if err := os.WriteFile(tmp, value, FilePermissions); err != nil {
		return err
	}

	if _, err := os.Stat(target); err == nil {
		if err := copyFile(target, target+BackupSuffix); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	return os.Rename(tmp, target)
}

func (s *File) Close() error { return nil }

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, FilePermissions)
}
