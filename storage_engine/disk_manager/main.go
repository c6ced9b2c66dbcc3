package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

/*
This is main file for disk manager
It owns every write of a metadata, checkpoint pointer or data file.

Files are replaced, never updated in place:
  1. write name.tmp
  2. fsync name.tmp
  3. rename name.tmp -> name (atomic on POSIX)
  4. fsync the directory so the rename itself survives a crash

A reader therefore sees the old file or the new one, never a partial write.
Leftover *.tmp files come from a crash between 1 and 3 and are ignored by readers.
*/

const tempSuffix = ".tmp"

func NewDiskManager(dir string) (*DiskManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &DiskManager{dir: dir}, nil
}

func (dm *DiskManager) Dir() string {
	return dm.dir
}

func (dm *DiskManager) Path(name string) string {
	return filepath.Join(dm.dir, name)
}

// WriteFile atomically replaces name with data
func (dm *DiskManager) WriteFile(name string, data []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return WriteFileAtomic(dm.Path(name), data)
}

// ReadFile returns the content of name, os.ErrNotExist is passed through
func (dm *DiskManager) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(dm.Path(name))
}

func (dm *DiskManager) Exists(name string) bool {
	_, err := os.Stat(dm.Path(name))
	return err == nil
}

// Remove deletes name, a missing file is not an error
func (dm *DiskManager) Remove(name string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := os.Remove(dm.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return SyncDir(dm.dir)
}

// List returns the names matching prefix*suffix, sorted, temp files excluded
func (dm *DiskManager) List(prefix, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dm.dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, tempSuffix) {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// RemoveAll deletes the directory with everything in it
func (dm *DiskManager) RemoveAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := os.RemoveAll(dm.dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dm.dir, err)
	}
	return SyncDir(filepath.Dir(dm.dir))
}

// WriteFileAtomic writes data to path through a synced temp file and a rename
func WriteFileAtomic(path string, data []byte) error {
	tempPath := path + tempSuffix

	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return SyncDir(filepath.Dir(path))
}

// SyncDir makes renames and removals inside dir durable
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync dir: %w", err)
	}
	return nil
}
