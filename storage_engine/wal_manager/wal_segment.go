package wal_manager

import (
	"fmt"
	"os"
	"path/filepath"
)

/*
This file contains the actual internal operation wal segment

WALSegment.Append: lowest level. Just writes raw bytes to the file and tracks size.
No fsync, the data is in the OS buffer and not guaranteed durable.

WALSegment.Sync: calls File.Sync() which forces OS buffer → disk.
After this the data is durable even if the process crashes.

WALSegment.Truncate: cuts the file back to a known good size, used to undo a failed
append and to drop a torn record found while opening.
*/

func InitializeWALSegment(baseLSN uint64, basePath string) *WALSegment {
	return &WALSegment{
		BaseLSN:  baseLSN,
		FilePath: filepath.Join(basePath, segmentFileName(baseLSN)),
	}
}

// opens the segment file in append-only mode
func (ws *WALSegment) Open() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		return nil
	}

	// O_APPEND ensures atomic appends at the OS level
	file, err := os.OpenFile(ws.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	ws.File = file
	ws.Size = stat.Size()
	return nil
}

// Append writes raw bytes and returns the number of bytes written
func (ws *WALSegment) Append(data []byte) (int, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return 0, fmt.Errorf("segment %s not opened", ws.FilePath)
	}

	n, err := ws.File.Write(data)
	ws.Size += int64(n)
	return n, err
}

func (ws *WALSegment) Sync() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return fmt.Errorf("segment %s not opened", ws.FilePath)
	}
	return ws.File.Sync()
}

// Truncate shrinks the segment to size and makes the new length durable
func (ws *WALSegment) Truncate(size int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		if err := ws.File.Truncate(size); err != nil {
			return err
		}
		if err := ws.File.Sync(); err != nil {
			return err
		}
	} else if err := os.Truncate(ws.FilePath, size); err != nil {
		return err
	}
	ws.Size = size
	return nil
}

// Close syncs and closes the segment file
func (ws *WALSegment) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return nil
	}
	syncErr := ws.File.Sync()
	closeErr := ws.File.Close()
	ws.File = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Remove closes and deletes the segment file
func (ws *WALSegment) Remove() error {
	if err := ws.Close(); err != nil {
		return err
	}
	if err := os.Remove(ws.FilePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsFull checks if segment has reached size limit
func (ws *WALSegment) IsFull(limit int64) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.Size >= limit
}

func (ws *WALSegment) currentSize() int64 {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.Size
}
