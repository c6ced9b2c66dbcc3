package wal_manager

import (
	"os"
	"sync"
)

const (
	RecordHeaderSize   = 16
	DefaultSegmentSize = 16 * 1024 * 1024
	// a record larger than this is treated as a corrupted length field
	MaxRecordSize = 64 * 1024 * 1024
)

type walState uint8

const (
	stateClosed walState = iota
	stateOpen
)

type WALManager struct {
	Directory   string
	TableSpace  string
	SegmentSize int64

	segments    []*WALSegment // ordered by BaseLSN, the last one is current
	currSegment *WALSegment
	currentLSN  uint64
	state       walState
	mu          sync.RWMutex
}

// WALSegment is one log file, named after the first LSN it holds
type WALSegment struct {
	BaseLSN  uint64
	LastLSN  uint64 // 0 while empty
	FilePath string
	File     *os.File
	Size     int64
	mu       sync.Mutex
}

type WALRecord struct {
	LSN  uint64
	Data []byte
	CRC  uint32
}
