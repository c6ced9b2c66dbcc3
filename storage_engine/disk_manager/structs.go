package diskmanager

import (
	"sync"
)

// DiskManager owns the files of one directory
type DiskManager struct {
	dir string
	mu  sync.Mutex // serializes writers of the same directory
}
