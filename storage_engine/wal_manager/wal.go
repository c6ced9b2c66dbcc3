package wal_manager

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"time"

	"PastureDB/dberror"
	"PastureDB/logging"
	diskmanager "PastureDB/storage_engine/disk_manager"
	"PastureDB/types"
)

/*

WAL Segment File  (wal_<first LSN, 16 hex digits>.log)
────────────────────────────────────
| Record | Record | Record | ...   |
────────────────────────────────────

Each Record:
────────────────────────────────────────────
| LSN (8) | LEN (4) | CRC (4) | DATA (LEN) |
────────────────────────────────────────────

CRC covers LSN and DATA. LSNs are consecutive inside a segment and strictly increasing
across segments. Naming segments after their first LSN keeps numbering monotonic after
old segments are truncated away.

Opening the log validates every segment:
  - a short record at the tail of the last segment is a torn write, it is cut off
  - a CRC mismatch, a short record elsewhere or an LSN out of order is corruption

*/

var errTornRecord = errors.New("torn record")

func OpenWAL(directory, tableSpace string, segmentSize int64) (*WALManager, error) {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, dberror.Wrap(dberror.ErrCommitLogWrite, err, "creating log directory").WithTableSpace(tableSpace)
	}

	wal := &WALManager{
		Directory:   directory,
		TableSpace:  tableSpace,
		SegmentSize: segmentSize,
	}

	if err := wal.recoverSegments(); err != nil {
		return nil, err
	}

	if wal.currSegment == nil {
		if err := wal.createNewSegment(wal.currentLSN + 1); err != nil {
			return nil, dberror.Wrap(dberror.ErrCommitLogWrite, err, "creating first segment").WithTableSpace(tableSpace)
		}
	}
	wal.state = stateOpen
	return wal, nil
}

// recoverSegments scans existing segment files, restores the current LSN
// and leaves the last segment open for appends
func (w *WALManager) recoverSegments() error {
	files, err := filepath.Glob(filepath.Join(w.Directory, "wal_*.log"))
	if err != nil {
		return err
	}

	var baseLSNs []uint64
	for _, file := range files {
		if baseLSN, ok := parseSegmentFileName(file); ok {
			baseLSNs = append(baseLSNs, baseLSN)
		}
	}
	if len(baseLSNs) == 0 {
		return nil
	}
	slices.Sort(baseLSNs)

	log := logging.WithTableSpace(w.TableSpace)
	for i, baseLSN := range baseLSNs {
		segment := InitializeWALSegment(baseLSN, w.Directory)
		isLast := i == len(baseLSNs)-1

		if baseLSN <= w.currentLSN {
			return w.corrupted(segment, nil, "segment starts at LSN %d but LSN %d was already seen", baseLSN, w.currentLSN)
		}

		lastLSN, validSize, err := scanSegment(segment)
		switch {
		case errors.Is(err, errTornRecord) && isLast:
			log.Warn("truncating torn record at the end of the log",
				"segment", segment.FilePath, "offset", validSize)
			if err := segment.Truncate(validSize); err != nil {
				return dberror.Wrap(dberror.ErrCommitLogWrite, err, "truncating torn record").WithTableSpace(w.TableSpace)
			}
		case err != nil:
			return w.corrupted(segment, err, "invalid segment")
		}

		segment.LastLSN = lastLSN
		segment.Size = validSize
		if lastLSN > 0 {
			w.currentLSN = lastLSN
		} else {
			w.currentLSN = baseLSN - 1
		}
		w.segments = append(w.segments, segment)
	}

	w.currSegment = w.segments[len(w.segments)-1]
	if err := w.currSegment.Open(); err != nil {
		return dberror.Wrap(dberror.ErrCommitLogWrite, err, "opening segment %s", w.currSegment.FilePath).WithTableSpace(w.TableSpace)
	}

	log.Info("log recovered", "segments", len(w.segments), "last_lsn", w.currentLSN)
	return nil
}

func (w *WALManager) corrupted(segment *WALSegment, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return dberror.Wrap(dberror.ErrCorruptedLogFile, cause, "%s", msg).
		WithTableSpace(w.TableSpace).
		WithRecord(filepath.Base(segment.FilePath))
}

// scanSegment validates every record of a closed segment.
// It returns the last LSN and the size covered by complete records.
func scanSegment(segment *WALSegment) (uint64, int64, error) {
	file, err := os.Open(segment.FilePath)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	expected := segment.BaseLSN
	lastLSN := uint64(0)
	validSize, err := readRecords(file, func(rec *WALRecord, _ int64) error {
		if rec.LSN != expected {
			return fmt.Errorf("expected LSN %d, found %d", expected, rec.LSN)
		}
		lastLSN = rec.LSN
		expected++
		return nil
	})
	return lastLSN, validSize, err
}

// readRecords decodes records until EOF calling fn for each one.
// It returns the offset just past the last complete record.
func readRecords(r io.Reader, fn func(rec *WALRecord, offset int64) error) (int64, error) {
	br := bufio.NewReader(r)
	header := make([]byte, RecordHeaderSize)
	offset := int64(0)

	for {
		_, err := io.ReadFull(br, header)
		if err == io.EOF {
			return offset, nil
		}
		if err == io.ErrUnexpectedEOF {
			return offset, errTornRecord
		}
		if err != nil {
			return offset, err
		}

		lsn, dataLen, crc := decodeHeader(header)
		if dataLen > MaxRecordSize {
			return offset, fmt.Errorf("record at LSN %d declares %d bytes", lsn, dataLen)
		}

		data := make([]byte, dataLen)
		if _, err := io.ReadFull(br, data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return offset, errTornRecord
			}
			return offset, err
		}

		rec := &WALRecord{LSN: lsn, Data: data, CRC: crc}
		if !rec.ValidateCRC() {
			return offset, fmt.Errorf("CRC mismatch at LSN %d", lsn)
		}
		if err := fn(rec, offset); err != nil {
			return offset, err
		}
		offset += int64(RecordHeaderSize) + int64(dataLen)
	}
}

func (w *WALManager) createNewSegment(baseLSN uint64) error {
	segment := InitializeWALSegment(baseLSN, w.Directory)
	if err := segment.Open(); err != nil {
		return err
	}
	if err := diskmanager.SyncDir(w.Directory); err != nil {
		return err
	}
	w.segments = append(w.segments, segment)
	w.currSegment = segment
	return nil
}

// Append durably writes entry and returns its LSN.
// On failure nothing is left in the log and the LSN is not consumed.
func (w *WALManager) Append(entry *types.LogEntry) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		return 0, dberror.New(dberror.ErrCommitLogWrite, "log is closed").WithTableSpace(w.TableSpace)
	}

	data, err := entry.Encode()
	if err != nil {
		return 0, err
	}
	lsn := w.currentLSN + 1

	if w.currSegment.IsFull(w.SegmentSize) {
		if err := w.rollLocked(); err != nil {
			return 0, dberror.Wrap(dberror.ErrCommitLogWrite, err, "rolling segment").WithTableSpace(w.TableSpace)
		}
	}

	segment := w.currSegment
	prevSize := segment.currentSize()
	_, err = segment.Append(newRecord(lsn, data).Encode())
	if err == nil {
		err = segment.Sync()
	}
	if err != nil {
		if truncErr := segment.Truncate(prevSize); truncErr != nil {
			logging.WithTableSpace(w.TableSpace).Error("cannot undo failed append", "lsn", lsn, "error", truncErr)
		}
		return 0, dberror.Wrap(dberror.ErrCommitLogWrite, err, "append").
			WithTableSpace(w.TableSpace).
			WithRecord(fmt.Sprintf("lsn=%d", lsn))
	}

	w.currentLSN = lsn
	segment.LastLSN = lsn
	entry.LSN = lsn
	return lsn, nil
}

// ReplayFrom yields the entries with LSN >= startLSN in LSN order.
// The sequence reads the files on every iteration, so it can be ranged over again.
func (w *WALManager) ReplayFrom(startLSN uint64) iter.Seq2[*types.LogEntry, error] {
	return func(yield func(*types.LogEntry, error) bool) {
		type segmentView struct {
			path    string
			size    int64
			lastLSN uint64
		}

		w.mu.RLock()
		views := make([]segmentView, 0, len(w.segments))
		for _, s := range w.segments {
			views = append(views, segmentView{path: s.FilePath, size: s.currentSize(), lastLSN: s.LastLSN})
		}
		w.mu.RUnlock()

		for _, view := range views {
			if view.lastLSN == 0 || view.lastLSN < startLSN {
				continue
			}
			if !w.replaySegment(view.path, view.size, startLSN, yield) {
				return
			}
		}
	}
}

func (w *WALManager) replaySegment(path string, size int64, startLSN uint64, yield func(*types.LogEntry, error) bool) bool {
	file, err := os.Open(path)
	if err != nil {
		return yield(nil, dberror.Wrap(dberror.ErrCorruptedLogFile, err, "opening segment").WithTableSpace(w.TableSpace))
	}
	defer file.Close()

	stopped := false
	_, err = readRecords(io.LimitReader(file, size), func(rec *WALRecord, _ int64) error {
		if rec.LSN < startLSN {
			return nil
		}
		entry, err := types.DecodeLogEntry(rec.LSN, rec.Data)
		if err != nil {
			return err
		}
		if !yield(entry, nil) {
			stopped = true
			return errStopReplay
		}
		return nil
	})
	if stopped {
		return false
	}
	if err != nil {
		if dberror.CodeOf(err) == nil {
			err = dberror.Wrap(dberror.ErrCorruptedLogFile, err, "replaying segment").
				WithTableSpace(w.TableSpace).
				WithRecord(filepath.Base(path))
		}
		yield(nil, err)
		return false
	}
	return true
}

var errStopReplay = errors.New("replay stopped")

// Roll seals the current segment and starts a new one at the next LSN
func (w *WALManager) Roll() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		return dberror.New(dberror.ErrCommitLogWrite, "log is closed").WithTableSpace(w.TableSpace)
	}
	return w.rollLocked()
}

func (w *WALManager) rollLocked() error {
	if w.currSegment.LastLSN == 0 {
		return nil
	}
	if err := w.currSegment.Close(); err != nil {
		return err
	}
	return w.createNewSegment(w.currentLSN + 1)
}

// AdvanceTo makes the next LSN at least lsn+1.
// Used after loading a checkpoint newer than anything left in the log.
func (w *WALManager) AdvanceTo(lsn uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentLSN >= lsn {
		return nil
	}
	logging.WithTableSpace(w.TableSpace).Warn("log is behind the checkpoint, skipping ahead",
		"last_lsn", w.currentLSN, "checkpoint_lsn", lsn)

	if w.currSegment.LastLSN == 0 {
		if err := w.currSegment.Remove(); err != nil {
			return dberror.Wrap(dberror.ErrCommitLogWrite, err, "removing empty segment").WithTableSpace(w.TableSpace)
		}
		w.segments = w.segments[:len(w.segments)-1]
	} else if err := w.currSegment.Close(); err != nil {
		return dberror.Wrap(dberror.ErrCommitLogWrite, err, "sealing segment").WithTableSpace(w.TableSpace)
	}
	w.currentLSN = lsn
	if err := w.createNewSegment(lsn + 1); err != nil {
		return dberror.Wrap(dberror.ErrCommitLogWrite, err, "creating segment").WithTableSpace(w.TableSpace)
	}
	return nil
}

// TruncateBefore deletes sealed segments whose entries are all below lsn.
// Callers must only pass an LSN covered by a durable checkpoint.
func (w *WALManager) TruncateBefore(lsn uint64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.segments[:0:0]
	removed := 0
	for _, s := range w.segments {
		if s == w.currSegment || s.LastLSN >= lsn {
			kept = append(kept, s)
			continue
		}
		if err := s.Remove(); err != nil {
			w.segments = append(kept, w.segments[len(kept)+removed:]...)
			return removed, dberror.Wrap(dberror.ErrCommitLogWrite, err, "removing segment %s", s.FilePath).WithTableSpace(w.TableSpace)
		}
		removed++
	}
	w.segments = kept
	if removed > 0 {
		logging.WithTableSpace(w.TableSpace).Debug("log truncated", "before_lsn", lsn, "segments_removed", removed)
	}
	return removed, nil
}

func (w *WALManager) LastLSN() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentLSN
}

// Size is the number of bytes held by all segments
func (w *WALManager) Size() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var total int64
	for _, s := range w.segments {
		total += s.currentSize()
	}
	return total
}

func (w *WALManager) SegmentCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.segments)
}

func (w *WALManager) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed
	for _, s := range w.segments {
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ReadSegmentFile yields the raw records of a segment file, for offline inspection
func ReadSegmentFile(path string) iter.Seq2[*WALRecord, error] {
	return func(yield func(*WALRecord, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			yield(nil, err)
			return
		}
		defer file.Close()

		_, err = readRecords(file, func(rec *WALRecord, _ int64) error {
			if !yield(rec, nil) {
				return errStopReplay
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopReplay) {
			yield(nil, err)
		}
	}
}

// SegmentFiles lists the segment files of a log directory in LSN order
func SegmentFiles(directory string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(directory, "wal_*.log"))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(files, func(a, b string) int {
		x, _ := parseSegmentFileName(a)
		y, _ := parseSegmentFileName(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})
	return files, nil
}

// NewEntry stamps an entry with the table space and the current time
func NewEntry(tableSpace string, op types.OperationType, table string) *types.LogEntry {
	return &types.LogEntry{
		TableSpace: tableSpace,
		Timestamp:  time.Now().UnixMilli(),
		Type:       op,
		Table:      table,
	}
}
