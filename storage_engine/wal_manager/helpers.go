package wal_manager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path/filepath"
	"strconv"
	"strings"
)

func (r *WALRecord) Encode() []byte {
	totalSize := RecordHeaderSize + len(r.Data)
	buf := make([]byte, totalSize)

	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.CRC)
	copy(buf[16:], r.Data)

	return buf
}

func (r *WALRecord) ValidateCRC() bool {
	return calculateCRC(r.LSN, r.Data) == r.CRC
}

func newRecord(lsn uint64, data []byte) *WALRecord {
	return &WALRecord{LSN: lsn, Data: data, CRC: calculateCRC(lsn, data)}
}

// decodeHeader returns lsn, data length and crc of a record header
func decodeHeader(header []byte) (uint64, uint32, uint32) {
	return binary.BigEndian.Uint64(header[0:8]),
		binary.BigEndian.Uint32(header[8:12]),
		binary.BigEndian.Uint32(header[12:16])
}

// calculateCRC computes CRC32 checksum over LSN and data
func calculateCRC(lsn uint64, data []byte) uint32 {
	hasher := crc32.NewIEEE()

	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)
	hasher.Write(lsnBytes[:])
	hasher.Write(data)

	return hasher.Sum32()
}

func segmentFileName(baseLSN uint64) string {
	return fmt.Sprintf("wal_%016x.log", baseLSN)
}

// parseSegmentFileName extracts the base LSN from wal_<hex>.log
func parseSegmentFileName(path string) (uint64, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "wal_") || !strings.HasSuffix(name, ".log") {
		return 0, false
	}
	hexPart := strings.TrimSuffix(strings.TrimPrefix(name, "wal_"), ".log")
	baseLSN, err := strconv.ParseUint(hexPart, 16, 64)
	if err != nil {
		return 0, false
	}
	return baseLSN, true
}
