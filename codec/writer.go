package codec

import (
	"encoding/binary"
	"io"
	"math"

	"PastureDB/dberror"
)

/*
This file contains the write half of the binary codec
Every persisted structure (catalog objects, log entries, checkpoints) is written with it

	UTF    : uint16 big-endian byte length | UTF-8 bytes
	VInt   : little-endian base-128, high bit = continuation (1..5 bytes)
	VLong  : same layout, up to 10 bytes
	Bytes  : VInt length | raw block
	Long   : 8 bytes big-endian
	Flags  : VInt, must be zero on write, ignored on read
*/

const MaxUTFLength = math.MaxUint16

type Writer struct {
	w       io.Writer
	scratch [binary.MaxVarintLen64]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return dberror.Wrap(dberror.ErrStorageEncoding, err, "write failed")
	}
	return nil
}

func (w *Writer) WriteUTF(s string) error {
	if len(s) > MaxUTFLength {
		return dberror.New(dberror.ErrStorageEncoding, "string of %d bytes exceeds %d", len(s), MaxUTFLength)
	}
	binary.BigEndian.PutUint16(w.scratch[:2], uint16(len(s)))
	if err := w.write(w.scratch[:2]); err != nil {
		return err
	}
	return w.write([]byte(s))
}

func (w *Writer) WriteVInt(v int) error {
	if v < 0 || v > math.MaxInt32 {
		return dberror.New(dberror.ErrStorageEncoding, "vint %d out of range", v)
	}
	n := binary.PutUvarint(w.scratch[:], uint64(v))
	return w.write(w.scratch[:n])
}

func (w *Writer) WriteVLong(v int64) error {
	if v < 0 {
		return dberror.New(dberror.ErrStorageEncoding, "vlong %d is negative", v)
	}
	n := binary.PutUvarint(w.scratch[:], uint64(v))
	return w.write(w.scratch[:n])
}

func (w *Writer) WriteBytes(b []byte) error {
	if err := w.WriteVInt(len(b)); err != nil {
		return err
	}
	return w.write(b)
}

func (w *Writer) WriteByte(b byte) error {
	w.scratch[0] = b
	return w.write(w.scratch[:1])
}

func (w *Writer) WriteLong(v int64) error {
	binary.BigEndian.PutUint64(w.scratch[:8], uint64(v))
	return w.write(w.scratch[:8])
}

func (w *Writer) WriteDouble(f float64) error {
	return w.WriteLong(int64(math.Float64bits(f)))
}

// WriteFlags writes the reserved flags slot
func (w *Writer) WriteFlags() error {
	return w.WriteVInt(0)
}
