package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"unicode/utf8"

	"PastureDB/dberror"
)

type byteReader interface {
	io.Reader
	io.ByteScanner
}

// MaxBlockLength bounds a single length-prefixed block, a larger prefix means corruption
const MaxBlockLength = 256 << 20

type Reader struct {
	r       byteReader
	scratch [8]byte
}

func NewReader(r io.Reader) *Reader {
	if br, ok := r.(byteReader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// NewBytesReader reads from an in-memory record
func NewBytesReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

func malformed(err error, what string) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return dberror.Wrap(dberror.ErrMalformedStream, err, "reading %s", what)
}

func (r *Reader) readFull(p []byte, what string) error {
	if _, err := io.ReadFull(r.r, p); err != nil {
		return malformed(err, what)
	}
	return nil
}

func (r *Reader) ReadUTF() (string, error) {
	if err := r.readFull(r.scratch[:2], "utf length"); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(r.scratch[:2])
	buf := make([]byte, n)
	if err := r.readFull(buf, "utf data"); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", dberror.New(dberror.ErrMalformedStream, "invalid utf-8 sequence")
	}
	return string(buf), nil
}

func (r *Reader) ReadVInt() (int, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, malformed(err, "vint")
	}
	if v > math.MaxInt32 {
		return 0, dberror.New(dberror.ErrMalformedStream, "vint %d overflows int32", v)
	}
	return int(v), nil
}

func (r *Reader) ReadVLong() (int64, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, malformed(err, "vlong")
	}
	if v > math.MaxInt64 {
		return 0, dberror.New(dberror.ErrMalformedStream, "vlong %d overflows int64", v)
	}
	return int64(v), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	if n > MaxBlockLength {
		return nil, dberror.New(dberror.ErrMalformedStream, "block length %d exceeds %d", n, MaxBlockLength)
	}
	buf := make([]byte, n)
	if err := r.readFull(buf, "byte block"); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, malformed(err, "byte")
	}
	return b, nil
}

func (r *Reader) ReadLong() (int64, error) {
	if err := r.readFull(r.scratch[:8], "long"); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.scratch[:8])), nil
}

func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

// SkipFlags reads the reserved flags slot and ignores its value
func (r *Reader) SkipFlags() error {
	_, err := r.ReadVInt()
	return err
}

// AtEOF reports whether the stream has no more bytes
func (r *Reader) AtEOF() bool {
	if _, err := r.r.ReadByte(); err != nil {
		return true
	}
	_ = r.r.UnreadByte()
	return false
}
