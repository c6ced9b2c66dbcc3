package codec

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"PastureDB/dberror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteUTF("tablespace"))
	require.NoError(t, w.WriteUTF("héllo wörld"))
	require.NoError(t, w.WriteUTF(""))
	require.NoError(t, w.WriteVInt(0))
	require.NoError(t, w.WriteVInt(127))
	require.NoError(t, w.WriteVInt(128))
	require.NoError(t, w.WriteVInt(math.MaxInt32))
	require.NoError(t, w.WriteVLong(1<<40))
	require.NoError(t, w.WriteBytes([]byte{1, 2, 3}))
	require.NoError(t, w.WriteBytes(nil))
	require.NoError(t, w.WriteByte(7))
	require.NoError(t, w.WriteLong(-42))
	require.NoError(t, w.WriteDouble(3.25))
	require.NoError(t, w.WriteFlags())

	r := NewBytesReader(buf.Bytes())

	s, err := r.ReadUTF()
	require.NoError(t, err)
	assert.Equal(t, "tablespace", s)
	s, err = r.ReadUTF()
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", s)
	s, err = r.ReadUTF()
	require.NoError(t, err)
	assert.Equal(t, "", s)

	for _, expected := range []int{0, 127, 128, math.MaxInt32} {
		v, err := r.ReadVInt()
		require.NoError(t, err)
		assert.Equal(t, expected, v)
	}

	l, err := r.ReadVLong()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), l)

	b, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
	b, err = r.ReadBytes()
	require.NoError(t, err)
	assert.Empty(t, b)

	c, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(7), c)

	l, err = r.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), l)

	f, err := r.ReadDouble()
	require.NoError(t, err)
	assert.Equal(t, 3.25, f)

	require.NoError(t, r.SkipFlags())
	assert.True(t, r.AtEOF())
}

func TestVIntLayoutIsLittleEndianBase128(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteVInt(300))
	// 300 = 0b10_0101100 -> low 7 bits first with continuation bit
	assert.Equal(t, []byte{0xAC, 0x02}, buf.Bytes())
}

func TestReadVIntTruncated(t *testing.T) {
	r := NewBytesReader([]byte{0x80, 0x80})
	_, err := r.ReadVInt()
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)

	_, err = NewBytesReader(nil).ReadVInt()
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
}

func TestReadVIntOverflow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteVLong(math.MaxInt32+1))
	_, err := NewBytesReader(buf.Bytes()).ReadVInt()
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
}

func TestReadUTFTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteUTF("truncate me"))
	data := buf.Bytes()[:5]
	_, err := NewBytesReader(data).ReadUTF()
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
}

func TestReadUTFInvalidSequence(t *testing.T) {
	_, err := NewBytesReader([]byte{0, 2, 0xff, 0xfe}).ReadUTF()
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
}

func TestWriteRejectsOutOfRange(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	assert.ErrorIs(t, w.WriteVInt(-1), dberror.ErrStorageEncoding)
	assert.ErrorIs(t, w.WriteVLong(-1), dberror.ErrStorageEncoding)
	assert.ErrorIs(t, w.WriteUTF(strings.Repeat("x", MaxUTFLength+1)), dberror.ErrStorageEncoding)
}

func TestFlagsAreIgnoredOnRead(t *testing.T) {
	// a future writer may set bits in the flags slot
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteVInt(5))
	require.NoError(t, w.WriteUTF("after"))

	r := NewBytesReader(buf.Bytes())
	require.NoError(t, r.SkipFlags())
	s, err := r.ReadUTF()
	require.NoError(t, err)
	assert.Equal(t, "after", s)
}
