package shardstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellStringRoundTrip(t *testing.T) {
	c := NewStringCell("hello")
	s, err := c.AsString()
	assert.NoError(t, err)
	assert.Equal(t, "hello", s)
	assert.Equal(t, KindString, c.Kind())
}

func TestCellBufferRoundTrip(t *testing.T) {
	c := NewBufferCell([]byte{1, 2, 3, 4})
	b, err := c.AsBytes()
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestCellNumberRoundTrip(t *testing.T) {
	c := NewNumberCell(3.14159)
	f, err := c.AsFloat64()
	assert.NoError(t, err)
	assert.Equal(t, 3.14159, f)

	payload := c.encodedPayload()
	assert.Equal(t, 8, len(payload))

	decoded, err := decodeCell(KindNumber, payload)
	assert.NoError(t, err)
	df, err := decoded.AsFloat64()
	assert.NoError(t, err)
	assert.Equal(t, 3.14159, df)
}

func TestCellWrongTypeAccess(t *testing.T) {
	c := NewStringCell("x")
	_, err := c.AsBytes()
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = c.AsFloat64()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDecodeCellCorruptNumber(t *testing.T) {
	_, err := decodeCell(KindNumber, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeCellUnknownKind(t *testing.T) {
	_, err := decodeCell(KindUnused, nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}
