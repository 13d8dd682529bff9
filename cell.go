package shardstore

import "math"

// CellKind tags the three value variants a Cell may hold. The tag never
// changes after construction.
type CellKind uint8

const (
	// KindUnused marks an empty bucket slot; never a real Cell's kind.
	KindUnused CellKind = 0
	KindString CellKind = 1
	KindBuffer CellKind = 2
	KindNumber CellKind = 3
)

// Cell is a tagged value as stored in a shard's sub-table. String and
// Buffer payloads are raw bytes; for a Cell read back out of the mapped
// heap, those bytes alias the mapping and are valid only while the lock
// under which they were obtained is held (see View in store.go). For a
// Cell under construction by the caller (NewStringCell etc.), raw is an
// ordinary owned slice that Put copies into the heap's slab.
type Cell struct {
	kind CellKind
	raw  []byte
	num  float64
}

func NewStringCell(s string) Cell {
	return Cell{kind: KindString, raw: []byte(s)}
}

func NewBufferCell(b []byte) Cell {
	return Cell{kind: KindBuffer, raw: b}
}

func NewNumberCell(f float64) Cell {
	return Cell{kind: KindNumber, num: f}
}

func (c Cell) Kind() CellKind { return c.kind }

// ValueLength predicts the storage cost of c, used by the growth heuristic
// in Store.Put.
func (c Cell) ValueLength() int {
	switch c.kind {
	case KindNumber:
		return 8
	default:
		return len(c.raw)
	}
}

func (c Cell) AsString() (string, error) {
	if c.kind != KindString {
		return "", ErrWrongType
	}
	return string(c.raw), nil
}

func (c Cell) AsBytes() ([]byte, error) {
	if c.kind != KindBuffer {
		return nil, ErrWrongType
	}
	return c.raw, nil
}

func (c Cell) AsFloat64() (float64, error) {
	if c.kind != KindNumber {
		return 0, ErrWrongType
	}
	return c.num, nil
}

// encodedPayload returns the bytes that belong on disk for c: the UTF-8 or
// opaque bytes for String/Buffer, the IEEE-754 little-endian encoding for
// Number.
func (c Cell) encodedPayload() []byte {
	if c.kind == KindNumber {
		buf := make([]byte, 8)
		encodeUint64(buf, math.Float64bits(c.num))
		return buf
	}
	return c.raw
}

// decodeCell reconstructs a Cell from a bucket's kind tag and the raw bytes
// read back from the slab. The returned Cell's raw/num fields alias buf for
// String/Buffer; callers must not retain buf past the lock that produced it.
func decodeCell(kind CellKind, buf []byte) (Cell, error) {
	switch kind {
	case KindString:
		return Cell{kind: KindString, raw: buf}, nil
	case KindBuffer:
		return Cell{kind: KindBuffer, raw: buf}, nil
	case KindNumber:
		if len(buf) != 8 {
			return Cell{}, ErrCorrupt
		}
		return Cell{kind: KindNumber, num: math.Float64frombits(decodeUint64(buf))}, nil
	default:
		return Cell{}, ErrCorrupt
	}
}
