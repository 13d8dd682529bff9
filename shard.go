package shardstore

import (
	"bytes"
	"fmt"
)

// Per-shard header fields, read/written directly in the mapped segment at
// shardHeaderOffset(i). This generalizes the teacher's own flat
// Capacity/Count pair (gomap's types.go) to one triple per shard, plus a
// tombstone count the teacher's flat table never needed because it never
// supported delete.
func shardCapacity(data []byte, i int) uint64 {
	off := shardHeaderOffset(i)
	return decodeUint64(data[off : off+8])
}

func setShardCapacity(data []byte, i int, v uint64) {
	off := shardHeaderOffset(i)
	encodeUint64(data[off:off+8], v)
}

func shardEntryCount(data []byte, i int) uint64 {
	off := shardHeaderOffset(i) + 8
	return decodeUint64(data[off : off+8])
}

func setShardEntryCount(data []byte, i int, v uint64) {
	off := shardHeaderOffset(i) + 8
	encodeUint64(data[off:off+8], v)
}

func shardTableOffset(data []byte, i int) uint64 {
	off := shardHeaderOffset(i) + 16
	return decodeUint64(data[off : off+8])
}

func setShardTableOffset(data []byte, i int, v uint64) {
	off := shardHeaderOffset(i) + 16
	encodeUint64(data[off:off+8], v)
}

func shardTombstones(data []byte, i int) uint64 {
	off := shardHeaderOffset(i) + 24
	return decodeUint64(data[off : off+8])
}

func setShardTombstones(data []byte, i int, v uint64) {
	off := shardHeaderOffset(i) + 24
	encodeUint64(data[off:off+8], v)
}

// bucketSlot reads the entry at slot `slot` of the table starting at
// tableOffset.
func bucketSlot(data []byte, tableOffset uint64, slot uint64) (hash uint64, kind CellKind, slabOff uint64, slabLen uint64) {
	base := int64(tableOffset) + int64(slot)*bucketEntrySize
	hash = decodeUint64(data[base : base+8])
	kind = CellKind(decodeUint64(data[base+8 : base+16]))
	slabOff = decodeUint64(data[base+16 : base+24])
	slabLen = decodeUint64(data[base+24 : base+32])
	return
}

func setBucketSlot(data []byte, tableOffset uint64, slot uint64, hash uint64, kind CellKind, slabOff, slabLen uint64) {
	base := int64(tableOffset) + int64(slot)*bucketEntrySize
	encodeUint64(data[base:base+8], hash)
	encodeUint64(data[base+8:base+16], uint64(kind))
	encodeUint64(data[base+16:base+24], slabOff)
	encodeUint64(data[base+24:base+32], slabLen)
}

const emptySlot = 0

// findSlotForInsert scans shard capacity-bounded open addressing starting
// at h, generalizing the teacher's own hashindex.go getKeyOffsetToAdd
// probe loop to support tombstoned slots (deletion) and multi-shard
// tables. Every hash match is verified against the full key bytes, exactly
// as the teacher's own getKeyOffsetToAdd does via bytes.Equal, so two
// different keys that happen to share a 64-bit hash never collide
// silently — a hash match that fails the key comparison is treated as a
// different key and probing continues.
func findSlotForInsert(data []byte, tableOffset, capacity uint64, h uint64, key []byte) (slot uint64, overwriting bool, full bool) {
	var firstTombstone uint64
	haveTombstone := false
	for probe := uint64(0); probe < capacity; probe++ {
		s := (h + probe) % capacity
		sh, _, slabOff, _ := bucketSlot(data, tableOffset, s)
		switch sh {
		case emptySlot:
			if haveTombstone {
				return firstTombstone, false, false
			}
			return s, false, false
		case emptyTombstoneSentinel:
			if !haveTombstone {
				firstTombstone = s
				haveTombstone = true
			}
		default:
			if sh == h && bytes.Equal(readRecordKey(data, slabOff), key) {
				return s, true, false
			}
		}
	}
	if haveTombstone {
		return firstTombstone, false, false
	}
	return 0, false, true
}

func findSlotForLookup(data []byte, tableOffset, capacity uint64, h uint64, key []byte) (slabOff uint64, kind CellKind, slabLen uint64, found bool) {
	for probe := uint64(0); probe < capacity; probe++ {
		s := (h + probe) % capacity
		sh, k, off, ln := bucketSlot(data, tableOffset, s)
		if sh == emptySlot {
			return 0, 0, 0, false
		}
		if sh == h && bytes.Equal(readRecordKey(data, off), key) {
			return off, k, ln, true
		}
	}
	return 0, 0, 0, false
}

func findSlotForDelete(data []byte, tableOffset, capacity uint64, h uint64, key []byte) (slot uint64, found bool) {
	for probe := uint64(0); probe < capacity; probe++ {
		s := (h + probe) % capacity
		sh, _, off, _ := bucketSlot(data, tableOffset, s)
		if sh == emptySlot {
			return 0, false
		}
		if sh == h && bytes.Equal(readRecordKey(data, off), key) {
			return s, true
		}
	}
	return 0, false
}

// placeForRehash finds the first empty slot for an already-unique entry
// being relocated during a shard resize; no key comparison is needed
// because the source table never holds duplicate keys.
func placeForRehash(data []byte, tableOffset, capacity uint64, h uint64) uint64 {
	for probe := uint64(0); probe < capacity; probe++ {
		s := (h + probe) % capacity
		sh, _, _, _ := bucketSlot(data, tableOffset, s)
		if sh == emptySlot {
			return s
		}
	}
	panic("shardstore: resize target table has no free slot")
}

// shardLoadFactorExceeded mirrors the teacher's own resize.go threshold
// (Count*100 > Capacity*65, i.e. ~65% load factor), applied per shard and
// counting tombstones against the load factor too so a delete-heavy shard
// still resizes (and thereby reclaims its tombstones) instead of filling
// up with dead slots.
func shardLoadFactorExceeded(count, capacity uint64) bool {
	return count*100 > capacity*65
}

func (st *Store) shardCheckResize(shardIdx int) error {
	data := st.seg.bytes()
	count := shardEntryCount(data, shardIdx) + shardTombstones(data, shardIdx)
	capacity := shardCapacity(data, shardIdx)
	if !shardLoadFactorExceeded(count, capacity) {
		return nil
	}
	return st.resizeShard(shardIdx)
}

// resizeShard doubles shard shardIdx's bucket table, bump-allocating a new
// region (growing the file if necessary) and rehashing every live entry
// into it, exactly generalizing the teacher's whole-table resize.go
// (initN/addKeyResize/replaceHashmap) to one shard of the sharded index.
// The old table region is abandoned in place; it is only reclaimed by a
// full rewrite, which this port does not implement (see DESIGN.md).
func (st *Store) resizeShard(shardIdx int) error {
	data := st.seg.bytes()
	oldCapacity := shardCapacity(data, shardIdx)
	oldTableOffset := shardTableOffset(data, shardIdx)
	newCapacity := oldCapacity * 2

	newTableOffset, err := st.allocate(newCapacity * bucketEntrySize)
	if err != nil {
		return err
	}

	data = st.seg.bytes() // allocate() may have grown and remapped
	base := int64(newTableOffset)
	for i := int64(0); i < int64(newCapacity)*bucketEntrySize; i++ {
		data[base+i] = 0
	}

	var liveCount uint64
	for slot := uint64(0); slot < oldCapacity; slot++ {
		h, kind, slabOff, slabLen := bucketSlot(data, oldTableOffset, slot)
		if h == emptySlot || h == emptyTombstoneSentinel {
			continue
		}
		newSlot := placeForRehash(data, newTableOffset, newCapacity, h)
		setBucketSlot(data, newTableOffset, newSlot, h, kind, slabOff, slabLen)
		liveCount++
	}
	if liveCount != shardEntryCount(data, shardIdx) {
		return fmt.Errorf("shardstore: shard %d resize lost entries", shardIdx)
	}

	setShardTableOffset(data, shardIdx, newTableOffset)
	setShardCapacity(data, shardIdx, newCapacity)
	setShardTombstones(data, shardIdx, 0)
	return nil
}
