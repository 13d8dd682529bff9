package shardstore

import (
	"encoding/binary"

	"github.com/segmentio/fasthash/fnv1"
)

// shardCount is the fixed compile-time fanout of the sharded hash index
// (spec reference value).
const shardCount = 64

// hashKey is a stable hash over the raw key bytes, used both to pick a
// key's shard and as the bucket tag inside that shard's table. Hash 0 is
// reserved to mean "empty slot" and math.MaxUint64 is reserved to mean
// "tombstone" (a deleted slot); both are nudged away from by one, exactly
// as the teacher's own zero/max guard does for its flat table.
func hashKey(key []byte) uint64 {
	h := fnv1.HashBytes64(key)
	if h == 0 {
		h++
	}
	if h == emptyTombstoneSentinel {
		h--
	}
	return h
}

const emptyTombstoneSentinel = ^uint64(0)

func shardOf(key []byte) int {
	return int(hashKey(key) % uint64(shardCount))
}

func encodeUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

func decodeUint64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

func decodeUint32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}
