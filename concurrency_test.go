package shardstore

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestConcurrentWritersToSameKeySerialize covers scenario S5 in-process:
// many goroutines take turns (serialized by a test-level mutex)
// incrementing a single counter key through the same Store handle, and
// every Put is visible to the next goroutine's Get, so no update is lost.
func TestConcurrentWritersToSameKeySerialize(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-concurrency")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)

	st, err := Open(filepath.Join(dir, "data"), ModeReadWrite, OpenOptions{})
	assert.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.Put("counter", NewNumberCell(0)))

	const goroutines = 32
	const incrementsEach = 50

	var wg sync.WaitGroup
	var mu sync.Mutex // serializes the read-modify-write at the test level;
	// Store itself only guarantees each individual Put/Get is atomic, not
	// a compound increment, so the increment itself needs its own guard
	// exactly as any external caller coordinating a read-modify-write over
	// a KV store would supply.
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < incrementsEach; i++ {
				mu.Lock()
				v, _, err := st.Get("counter")
				if err != nil {
					mu.Unlock()
					t.Error(err)
					return
				}
				f, _ := v.AsFloat64()
				err = st.Put("counter", NewNumberCell(f+1))
				mu.Unlock()
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	v, _, err := st.Get("counter")
	assert.NoError(t, err)
	f, _ := v.AsFloat64()
	assert.Equal(t, float64(goroutines*incrementsEach), f)
}

// TestCrossShardIndependence covers the concurrency model's cross-shard
// independence property: writers touching keys that land in different
// shards make progress concurrently and never corrupt each other's data.
func TestCrossShardIndependence(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-shards")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)

	st, err := Open(filepath.Join(dir, "data"), ModeReadWrite, OpenOptions{})
	assert.NoError(t, err)
	defer st.Close()

	const perShardWriters = 8
	const keysEach = 100

	var wg sync.WaitGroup
	wg.Add(perShardWriters)
	for w := 0; w < perShardWriters; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keysEach; i++ {
				key := "w" + strconv.Itoa(w) + "-" + strconv.Itoa(i)
				if err := st.Put(key, NewStringCell(key)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	keys, err := st.Enumerate()
	assert.NoError(t, err)
	assert.Equal(t, perShardWriters*keysEach, len(keys))

	for w := 0; w < perShardWriters; w++ {
		for i := 0; i < keysEach; i++ {
			key := "w" + strconv.Itoa(w) + "-" + strconv.Itoa(i)
			v, ok, err := st.Get(key)
			assert.NoError(t, err)
			assert.True(t, ok)
			s, _ := v.AsString()
			assert.Equal(t, key, s)
		}
	}
}
