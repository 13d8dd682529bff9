package shardstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutexRegionLockUnlock(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-mutex")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	dataPath := filepath.Join(dir, "data")

	r, err := openMutexRegion(dataPath)
	assert.NoError(t, err)
	defer r.close()

	m := r.mutex(lockOffsetGlobal())
	assert.NoError(t, m.Lock())
	assert.NoError(t, m.Unlock())

	assert.NoError(t, m.RLock())
	assert.NoError(t, m.RUnlock())
}

// TestWriteOnlyExclusivity covers scenario S4: a second handle attempting
// write-only access while the first still holds it times out with
// ErrBusyWriteOnly within roughly the spec's 1-second bound.
func TestWriteOnlyExclusivity(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-wo")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data")

	first, err := Open(path, ModeWriteOnly, OpenOptions{})
	assert.NoError(t, err)
	defer first.Close()

	start := time.Now()
	_, err = Open(path, ModeWriteOnly, OpenOptions{})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrBusyWriteOnly)
	assert.Less(t, elapsed, 3*time.Second)
}

// TestFreshRegionGetsMagicStamped covers the bootstrap half of scenario
// S6: a brand new region file is stamped with the header magic so a later
// opener can tell it apart from a zero-filled, never-initialized one.
func TestFreshRegionGetsMagicStamped(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-fresh")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	dataPath := filepath.Join(dir, "data")

	r, err := openMutexRegion(dataPath)
	assert.NoError(t, err)
	defer r.close()

	assert.Equal(t, lockMagic, decodeUint32(r.hdr[0:4]))
}

// TestReopenPreexistingZeroedRegion covers scenario S6's other half: a
// region file left behind all-zero (as if a process died before ever
// stamping it) still opens cleanly rather than erroring out as corrupt:
// the trial lock finds nothing held, and the missing magic word is
// stamped in place.
func TestReopenPreexistingZeroedRegion(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-abandoned")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	dataPath := filepath.Join(dir, "data")

	regionPath, err := lockRegionPath(dataPath)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(regionPath, make([]byte, lockRegionFileSize()), 0644))

	r, err := openMutexRegion(dataPath)
	assert.NoError(t, err)
	defer r.close()

	m := r.mutex(lockOffsetGlobal())
	assert.NoError(t, m.Lock())
	assert.NoError(t, m.Unlock())
}

func TestRemoveSharedMutex(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-remove")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	dataPath := filepath.Join(dir, "data")

	r, err := openMutexRegion(dataPath)
	assert.NoError(t, err)
	assert.NoError(t, r.close())

	assert.NoError(t, RemoveSharedMutex(dataPath))

	regionPath, err := lockRegionPath(dataPath)
	assert.NoError(t, err)
	_, statErr := os.Stat(regionPath)
	assert.True(t, os.IsNotExist(statErr))

	// Removing an already-removed region is a no-op, not an error.
	assert.NoError(t, RemoveSharedMutex(dataPath))
}
