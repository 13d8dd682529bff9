package shardstore

import (
	"os"
	"sync"
	"time"
)

// Mode is the access mode a Store is opened with.
type Mode int

const (
	ModeReadWrite Mode = iota
	ModeReadOnly
	ModeWriteOnly
)

// OpenOptions tunes Open. InitialSizeKiB and InitialBucketCount only
// matter when path does not yet exist and Open creates the file;
// MaxSizeKiB bounds growth on every open. All fields are optional; zero values fall back to the teacher's original
// defaults (gomap's own DefaultSize/MaxSize/NumBuckets).
type OpenOptions struct {
	InitialSizeKiB     int64
	MaxSizeKiB         int64
	InitialBucketCount int

	// MapBaseAddr is accepted for parity with the reference's
	// mmap-object base-address hint but is a documented no-op: the Go
	// runtime, unlike Boost.Interprocess, gives no control over where a
	// mapping lands, and nothing in this port depends on a fixed
	// address (see DESIGN.md).
	MapBaseAddr uintptr
}

// Store is one open handle onto a mapped, sharded, single-file
// associative store. A Store is safe for concurrent use by multiple
// goroutines: the fcntl byte-range locks in mutexRegion arbitrate across
// processes (and across descriptors), but POSIX record locks never
// conflict with another lock request issued through the *same* open file
// description, so two goroutines sharing one Store's fd would otherwise
// run unserialized against the mapped heap. shardGoMu/globalGoMu are the
// in-process layer that closes that gap, the same role the teacher's own
// per-shard sync.RWMutex plays in gomap_distributed.go; cross-process
// concurrency is still arbitrated by the shared mutex region (mutex.go).
type Store struct {
	path    string
	mode    Mode
	seg     *segment
	mtx     *mutexRegion
	maxSize int64

	shardGoMu  [shardCount]sync.RWMutex
	globalGoMu sync.RWMutex

	closed bool
	// txn is non-nil while a WriteLock/BeginTxn transaction is open on
	// this handle; point operations issued through that same handle then
	// skip their own shard/global locking, since the transaction already
	// holds the global exclusive lock (both the fcntl one and globalGoMu).
	// This generalizes the reference's thread-local inWriteLock/
	// inGlobalLock booleans (see SPEC_FULL.md Design Notes) into an
	// explicit handle rather than ambient state.
	txn *Txn
}

func (st *Store) globalMutex() upgradableMutex { return st.mtx.mutex(lockOffsetGlobal()) }
func (st *Store) shardMutex(i int) upgradableMutex { return st.mtx.mutex(lockOffsetShard(i)) }
func (st *Store) woMutex() upgradableMutex { return st.mtx.mutex(lockOffsetWO()) }

// Open opens or creates the store at path. Opening with ModeWriteOnly
// fails with ErrBusyWriteOnly if any other handle (in this process or
// another) already holds the file open, exactly mirroring the reference's
// wo_mutex exclusivity.
func Open(path string, mode Mode, opts OpenOptions) (*Store, error) {
	initialSize := opts.InitialSizeKiB * 1024
	if initialSize <= 0 {
		initialSize = defaultFileSize
	}
	if initialSize < minFileSize {
		initialSize = minFileSize
	}
	maxSize := opts.MaxSizeKiB * 1024
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if maxSize < initialSize {
		maxSize = initialSize
	}
	bucketTotal := opts.InitialBucketCount
	if bucketTotal <= 0 {
		bucketTotal = defaultBuckets
	}
	bucketsPerShard := uint64(bucketTotal) / shardCount
	if bucketsPerShard < 8 {
		bucketsPerShard = 8
	}

	mtx, err := openMutexRegion(path)
	if err != nil {
		return nil, err
	}

	if err := mtx.mutex(lockOffsetGlobal()).RLock(); err != nil {
		mtx.close()
		return nil, wrap(err)
	}
	releaseGlobal := func() { mtx.mutex(lockOffsetGlobal()).RUnlock() }

	fi, statErr := os.Stat(path)
	missing := os.IsNotExist(statErr)
	if statErr != nil && !missing {
		releaseGlobal()
		mtx.close()
		return nil, wrap(statErr)
	}
	if missing && mode == ModeReadOnly {
		releaseGlobal()
		mtx.close()
		return nil, ErrNotFound
	}
	if !missing {
		if fi.IsDir() {
			releaseGlobal()
			mtx.close()
			return nil, ErrNotRegularFile
		}
		if fi.Size() == 0 {
			releaseGlobal()
			mtx.close()
			return nil, ErrEmpty
		}
	}

	wo := mtx.mutex(lockOffsetWO())
	ok, err := wo.TryRLockTimed(time.Second)
	if err != nil {
		releaseGlobal()
		mtx.close()
		return nil, wrap(err)
	}
	if !ok {
		releaseGlobal()
		mtx.close()
		return nil, ErrBusyWriteOnly
	}

	if mode == ModeWriteOnly {
		upgraded, err := wo.UpgradeTimed(time.Second)
		if err != nil {
			wo.RUnlock()
			releaseGlobal()
			mtx.close()
			return nil, wrap(err)
		}
		if !upgraded {
			wo.RUnlock()
			releaseGlobal()
			mtx.close()
			return nil, ErrBusyWriteOnly
		}
	}

	var seg *segment
	var created bool
	if missing {
		seg, created, err = openOrCreateSegment(path, initialSize)
	} else {
		seg, err = openExistingSegment(path, mode == ModeReadOnly)
	}
	if err != nil {
		if mode != ModeWriteOnly {
			wo.RUnlock()
		}
		releaseGlobal()
		mtx.close()
		return nil, err
	}

	st := &Store{path: path, mode: mode, seg: seg, mtx: mtx, maxSize: maxSize}

	if created {
		err = st.initializeSegment(bucketsPerShard)
	} else {
		err = st.validateSegment(fi.Size())
	}
	if err == nil {
		err = seg.flush()
	}
	if err != nil {
		seg.close()
		if mode != ModeWriteOnly {
			wo.RUnlock()
		}
		releaseGlobal()
		mtx.close()
		return nil, err
	}

	releaseGlobal()
	return st, nil
}

func (st *Store) initializeSegment(bucketsPerShard uint64) error {
	data := st.seg.bytes()
	encodeUint32(data[offMagic:offMagic+4], heapMagic)
	encodeUint32(data[offVersion:offVersion+4], fileFormatVersion)
	writeSlabCursor(data, uint64(headerEnd()))

	for i := 0; i < shardCount; i++ {
		tableOffset, err := st.allocate(bucketsPerShard * bucketEntrySize)
		if err != nil {
			return err
		}
		data = st.seg.bytes()
		setShardCapacity(data, i, bucketsPerShard)
		setShardEntryCount(data, i, 0)
		setShardTableOffset(data, i, tableOffset)
		setShardTombstones(data, i, 0)
	}
	return nil
}

func (st *Store) validateSegment(statSize int64) error {
	data := st.seg.bytes()
	if int64(len(data)) != statSize {
		return ErrCorrupt
	}
	if len(data) < int(headerEnd()) {
		return ErrCorrupt
	}
	if decodeUint32(data[offMagic:offMagic+4]) != heapMagic {
		return ErrCorrupt
	}
	// Accepted versions are the current one and the legacy version 0.
	if v := decodeUint32(data[offVersion : offVersion+4]); v != fileFormatVersion && v != 0 {
		return ErrVersionMismatch
	}
	return nil
}

// allocate bump-allocates size bytes from the mapped heap, growing (and
// remapping) the backing file on demand, bounded by the store's max size.
// This generalizes the teacher's own doubleSlab growth policy (double on
// demand) to a single-file heap shared by shard tables and records.
//
// Growth truncates and remaps the file (segment.grow), invalidating every
// slice derived from the previous mapping; that is only safe when this
// handle is the sole writer, which only a write-only open guarantees (the
// wo mutex is held exclusively for the lifetime of the handle, see Open).
// A rw handle that exhausts its initial allocation fails instead of
// growing, exactly as the reference refuses to resize outside write-only
// mode (original_source/mmap-object.cc: grow() only proceeds "if
// (!writeonly)" is false) — operators sizing a rw store must pick
// InitialSizeKiB/MaxSizeKiB up front, or reopen write-only to grow it.
func (st *Store) allocate(size uint64) (uint64, error) {
	off, err := bumpAlloc(st.seg.bytes(), size)
	if err == nil {
		return off, nil
	}
	if err != errNeedsGrow {
		return 0, wrap(err)
	}
	if st.mode == ModeReadOnly {
		return 0, ErrReadOnly
	}
	if st.mode != ModeWriteOnly {
		return 0, ErrFileTooLarge
	}

	current := st.seg.size()
	grow := current * 2
	if need := current + int64(size)*2; grow < need {
		grow = need
	}
	if grow > st.maxSize {
		if current >= st.maxSize {
			return 0, ErrFileTooLarge
		}
		grow = st.maxSize
	}
	if err := st.seg.grow(grow); err != nil {
		return 0, err
	}

	off, err = bumpAlloc(st.seg.bytes(), size)
	if err != nil {
		if err == errNeedsGrow {
			return 0, ErrFileTooLarge
		}
		return 0, wrap(err)
	}
	return off, nil
}

// Close flushes and unmaps the store synchronously, and — for a
// write-only handle, the only mode permitted to resize the file at all —
// trims the file back down to the bump allocator's live cursor before
// releasing the wo lock, per the reference's own wo-close shrink_to_fit
// step. Closing twice returns ErrAlreadyClosed.
func (st *Store) Close() error {
	if st.closed {
		return ErrAlreadyClosed
	}
	st.closed = true

	var liveSize int64
	if st.mode == ModeWriteOnly {
		liveSize = int64(readSlabCursor(st.seg.bytes()))
	}

	err := st.seg.flush()
	if cerr := st.seg.close(); err == nil {
		err = cerr
	}
	if st.mode == ModeWriteOnly {
		if serr := shrinkToFit(st.path, liveSize); err == nil {
			err = serr
		}
		st.woMutex().Unlock()
	} else {
		st.woMutex().RUnlock()
	}
	if merr := st.mtx.close(); err == nil {
		err = merr
	}
	return err
}

// CloseAsync generalizes the teacher's own fire-and-forget
// "go h.closeFPs()" idiom (and the reference's Nan::AsyncWorker
// CloseWorker) into a goroutine that reports completion through a
// callback, so a caller that wants async close semantics doesn't block on
// flush+unmap.
func (st *Store) CloseAsync(onDone func(error)) {
	go func() {
		err := st.Close()
		if onDone != nil {
			onDone(err)
		}
	}()
}

func (st *Store) checkUsable() error {
	if st.closed {
		return ErrClosed
	}
	return nil
}

func (st *Store) withPointLocks(shardIdx int, exclusive bool, fn func() error) error {
	if st.txn != nil {
		return fn()
	}

	// In-process serialization first: two goroutines on this same Store
	// share one mutexRegion fd, so the fcntl locks below do not arbitrate
	// between them at all (OFD locks only conflict across descriptions).
	if exclusive {
		st.shardGoMu[shardIdx].Lock()
		defer st.shardGoMu[shardIdx].Unlock()
	} else {
		st.shardGoMu[shardIdx].RLock()
		defer st.shardGoMu[shardIdx].RUnlock()
	}
	st.globalGoMu.RLock()
	defer st.globalGoMu.RUnlock()

	sm := st.shardMutex(shardIdx)
	if exclusive {
		if err := sm.Lock(); err != nil {
			return wrap(err)
		}
		defer sm.Unlock()
	} else {
		if err := sm.RLock(); err != nil {
			return wrap(err)
		}
		defer sm.RUnlock()
	}
	if err := st.globalMutex().RLock(); err != nil {
		return wrap(err)
	}
	defer st.globalMutex().RUnlock()
	return fn()
}

// Put inserts or overwrites the value stored under key.
func (st *Store) Put(key string, value Cell) error {
	if err := st.checkUsable(); err != nil {
		return err
	}
	if st.mode == ModeReadOnly {
		return ErrReadOnly
	}
	switch value.Kind() {
	case KindString, KindBuffer, KindNumber:
	default:
		return ErrUnsupportedValue
	}

	keyBytes := []byte(key)
	h := hashKey(keyBytes)
	shardIdx := int(h % uint64(shardCount))

	return st.withPointLocks(shardIdx, true, func() error {
		if err := st.shardCheckResize(shardIdx); err != nil {
			return err
		}

		payload := value.encodedPayload()
		off, _, err := st.writeRecord(keyBytes, payload)
		if err != nil {
			return err
		}

		data := st.seg.bytes()
		tableOffset := shardTableOffset(data, shardIdx)
		capacity := shardCapacity(data, shardIdx)
		slot, overwriting, full := findSlotForInsert(data, tableOffset, capacity, h, keyBytes)
		if full {
			// shardCheckResize should have prevented this; resize once
			// more defensively and retry the slot search.
			if err := st.resizeShard(shardIdx); err != nil {
				return err
			}
			data = st.seg.bytes()
			tableOffset = shardTableOffset(data, shardIdx)
			capacity = shardCapacity(data, shardIdx)
			slot, overwriting, full = findSlotForInsert(data, tableOffset, capacity, h, keyBytes)
			if full {
				return ErrFileTooLarge
			}
		}

		wasTombstone := false
		if !overwriting {
			existingHash, _, _, _ := bucketSlot(data, tableOffset, slot)
			wasTombstone = existingHash == emptyTombstoneSentinel
		}

		setBucketSlot(data, tableOffset, slot, h, value.Kind(), off, uint64(len(payload)))

		if overwriting {
			return nil
		}
		setShardEntryCount(data, shardIdx, shardEntryCount(data, shardIdx)+1)
		if wasTombstone {
			setShardTombstones(data, shardIdx, shardTombstones(data, shardIdx)-1)
		}
		return nil
	})
}

// View is a zero-copy read of a value decoded straight from the mapped
// heap: it aliases the mapping and is valid only while the lock under
// which it was read is held, the same "borrowed" guarantee the reference
// gives its Nan::ObjectWrap-backed values. Get and Iterate never hand a
// View to the caller; they return View.Clone() instead.
type View struct {
	cell Cell
}

func (v View) Kind() CellKind       { return v.cell.Kind() }
func (v View) AsString() (string, error) { return v.cell.AsString() }
func (v View) AsBytes() ([]byte, error)  { return v.cell.AsBytes() }
func (v View) AsFloat64() (float64, error) { return v.cell.AsFloat64() }

// Clone copies the view's bytes out of the mapping so it remains valid
// after the lock is released.
func (v View) Clone() Cell {
	switch v.cell.kind {
	case KindString, KindBuffer:
		owned := make([]byte, len(v.cell.raw))
		copy(owned, v.cell.raw)
		return Cell{kind: v.cell.kind, raw: owned}
	default:
		return v.cell
	}
}

// Get looks up key and returns a cloned Cell (safe to retain) plus
// whether it was found.
func (st *Store) Get(key string) (Cell, bool, error) {
	if err := st.checkUsable(); err != nil {
		return Cell{}, false, err
	}
	keyBytes := []byte(key)
	h := hashKey(keyBytes)
	shardIdx := int(h % uint64(shardCount))

	var result Cell
	var found bool
	err := st.withPointLocks(shardIdx, false, func() error {
		data := st.seg.bytes()
		tableOffset := shardTableOffset(data, shardIdx)
		capacity := shardCapacity(data, shardIdx)
		slabOff, kind, slabLen, ok := findSlotForLookup(data, tableOffset, capacity, h, keyBytes)
		if !ok {
			return nil
		}
		payload := readRecordValue(data, slabOff)
		if uint64(len(payload)) != slabLen {
			payload = payload[:slabLen]
		}
		cell, derr := decodeCell(kind, payload)
		if derr != nil {
			return derr
		}
		result = View{cell: cell}.Clone()
		found = true
		return nil
	})
	if err != nil {
		return Cell{}, false, err
	}
	return result, found, nil
}

// Delete removes key if present. Deleting a missing key is a no-op, per
// the spec's idempotent-delete invariant.
func (st *Store) Delete(key string) error {
	if err := st.checkUsable(); err != nil {
		return err
	}
	if st.mode == ModeReadOnly {
		return ErrReadOnly
	}
	keyBytes := []byte(key)
	h := hashKey(keyBytes)
	shardIdx := int(h % uint64(shardCount))

	return st.withPointLocks(shardIdx, true, func() error {
		data := st.seg.bytes()
		tableOffset := shardTableOffset(data, shardIdx)
		capacity := shardCapacity(data, shardIdx)
		slot, ok := findSlotForDelete(data, tableOffset, capacity, h, keyBytes)
		if !ok {
			return nil
		}
		setBucketSlot(data, tableOffset, slot, emptyTombstoneSentinel, KindUnused, 0, 0)
		setShardEntryCount(data, shardIdx, shardEntryCount(data, shardIdx)-1)
		setShardTombstones(data, shardIdx, shardTombstones(data, shardIdx)+1)
		return nil
	})
}

// Enumerate returns every live key, under the global exclusive lock so the
// snapshot is internally consistent across all shards.
func (st *Store) Enumerate() ([]string, error) {
	if err := st.checkUsable(); err != nil {
		return nil, err
	}
	if st.txn == nil {
		st.globalGoMu.Lock()
		defer st.globalGoMu.Unlock()
		if err := st.globalMutex().Lock(); err != nil {
			return nil, wrap(err)
		}
		defer st.globalMutex().Unlock()
	}

	data := st.seg.bytes()
	var keys []string
	for i := 0; i < shardCount; i++ {
		tableOffset := shardTableOffset(data, i)
		capacity := shardCapacity(data, i)
		for slot := uint64(0); slot < capacity; slot++ {
			h, _, slabOff, _ := bucketSlot(data, tableOffset, slot)
			if h == emptySlot || h == emptyTombstoneSentinel {
				continue
			}
			keys = append(keys, string(readRecordKey(data, slabOff)))
		}
	}
	return keys, nil
}

// Cursor iterates every live entry snapshotted at the time Iterate was
// called, under the global exclusive lock held for the duration of
// Iterate's setup only (the snapshot itself is a plain Go slice, so Next
// needs no further locking).
type Cursor struct {
	entries []cursorEntry
	pos     int
}

type cursorEntry struct {
	key   string
	value Cell
}

// Iterate snapshots every live key/value pair.
func (st *Store) Iterate() (*Cursor, error) {
	if err := st.checkUsable(); err != nil {
		return nil, err
	}
	if st.txn == nil {
		st.globalGoMu.Lock()
		defer st.globalGoMu.Unlock()
		if err := st.globalMutex().Lock(); err != nil {
			return nil, wrap(err)
		}
		defer st.globalMutex().Unlock()
	}

	data := st.seg.bytes()
	var entries []cursorEntry
	for i := 0; i < shardCount; i++ {
		tableOffset := shardTableOffset(data, i)
		capacity := shardCapacity(data, i)
		for slot := uint64(0); slot < capacity; slot++ {
			h, kind, slabOff, slabLen := bucketSlot(data, tableOffset, slot)
			if h == emptySlot || h == emptyTombstoneSentinel {
				continue
			}
			key := string(readRecordKey(data, slabOff))
			payload := readRecordValue(data, slabOff)[:slabLen]
			cell, err := decodeCell(kind, payload)
			if err != nil {
				return nil, err
			}
			entries = append(entries, cursorEntry{key: key, value: View{cell: cell}.Clone()})
		}
	}
	return &Cursor{entries: entries}, nil
}

// Next advances the cursor, returning ok=false once exhausted.
func (c *Cursor) Next() (key string, value Cell, ok bool) {
	if c.pos >= len(c.entries) {
		return "", Cell{}, false
	}
	e := c.entries[c.pos]
	c.pos++
	return e.key, e.value, true
}

// Txn is an explicit write-transaction handle: an open hold on the
// store's global exclusive lock, under which Put/Get/Delete/Enumerate
// skip their own locking. This is the Go-native replacement for the
// reference's thread-local inWriteLock/inGlobalLock flags (see
// SPEC_FULL.md Design Notes): instead of ambient per-thread state, the
// caller carries the handle explicitly.
type Txn struct {
	store  *Store
	closed bool
}

// BeginTxn acquires the global exclusive lock and returns a handle that
// must be closed exactly once.
func (st *Store) BeginTxn() (*Txn, error) {
	if err := st.checkUsable(); err != nil {
		return nil, err
	}
	if st.txn != nil {
		return nil, ErrBusy
	}
	st.globalGoMu.Lock()
	if err := st.globalMutex().Lock(); err != nil {
		st.globalGoMu.Unlock()
		return nil, wrap(err)
	}
	t := &Txn{store: st}
	st.txn = t
	return t, nil
}

// Close releases the transaction's hold on the store. Closing twice
// returns ErrAlreadyClosed.
func (t *Txn) Close() error {
	if t.closed {
		return ErrAlreadyClosed
	}
	t.closed = true
	t.store.txn = nil
	err := wrap(t.store.globalMutex().Unlock())
	t.store.globalGoMu.Unlock()
	return err
}

// WriteLock runs fn under a single global-exclusive transaction, closing
// the transaction whether fn returns an error or panics.
func (st *Store) WriteLock(fn func(*Txn) error) error {
	t, err := st.BeginTxn()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			t.Close()
			panic(r)
		}
	}()
	err = fn(t)
	if cerr := t.Close(); err == nil {
		err = cerr
	}
	return err
}

// Introspection, mirroring the reference's get_free_memory/get_size/
// bucket_count/max_bucket_count/load_factor/max_load_factor/
// fileFormatVersion reserved methods.

func (st *Store) GetFreeMemory() int64 {
	return st.maxSize - int64(readSlabCursor(st.seg.bytes()))
}

func (st *Store) GetSize() int64 {
	return st.seg.size()
}

func (st *Store) BucketCount() uint64 {
	data := st.seg.bytes()
	var total uint64
	for i := 0; i < shardCount; i++ {
		total += shardCapacity(data, i)
	}
	return total
}

func (st *Store) MaxBucketCount() uint64 {
	return uint64(st.maxSize) / bucketEntrySize
}

func (st *Store) LoadFactor() float64 {
	data := st.seg.bytes()
	var count, capacity uint64
	for i := 0; i < shardCount; i++ {
		count += shardEntryCount(data, i) + shardTombstones(data, i)
		capacity += shardCapacity(data, i)
	}
	if capacity == 0 {
		return 0
	}
	return float64(count) / float64(capacity)
}

func (st *Store) MaxLoadFactor() float64 { return 0.65 }

func (st *Store) FileFormatVersion() uint32 {
	return decodeUint32(st.seg.bytes()[offVersion : offVersion+4])
}

// RemoveSharedMutex deletes the shared-mutex region file backing path,
// generalizing the reference's own remove_shared_mutex administrative
// call (which destroys the named boost::interprocess shared-memory
// segment). It is intended for operator use after a crash leaves the
// region abandoned. It does not check whether a Store in this process
// still has the path open: such a handle keeps locking the unlinked file,
// so its locks no longer arbitrate against later openers. A region file
// that is already gone is not an error.
func RemoveSharedMutex(path string) error {
	regionPath, err := lockRegionPath(path)
	if err != nil {
		return err
	}
	err = os.Remove(regionPath)
	if os.IsNotExist(err) {
		return nil
	}
	return wrap(err)
}
