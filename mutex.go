package shardstore

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// The shared-mutex region arbitrates reader/writer access across
// processes. The reference (original_source/mmap-object.cc) holds the
// lock structs themselves in a POSIX shared-memory segment and implements
// each mutex with a futex-backed interprocess_upgradable_mutex. Go has no
// portable wrapper for either primitive, so this port uses the primitive
// Go programs actually reach for to arbitrate processes against one file:
// POSIX open-file-description record locks (fcntl F_OFD_SETLK*), one
// byte-range per mutex, all inside one small region file. A tiny mmap'd
// header (via the teacher's own mmap-go dependency) still carries a magic
// word, purely so a bootstrap trial-lock can detect "this region looks
// uninitialized or corrupt" the way the reference's trial lock does.
const (
	lockHeaderSize = 64
	lockMagic      = uint32(0x4c4f434b) // "LOCK"

	lockTypeRead  int16 = unix.F_RDLCK // POSIX F_RDLCK
	lockTypeWrite int16 = unix.F_WRLCK // POSIX F_WRLCK
)

func lockOffsetGlobal() int64    { return lockHeaderSize }
func lockOffsetShard(i int) int64 { return lockHeaderSize + 1 + int64(i) }
func lockOffsetWO() int64        { return lockHeaderSize + 1 + shardCount }
func lockRegionFileSize() int64  { return lockHeaderSize + 1 + shardCount + 1 }

// lockRegionPath derives the shared-mutex region's path from the data
// file's absolute path by replacing path separators with "-", exactly as
// spec'd, and storing the result alongside the platform's temp directory
// (the closest Go analogue to the POSIX shared-memory namespace the
// reference uses).
func lockRegionPath(dataPath string) (string, error) {
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return "", wrap(err)
	}
	name := strings.NewReplacer("/", "-", "\\", "-").Replace(abs)
	return filepath.Join(os.TempDir(), name+".shardstore-lock"), nil
}

// mutexRegion is the opened shared-mutex region for one store. It owns the
// fd used for every fcntl byte-range lock taken by this Store instance —
// OFD locks are scoped to the open file description, so two Store handles
// in the same process (or different processes) each get independent,
// correctly-arbitrating locks as long as each opens its own fd, which is
// exactly what happens here: one mutexRegion, and therefore one fd, per
// Store.Open call.
type mutexRegion struct {
	path string
	file *os.File
	hdr  mmap.MMap
}

func openMutexRegion(dataPath string) (*mutexRegion, error) {
	path, err := lockRegionPath(dataPath)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, wrap(err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrap(err)
	}
	created := fi.Size() == 0
	if created {
		if err := f.Truncate(lockRegionFileSize()); err != nil {
			f.Close()
			return nil, wrap(err)
		}
	}

	hdr, err := mmap.MapRegion(f, lockHeaderSize, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, wrap(err)
	}

	r := &mutexRegion{path: path, file: f, hdr: hdr}
	if created {
		r.initHeader()
	}

	// Trial lock of the global mutex, 1s timeout. A timeout, or a header
	// whose magic word is missing (a zero-filled or corrupt region),
	// re-initializes the header in place: recovery from a process that
	// died while holding it or before stamping it. Any other lock error
	// fails the open.
	ok, err := r.timedTrialLockGlobal(time.Second)
	if err != nil {
		r.close()
		return nil, wrap(err)
	}
	if !ok || decodeUint32(r.hdr[0:4]) != lockMagic {
		r.initHeader()
	}

	return r, nil
}

func (r *mutexRegion) initHeader() {
	encodeUint32(r.hdr[0:4], lockMagic)
}

func (r *mutexRegion) timedTrialLockGlobal(timeout time.Duration) (bool, error) {
	ok, err := timedLock(r.file.Fd(), lockOffsetGlobal(), lockTypeWrite, timeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fcntlUnlock(r.file.Fd(), lockOffsetGlobal()); err != nil {
		return false, err
	}
	return true, nil
}

func (r *mutexRegion) close() error {
	if r.hdr != nil {
		r.hdr.Unmap()
		r.hdr = nil
	}
	return wrap(r.file.Close())
}

// upgradableMutex is a handle to one byte-range record lock inside a
// mutexRegion. Shared acquisition maps to a read lock, exclusive to a
// write lock, and "upgrade" is simply re-locking the same (fd, offset)
// exclusively — POSIX fcntl semantics make that a single atomic
// replacement of the existing lock for this open file description rather
// than an acquire-on-top-of, so there is no intervening gap in which
// another locker could slip in between the shared release and the
// exclusive grab.
type upgradableMutex struct {
	fd     uintptr
	offset int64
}

func (r *mutexRegion) mutex(offset int64) upgradableMutex {
	return upgradableMutex{fd: r.file.Fd(), offset: offset}
}

func (m upgradableMutex) Lock() error          { return fcntlLock(m.fd, lockTypeWrite, m.offset, true) }
func (m upgradableMutex) Unlock() error        { return fcntlUnlock(m.fd, m.offset) }
func (m upgradableMutex) RLock() error         { return fcntlLock(m.fd, lockTypeRead, m.offset, true) }
func (m upgradableMutex) RUnlock() error       { return fcntlUnlock(m.fd, m.offset) }

// TryRLockTimed attempts a shared lock, giving up after timeout.
func (m upgradableMutex) TryRLockTimed(timeout time.Duration) (bool, error) {
	return timedLock(m.fd, m.offset, lockTypeRead, timeout)
}

// UpgradeTimed promotes a shared hold on this mutex to exclusive, giving
// up after timeout. The caller must already hold the shared lock.
func (m upgradableMutex) UpgradeTimed(timeout time.Duration) (bool, error) {
	return timedLock(m.fd, m.offset, lockTypeWrite, timeout)
}

func encodeUint32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
