//go:build !linux
// +build !linux

package shardstore

import (
	"time"

	"golang.org/x/sys/unix"
)

// Non-Linux fallback: classic fcntl record locks (F_SETLK/F_SETLKW) are
// associated with the whole process rather than the open file
// description, so two Store handles open on the same path inside one
// process will not correctly arbitrate against each other here (they will
// across processes, which is the common case). This mirrors the teacher's
// own linux/non-linux split for fadvise/madvise hints.
func fcntlLock(fd uintptr, typ int16, offset int64, wait bool) error {
	lk := unix.Flock_t{
		Type:   typ,
		Whence: 0,
		Start:  offset,
		Len:    1,
	}
	cmd := unix.F_SETLK
	if wait {
		cmd = unix.F_SETLKW
	}
	return unix.FcntlFlock(fd, cmd, &lk)
}

func fcntlTryLock(fd uintptr, typ int16, offset int64) (bool, error) {
	err := fcntlLock(fd, typ, offset, false)
	if err == nil {
		return true, nil
	}
	if err == unix.EAGAIN || err == unix.EACCES {
		return false, nil
	}
	return false, err
}

func fcntlUnlock(fd uintptr, offset int64) error {
	return fcntlLock(fd, unix.F_UNLCK, offset, false)
}

func timedLock(fd uintptr, offset int64, typ int16, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond
	for {
		ok, err := fcntlTryLock(fd, typ, offset)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(backoff)
		if backoff < 20*time.Millisecond {
			backoff *= 2
		}
	}
}
