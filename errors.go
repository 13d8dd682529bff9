package shardstore

import (
	stderrors "errors"

	"github.com/go-errors/errors"
)

// Sentinel error kinds surfaced at the façade boundary. Compare against
// these with errors.Is; unexpected I/O and mapping failures are instead
// passed through wrap(), which attaches a stack trace for operators without
// hiding the underlying error.
var (
	ErrNotFound         = stderrors.New("shardstore: file not found")
	ErrNotRegularFile   = stderrors.New("shardstore: not a regular file")
	ErrEmpty            = stderrors.New("shardstore: file is empty")
	ErrCorrupt          = stderrors.New("shardstore: file is corrupt")
	ErrBusy             = stderrors.New("shardstore: resource busy")
	ErrBusyWriteOnly    = stderrors.New("shardstore: another process has this file open write-only")
	ErrVersionMismatch  = stderrors.New("shardstore: unsupported file format version")
	ErrReadOnly         = stderrors.New("shardstore: store is read-only")
	ErrClosed           = stderrors.New("shardstore: store is closed")
	ErrAlreadyClosed    = stderrors.New("shardstore: store already closed")
	ErrUnsupportedKey   = stderrors.New("shardstore: unsupported key")
	ErrUnsupportedValue = stderrors.New("shardstore: unsupported value")
	ErrFileTooLarge     = stderrors.New("shardstore: file grew too large")
	ErrWrongType        = stderrors.New("shardstore: value accessed with wrong type")
	ErrLockBroken       = stderrors.New("shardstore: shared lock region was abandoned or corrupt")
)

// wrap attaches a stack trace to err, in the teacher's own go-errors idiom,
// without changing its identity for errors.Is comparisons against the
// sentinels above (go-errors.Error.Unwrap returns the original error).
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 1)
}
