package shardstore

import (
	stderrors "errors"
	"os"

	"github.com/edsrzf/mmap-go"
)

// The mapped heap's on-disk layout (a single file, as required by the
// store's single-file-per-store contract):
//
//	[0:4)    magic
//	[4:8)    version
//	[8:16)   slabOffset: bump-allocator cursor, the offset of the first
//	         free byte in the file
//	[16: headerEnd) shardCount fixed-size shard headers (see shard.go)
//	[headerEnd:...) shard bucket arrays, then value/key records, all
//	         bump-allocated back-to-back and possibly relocated (old
//	         regions abandoned in place) across shard resizes.
//
// This generalizes the teacher's own two-file layout (a fixed hashkeys-N
// array file plus a separately growable slab file, see the teacher's
// mmap.go/slab.go) into one growable file with an internal bump allocator,
// to match the "single file on local disk" requirement.
const (
	heapMagic = uint32(0x53535348) // "HSSS" little-endian as stored

	offMagic      = 0
	offVersion    = 4
	offSlabCursor = 8
	headerFixed   = 16

	shardHeaderSize = 32 // capacity, count, tableOffset, tombstones (uint64 each)
	shardHeaderBase = headerFixed

	fileFormatVersion = uint32(1)
)

func shardHeaderOffset(i int) int64 {
	return int64(shardHeaderBase + i*shardHeaderSize)
}

func headerEnd() int64 {
	return int64(shardHeaderBase + shardCount*shardHeaderSize)
}

const bucketEntrySize = 32 // hash, kind, slabOffset, slabLen (uint64 each)

const (
	minFileSize     = 10 * 1024        // platform-specific minimum (spec §4.E, latest variant)
	defaultFileSize = 5 * 1024 * 1024  // 5 MiB
	defaultMaxSize  = 5000 * 1024 * 1024
	defaultBuckets  = 1024
)

// segment is the mapped heap: a file-backed region plus the current
// mapping of its bytes. Every raw slice derived from bytes() is invalid
// the instant grow() or unmap() runs; callers must never retain one
// across a lock release.
type segment struct {
	path     string
	file     *os.File
	data     mmap.MMap
	readOnly bool
}

func openOrCreateSegment(path string, initialSize int64) (seg *segment, created bool, err error) {
	_, statErr := os.Stat(path)
	created = os.IsNotExist(statErr)

	flags := os.O_RDWR
	if created {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, false, wrap(err)
	}

	if created {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, false, wrap(err)
		}
	}

	applyFadvise(int(f.Fd()), initialSize)
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, false, wrap(err)
	}
	applyMadvise(data)

	return &segment{path: path, file: f, data: data}, created, nil
}

func openExistingSegment(path string, readOnly bool) (*segment, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, wrap(err)
	}
	if fi, statErr := f.Stat(); statErr == nil {
		applyFadvise(int(f.Fd()), fi.Size())
	}
	prot := mmap.RDWR
	if readOnly {
		prot = mmap.RDONLY
	}
	data, err := mmap.Map(f, prot, 0)
	if err != nil {
		f.Close()
		return nil, wrap(err)
	}
	applyMadvise(data)
	return &segment{path: path, file: f, data: data, readOnly: readOnly}, nil
}

func (s *segment) bytes() []byte { return s.data }

func (s *segment) size() int64 { return int64(len(s.data)) }

func (s *segment) flush() error {
	if s.readOnly {
		return nil
	}
	return wrap(s.data.Flush())
}

func (s *segment) unmap() error {
	if s.data == nil {
		return nil
	}
	err := s.data.Unmap()
	s.data = nil
	return wrap(err)
}

func (s *segment) close() error {
	unmapErr := s.unmap()
	closeErr := s.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return wrap(closeErr)
}

// grow unmaps, extends the backing file to newSize, and remaps. Every
// slice previously derived from s.bytes() is invalid after this call.
// Permitted only while the caller holds the write-exclusive lock.
func (s *segment) grow(newSize int64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := s.data.Unmap(); err != nil {
		return wrap(err)
	}
	if err := s.file.Truncate(newSize); err != nil {
		return wrap(err)
	}
	data, err := mmap.Map(s.file, mmap.RDWR, 0)
	if err != nil {
		return wrap(err)
	}
	applyMadvise(data)
	s.data = data
	return nil
}

// errNeedsGrow signals that bumpAlloc could not satisfy a request within
// the segment's current mapped size; the caller must grow the segment and
// retry. It never escapes the package.
var errNeedsGrow = stderrors.New("shardstore: segment needs to grow")

func readSlabCursor(data []byte) uint64 {
	return decodeUint64(data[offSlabCursor : offSlabCursor+8])
}

func writeSlabCursor(data []byte, v uint64) {
	encodeUint64(data[offSlabCursor:offSlabCursor+8], v)
}

// bumpAlloc carves size bytes off the end of the live region, generalizing
// the teacher's own slab.go cursor (which bumped a separate slab file) to
// one cursor shared by shard tables and value records inside a single
// file. It returns errNeedsGrow, never growing the segment itself, so the
// decision to grow (and the max-size ceiling) stays with the caller
// (Store.allocate).
func bumpAlloc(data []byte, size uint64) (uint64, error) {
	cursor := readSlabCursor(data)
	next := cursor + size
	if next > uint64(len(data)) {
		return 0, errNeedsGrow
	}
	writeSlabCursor(data, next)
	return cursor, nil
}

// shrinkToFit truncates the file down to liveSize, the bump allocator's
// current cursor. It does not defragment dead space left behind by shard
// resizes (regions abandoned in place still count as "live" from the
// allocator's point of view) — only trailing, never-yet-allocated space is
// reclaimed. Must be called on an unmapped segment.
func shrinkToFit(path string, liveSize int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return wrap(err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return wrap(err)
	}
	if fi.Size() <= liveSize {
		return nil
	}
	return wrap(f.Truncate(liveSize))
}
