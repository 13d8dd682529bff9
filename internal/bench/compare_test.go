package bench

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/snissn/shardstore"
)

// These benchmarks generalize the teacher's own badgerdbbench_test.go and
// leveldbbench_test.go (each a standalone Set-loop benchmark) into a
// side-by-side comparison that now also exercises Store, so the three
// engines run under the exact same b.N loop shape.

func BenchmarkStorePut(b *testing.B) {
	folder, err := os.MkdirTemp("", "shardstore-bench")
	if err != nil {
		b.Fatal(err)
	}
	defer os.RemoveAll(folder)

	st, err := shardstore.Open(filepath.Join(folder, "data"), shardstore.ModeReadWrite, shardstore.OpenOptions{
		MaxSizeKiB: 2 * 1024 * 1024,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := strconv.Itoa(i)
		if err := st.Put(key, shardstore.NewStringCell(key)); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
}

func BenchmarkStoreGet(b *testing.B) {
	folder, err := os.MkdirTemp("", "shardstore-bench")
	if err != nil {
		b.Fatal(err)
	}
	defer os.RemoveAll(folder)

	st, err := shardstore.Open(filepath.Join(folder, "data"), shardstore.ModeReadWrite, shardstore.OpenOptions{
		MaxSizeKiB: 2 * 1024 * 1024,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()

	for i := 0; i < b.N; i++ {
		key := strconv.Itoa(i)
		if err := st.Put(key, shardstore.NewStringCell(key)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := strconv.Itoa(i)
		if _, _, err := st.Get(key); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
}

func BenchmarkBadgerPut(b *testing.B) {
	folder, _ := os.MkdirTemp("", "hash")
	defer os.RemoveAll(folder)
	opts := badger.DefaultOptions(folder)
	db, _ := badger.Open(opts)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := strconv.Itoa(i)
		err := db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(key), []byte(key))
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	db.Close()
}

func BenchmarkLeveldbPut(b *testing.B) {
	folder, _ := os.MkdirTemp("", "hash")
	defer os.RemoveAll(folder)
	db, _ := leveldb.OpenFile(folder, nil)
	defer db.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := strconv.Itoa(i)
		_ = db.Put([]byte(key), []byte(key), nil)
	}
}
