// Package bench runs the same put/get workload against Store, Badger, and
// LevelDB in-process, replacing the teacher's exec'd redis-benchmark
// workflow (which shelled out to a separate redisserver process and the
// redis-benchmark binary) with direct library calls — there is no network
// protocol in this port to benchmark over (see spec's no-network-protocol
// non-goal), so the comparison runs in the same process as the caller.
package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/snissn/shardstore"
)

// Result mirrors the teacher's benchmark/report.go BenchmarkResult shape,
// one row per engine/keyCount pair.
type Result struct {
	Engine   string
	KeyCount int
	SetRPS   float64
	GetRPS   float64
}

// Run executes the put-then-get workload for keyCount keys against engine
// ("shardstore", "badger", or "leveldb") in a fresh temp directory.
func Run(engine string, keyCount int) (Result, error) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("%s-bench", engine))
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(dir)

	switch engine {
	case "shardstore":
		return runStore(dir, keyCount)
	case "badger":
		return runBadger(dir, keyCount)
	case "leveldb":
		return runLeveldb(dir, keyCount)
	default:
		return Result{}, fmt.Errorf("bench: unknown engine %q", engine)
	}
}

func runStore(dir string, keyCount int) (Result, error) {
	st, err := shardstore.Open(filepath.Join(dir, "data"), shardstore.ModeReadWrite, shardstore.OpenOptions{
		MaxSizeKiB: int64(keyCount) + 2*1024*1024,
	})
	if err != nil {
		return Result{}, err
	}
	defer st.Close()

	r := Result{Engine: "shardstore", KeyCount: keyCount}

	start := time.Now()
	for i := 0; i < keyCount; i++ {
		key := strconv.Itoa(i)
		if err := st.Put(key, shardstore.NewStringCell(key)); err != nil {
			return Result{}, err
		}
	}
	r.SetRPS = rps(keyCount, time.Since(start))

	start = time.Now()
	for i := 0; i < keyCount; i++ {
		if _, _, err := st.Get(strconv.Itoa(i)); err != nil {
			return Result{}, err
		}
	}
	r.GetRPS = rps(keyCount, time.Since(start))
	return r, nil
}

func runBadger(dir string, keyCount int) (Result, error) {
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return Result{}, err
	}
	defer db.Close()

	r := Result{Engine: "badger", KeyCount: keyCount}

	start := time.Now()
	for i := 0; i < keyCount; i++ {
		key := []byte(strconv.Itoa(i))
		if err := db.Update(func(txn *badger.Txn) error { return txn.Set(key, key) }); err != nil {
			return Result{}, err
		}
	}
	r.SetRPS = rps(keyCount, time.Since(start))

	start = time.Now()
	for i := 0; i < keyCount; i++ {
		key := []byte(strconv.Itoa(i))
		if err := db.View(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			return err
		}); err != nil {
			return Result{}, err
		}
	}
	r.GetRPS = rps(keyCount, time.Since(start))
	return r, nil
}

func runLeveldb(dir string, keyCount int) (Result, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return Result{}, err
	}
	defer db.Close()

	r := Result{Engine: "leveldb", KeyCount: keyCount}

	start := time.Now()
	for i := 0; i < keyCount; i++ {
		key := []byte(strconv.Itoa(i))
		if err := db.Put(key, key, nil); err != nil {
			return Result{}, err
		}
	}
	r.SetRPS = rps(keyCount, time.Since(start))

	start = time.Now()
	for i := 0; i < keyCount; i++ {
		key := []byte(strconv.Itoa(i))
		if _, err := db.Get(key, nil); err != nil {
			return Result{}, err
		}
	}
	r.GetRPS = rps(keyCount, time.Since(start))
	return r, nil
}

func rps(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
