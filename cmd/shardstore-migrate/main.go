// Command shardstore-migrate rewrites a legacy version-0 store (the
// teacher's original single flat-table layout, predating sharding) into
// the current version-1 sharded layout. Version 0 slabs hold a sequence
// of msgpack-framed Item{Key, Value} records with no per-record length
// prefix other than what msgpack itself carries — the same encoding the
// teacher's own gomap.go used to marshal a slab entry — so this tool
// walks them with a plain msgpack stream decoder rather than the new
// fixed-width record framing records.go uses.
package main

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/snissn/shardstore"
)

// legacyItem mirrors the teacher's original gomap.go Item struct: a flat
// key/value pair, value always stored as raw bytes (the pre-Cell format
// had no tagged union — every value round-tripped as a string).
type legacyItem struct {
	Key   string
	Value []byte
}

func main() {
	src := flag.String("src", "", "path to the legacy version-0 store file")
	dst := flag.String("dst", "", "path to the version-1 store file to create")
	flag.Parse()
	if *src == "" || *dst == "" {
		log.Fatal("usage: shardstore-migrate -src OLDFILE -dst NEWFILE")
	}

	n, err := migrate(*src, *dst)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("migrated %d entries from %s to %s", n, *src, *dst)
}

func migrate(srcPath, dstPath string) (int, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(f)

	st, err := shardstore.Open(dstPath, shardstore.ModeReadWrite, shardstore.OpenOptions{})
	if err != nil {
		return 0, err
	}
	defer st.Close()

	count := 0
	for {
		var item legacyItem
		if err := dec.Decode(&item); err != nil {
			if err == io.EOF {
				break
			}
			return count, err
		}
		if err := st.Put(item.Key, shardstore.NewBufferCell(item.Value)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
