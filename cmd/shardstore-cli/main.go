// Command shardstore-cli drives a store directly from the command line,
// adapted from the teacher's own redisserver/main.go dispatch shape (flag
// parsing plus a switch on the first positional argument) with the redcon
// network listener removed — there is no network protocol in this port.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/snissn/shardstore"
)

func main() {
	path := flag.String("file", "", "path to the store file")
	flag.Parse()
	args := flag.Args()
	if *path == "" || len(args) == 0 {
		usage()
	}

	st, err := shardstore.Open(*path, shardstore.ModeReadWrite, shardstore.OpenOptions{})
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	switch args[0] {
	case "get":
		cmdGet(st, args[1:])
	case "put":
		cmdPut(st, args[1:])
	case "delete":
		cmdDelete(st, args[1:])
	case "enumerate":
		cmdEnumerate(st, args[1:])
	case "info":
		cmdInfo(st, args[1:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: shardstore-cli -file PATH <get|put|delete|enumerate|info> [args]")
	os.Exit(1)
}

func cmdGet(st *shardstore.Store, args []string) {
	if len(args) != 1 {
		usage()
	}
	v, ok, err := st.Get(args[0])
	if err != nil {
		log.Fatal(err)
	}
	if !ok {
		fmt.Println("(nil)")
		return
	}
	printCell(v)
}

func cmdPut(st *shardstore.Store, args []string) {
	if len(args) != 2 {
		usage()
	}
	if err := st.Put(args[0], shardstore.NewStringCell(args[1])); err != nil {
		log.Fatal(err)
	}
}

func cmdDelete(st *shardstore.Store, args []string) {
	if len(args) != 1 {
		usage()
	}
	if err := st.Delete(args[0]); err != nil {
		log.Fatal(err)
	}
}

func cmdEnumerate(st *shardstore.Store, args []string) {
	keys, err := st.Enumerate()
	if err != nil {
		log.Fatal(err)
	}
	for _, k := range keys {
		fmt.Println(k)
	}
}

func cmdInfo(st *shardstore.Store, args []string) {
	fmt.Printf("size=%d freeMemory=%d bucketCount=%d loadFactor=%.4f version=%d\n",
		st.GetSize(), st.GetFreeMemory(), st.BucketCount(), st.LoadFactor(), st.FileFormatVersion())
}

func printCell(v shardstore.Cell) {
	switch v.Kind() {
	case shardstore.KindString:
		s, _ := v.AsString()
		fmt.Println(s)
	case shardstore.KindBuffer:
		b, _ := v.AsBytes()
		fmt.Printf("%x\n", b)
	case shardstore.KindNumber:
		f, _ := v.AsFloat64()
		fmt.Println(f)
	}
}
