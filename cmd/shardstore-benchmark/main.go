// Command shardstore-benchmark drives the in-process engine comparison in
// the benchmark package, adapted from the teacher's own standalone
// benchmark driver (the original ran as its own invocation rather than
// through the root main.go).
package main

import "github.com/snissn/shardstore/benchmark"

func main() {
	benchmark.Run()
}
