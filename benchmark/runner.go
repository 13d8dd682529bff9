package benchmark

import (
	"fmt"
	"log"

	"github.com/snissn/shardstore/internal/bench"
)

// Run drives internal/bench.Run for every engine/keyCount pair, replacing
// the teacher's own exec'd redisserver-plus-redis-benchmark workflow — a
// network round trip has nothing to benchmark here, since this port has
// no network protocol at all (the store's explicit non-goal).
func Run() {
	cfg := ParseConfig()
	var results []BenchmarkResult

	for _, engine := range cfg.Engines {
		for _, keyCount := range cfg.KeyCounts {
			fmt.Printf("\nRunning benchmark: engine=%s keys=%d\n", engine, keyCount)
			r, err := bench.Run(engine, keyCount)
			if err != nil {
				fmt.Printf("Benchmark failed: %v\n", err)
				continue
			}
			results = append(results, BenchmarkResult{
				Engine:   r.Engine,
				KeyCount: r.KeyCount,
				SetRPS:   r.SetRPS,
				GetRPS:   r.GetRPS,
			})
		}
	}

	PrintResultsTable(results)
	plotResults(results)
	if err := SaveResultsToCSV(cfg.CSVPath, results); err != nil {
		log.Fatalf("failed to save CSV: %v", err)
	}
}
