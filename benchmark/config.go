package benchmark

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	Engines   []string
	KeyCounts []int
	CSVPath   string
}

func ParseConfig() *Config {
	var enginesStr string
	var keyCountsStr string
	var csvPath string

	flag.StringVar(&enginesStr, "engines", "shardstore,badger,leveldb", "Comma-separated list of engines to benchmark")
	flag.StringVar(&keyCountsStr, "keycounts", "10000,50000,100000", "Comma-separated list of key counts")
	flag.StringVar(&csvPath, "csv", "benchmark_results.csv", "Path to CSV output file")
	flag.Parse()

	return &Config{
		Engines:   strings.Split(enginesStr, ","),
		KeyCounts: parseKeyCounts(keyCountsStr),
		CSVPath:   csvPath,
	}
}

func parseKeyCounts(s string) []int {
	var result []int
	for _, part := range strings.Split(s, ",") {
		val, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			fmt.Printf("Warning: invalid key count '%s', skipping\n", part)
			continue
		}
		result = append(result, val)
	}
	return result
}
