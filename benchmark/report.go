package benchmark

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type BenchmarkResult struct {
	Engine   string
	KeyCount int
	SetRPS   float64
	GetRPS   float64
}

func SaveResultsToCSV(filename string, results []BenchmarkResult) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"Engine", "KeyCount", "SET RPS", "GET RPS"})
	for _, r := range results {
		w.Write([]string{
			r.Engine,
			strconv.Itoa(r.KeyCount),
			fmt.Sprintf("%.2f", r.SetRPS),
			fmt.Sprintf("%.2f", r.GetRPS),
		})
	}
	return nil
}

func PrintResultsTable(results []BenchmarkResult) {
	fmt.Printf("\n%-10s | %-8s | %-12s | %-12s\n", "Engine", "Keys", "SET RPS", "GET RPS")
	fmt.Println(strings.Repeat("-", 50))
	for _, r := range results {
		fmt.Printf("%-10s | %-8d | %-12.2f | %-12.2f\n", r.Engine, r.KeyCount, r.SetRPS, r.GetRPS)
	}
}
