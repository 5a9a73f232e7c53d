package exporter

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	m "urs/data/models"
)

var rankingHeader = []string{"symbol", "median_return"}

// WriteRanking writes one (symbol, median_return) row per entry, in the given order.
// An undefined median is written as an empty cell.
func WriteRanking(path string, ranking []m.RankedReturn) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating output directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(file)
	if err := w.Write(rankingHeader); err != nil {
		return fmt.Errorf("error writing header to %s: %w", path, err)
	}
	for _, r := range ranking {
		if err := w.Write([]string{r.Symbol, formatFloat(r.MedianReturn)}); err != nil {
			return fmt.Errorf("error writing %s to %s: %w", r.Symbol, path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("error flushing %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
