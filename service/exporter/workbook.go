package exporter

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	m "urs/data/models"
)

const (
	SheetRanking        = "Ranking"
	SheetHighPerformers = "HighPerformers"
	SheetCorrelation    = "Correlation"
)

type Workbook struct {
	Ranking        []m.RankedReturn
	HighPerformers []m.RankedReturn
	Symbols        []string // labels of the correlation matrix
	Correlation    *mat.SymDense
}

// WriteWorkbook saves the ranking, the high performers and the sanitized correlation matrix as one xlsx file
func WriteWorkbook(path string, wb Workbook) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating output directory %s: %w", dir, err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetRanking); err != nil {
		return err
	}
	if err := writeRankingSheet(f, SheetRanking, wb.Ranking); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetHighPerformers); err != nil {
		return err
	}
	if err := writeRankingSheet(f, SheetHighPerformers, wb.HighPerformers); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetCorrelation); err != nil {
		return err
	}
	if err := writeCorrelationSheet(f, wb.Symbols, wb.Correlation); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook %s: %w", path, err)
	}
	return nil
}

func writeRankingSheet(f *excelize.File, sheet string, ranking []m.RankedReturn) error {
	if err := f.SetSheetRow(sheet, "A1", &[]any{"symbol", "median_return"}); err != nil {
		return err
	}
	for i, r := range ranking {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &[]any{r.Symbol, cellValue(r.MedianReturn)}); err != nil {
			return fmt.Errorf("error writing %s to sheet %s: %w", r.Symbol, sheet, err)
		}
	}
	return nil
}

func writeCorrelationSheet(f *excelize.File, symbols []string, corr *mat.SymDense) error {
	header := make([]any, 0, len(symbols)+1)
	header = append(header, "")
	for _, s := range symbols {
		header = append(header, s)
	}
	if err := f.SetSheetRow(SheetCorrelation, "A1", &header); err != nil {
		return err
	}
	if corr == nil {
		return nil
	}

	for i, s := range symbols {
		row := make([]any, 0, len(symbols)+1)
		row = append(row, s)
		for j := range symbols {
			row = append(row, cellValue(corr.At(i, j)))
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetCorrelation, cell, &row); err != nil {
			return fmt.Errorf("error writing correlation row %s: %w", s, err)
		}
	}
	return nil
}

// excel has no NaN, leave the cell blank
func cellValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
