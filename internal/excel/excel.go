package excel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/example/wordsaver/pkg/models"
)

// Gateway is the subset of remote operations used for export/import
type Gateway interface {
	Words(ctx context.Context, token string, page, pageSize int, sortParam, sortDirection string) (models.WordPage, error)
	SaveWord(ctx context.Context, token, word, translation string) error
}

const (
	sheetName      = "Dictionary"
	exportPageSize = 100
)

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Saved          int
	Skipped        int
	Errors         []string
}

// ExportDictionary fetches every page of the user's dictionary and
// renders it as a single-sheet xlsx workbook.
func ExportDictionary(ctx context.Context, gateway Gateway, token string) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetActiveSheet(f.NewSheet(sheetName))
	f.DeleteSheet("Sheet1")

	header := []interface{}{"Word", "Translation", "Correct", "Incorrect", "Added"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %v", err)
	}

	rowNum := 2
	for page := 1; ; page++ {
		result, err := gateway.Words(ctx, token, page, exportPageSize, models.SortByWord, models.SortAscending)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dictionary page %d: %v", page, err)
		}

		rows := lo.Map(result.Words, func(w models.Word, _ int) []interface{} {
			return []interface{}{w.Word, w.Translation, w.Success, w.Failed, w.AddedAt}
		})
		for _, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return nil, fmt.Errorf("failed to compute cell name: %v", err)
			}
			if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %v", rowNum, err)
			}
			rowNum++
		}

		if page >= result.TotalPages || len(result.Words) == 0 {
			break
		}
	}

	return f.WriteToBuffer()
}

// ImportWords reads word-translation rows from an xlsx workbook and
// saves each through the gateway. Column A is the word, column B the
// translation; a first row labelled "word" is treated as a header.
// Per-row failures are collected, not fatal.
func ImportWords(ctx context.Context, gateway Gateway, token string, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %v", err)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i == 0 && isHeaderRow(row) {
			continue
		}

		result.TotalProcessed++

		word, translation := cellAt(row, 0), cellAt(row, 1)
		if word == "" || translation == "" {
			result.Skipped++
			continue
		}

		if err := gateway.SaveWord(ctx, token, word, translation); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d (%s): %v", i+1, word, err))
			continue
		}
		result.Saved++
	}

	return result, nil
}

// isHeaderRow reports whether the first row is a column-label row
func isHeaderRow(row []string) bool {
	return strings.EqualFold(cellAt(row, 0), "word")
}

// cellAt returns a trimmed cell value, tolerating short rows
func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
