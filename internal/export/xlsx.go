package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/datacapture/internal/extraction"
)

// SheetName is the worksheet holding an exported table
const SheetName = "Extracted Data"

// WriteXLSX writes the table to a single worksheet with a bold header row
func WriteXLSX(w io.Writer, table extraction.ExtractedTable) error {
	if table.IsEmpty() {
		return ErrNoData
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := setRow(f, 1, table.Headers); err != nil {
		return err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(table.Headers), 1)
	if err != nil {
		return fmt.Errorf("locating header row: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("styling header row: %w", err)
	}

	for i, row := range table.Rows {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("locating row %d: %w", rowNum, err)
	}
	values := make([]any, len(cells))
	for i, v := range cells {
		values[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", rowNum, err)
	}
	return nil
}
