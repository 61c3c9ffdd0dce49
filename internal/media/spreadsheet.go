package media

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetText renders every sheet of an XLSX workbook as CSV lines, each
// sheet preceded by a "# Sheet: <name>" line. Empty rows are skipped.
func SpreadsheetText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("reading sheet %q: %w", sheet, err)
		}

		fmt.Fprintf(&b, "# Sheet: %s\n", sheet)
		for _, row := range rows {
			if isBlankRow(row) {
				continue
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("writing sheet %q: %w", sheet, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("writing sheet %q: %w", sheet, err)
		}
	}

	return b.String(), nil
}

// Text returns the textual content of a text or spreadsheet payload.
// Browsers often label plain CSV as application/vnd.ms-excel, so a workbook
// that fails to open falls back to its raw bytes when they are valid UTF-8.
func Text(m Media) (string, error) {
	switch m.Kind() {
	case KindText:
		return string(m.Data), nil
	case KindSpreadsheet:
		text, err := SpreadsheetText(m.Data)
		if err == nil {
			return text, nil
		}
		if utf8.Valid(m.Data) && !bytes.ContainsRune(m.Data, 0) {
			return string(m.Data), nil
		}
		return "", err
	default:
		return "", fmt.Errorf("%s content has no text representation", m.MIMEType)
	}
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
