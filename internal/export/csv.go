package export

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/zombor/datacapture/internal/extraction"
)

// WriteCSV writes the header row followed by every data row. A cell is
// quoted only when it holds a comma, quote, or line break. Every row,
// including the last, ends with "\n". Short rows are padded with empty cells.
func WriteCSV(w io.Writer, table extraction.ExtractedTable) error {
	if table.IsEmpty() {
		return ErrNoData
	}

	bw := bufio.NewWriter(w)
	writeCSVRow(bw, table.Headers, len(table.Headers))
	for _, row := range table.Rows {
		writeCSVRow(bw, row, len(table.Headers))
	}
	return bw.Flush()
}

// CSV renders the table into memory
func CSV(table extraction.ExtractedTable) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCSVRow(w *bufio.Writer, cells []string, width int) {
	n := max(len(cells), width)
	for i := 0; i < n; i++ {
		if i > 0 {
			w.WriteByte(',')
		}
		if i < len(cells) {
			w.WriteString(escapeCSVCell(cells[i]))
		}
	}
	w.WriteByte('\n')
}

func escapeCSVCell(cell string) string {
	if !strings.ContainsAny(cell, ",\"\n\r") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}
