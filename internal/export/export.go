// Package export renders extracted tables as downloadable files.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zombor/datacapture/internal/extraction"
)

// ErrNoData is returned when a table has no headers or no rows
var ErrNoData = errors.New("no data to export")

// Format is a supported export file type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name or file extension, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatCSV, FormatPDF, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Filename is the download name of an export
func (f Format) Filename() string {
	return "extracted_data." + string(f)
}

// ContentType is the MIME type of an export
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Write renders table in the given format. title only applies to PDF.
func Write(w io.Writer, f Format, table extraction.ExtractedTable, title string) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, table)
	case FormatPDF:
		return WritePDF(w, table, PDFOptions{Title: title, Compress: true})
	case FormatXLSX:
		return WriteXLSX(w, table)
	default:
		return fmt.Errorf("unsupported export format %q", string(f))
	}
}
