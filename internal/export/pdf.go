package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/zombor/datacapture/internal/extraction"
)

// DefaultTitle heads every PDF report unless PDFOptions.Title is set
const DefaultTitle = "Extracted Data Report"

const (
	pdfMargin     = 10.0
	pdfStartY     = 15.0
	pdfLineHeight = 7.0
	pdfFont       = "Helvetica"

	titleFontSize       = 16.0
	sectionFontSize     = 12.0
	bodyFontSize        = 8.0
	placeholderFontSize = 10.0

	sectionLabel     = "Structured Table Data:"
	continuedLabel   = "Structured Table Data (Continued)"
	emptyPlaceholder = "No structured table data was extracted."
)

// PDFOptions controls the rendered report
type PDFOptions struct {
	Title    string
	Compress bool
}

// WritePDF lays the table out on A4 pages with equal-width columns. Rows are
// never split across pages and the header row is repeated at the top of
// every page. An empty table renders a placeholder line instead.
func WritePDF(w io.Writer, table extraction.ExtractedTable, opts PDFOptions) error {
	title := opts.Title
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(opts.Compress)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("datacapture", true)

	l := &pdfLayout{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
	}
	pdf.AddPage()
	l.pageWidth, l.pageHeight = pdf.GetPageSize()
	l.y = pdfStartY

	pdf.SetFont(pdfFont, "B", titleFontSize)
	l.text(pdfMargin, l.y, title)
	l.y += pdfLineHeight * 2

	if table.IsEmpty() {
		pdf.SetFont(pdfFont, "", placeholderFontSize)
		l.text(pdfMargin, l.y, emptyPlaceholder)
	} else {
		l.table(table)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}

type pdfLayout struct {
	pdf        *fpdf.Fpdf
	tr         func(string) string
	pageWidth  float64
	pageHeight float64
	y          float64
	colWidth   float64
}

func (l *pdfLayout) table(table extraction.ExtractedTable) {
	l.colWidth = (l.pageWidth - 2*pdfMargin) / float64(len(table.Headers))

	l.section(sectionLabel)
	l.headerRow(table.Headers)

	for _, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		copy(cells, row)

		l.pdf.SetFont(pdfFont, "", bodyFontSize)
		wrapped, height := l.wrapRow(cells)
		if l.y+height > l.pageHeight-pdfMargin {
			l.pdf.AddPage()
			l.y = pdfMargin + pdfLineHeight
			l.section(continuedLabel)
			l.headerRow(table.Headers)
			l.pdf.SetFont(pdfFont, "", bodyFontSize)
		}
		l.emitRow(wrapped, height)
	}
}

func (l *pdfLayout) section(label string) {
	l.pdf.SetFont(pdfFont, "", sectionFontSize)
	l.text(pdfMargin, l.y, label)
	l.y += pdfLineHeight * 1.5
}

func (l *pdfLayout) headerRow(headers []string) {
	l.pdf.SetFont(pdfFont, "B", bodyFontSize)
	wrapped, height := l.wrapRow(headers)
	l.emitRow(wrapped, height)
}

// wrapRow splits every cell to the column width with the current font.
// The row is as tall as its tallest cell.
func (l *pdfLayout) wrapRow(cells []string) ([][]string, float64) {
	wrapped := make([][]string, len(cells))
	lines := 1
	for i, cell := range cells {
		wrapped[i] = l.wrap(cell)
		lines = max(lines, len(wrapped[i]))
	}
	return wrapped, float64(lines) * pdfLineHeight
}

func (l *pdfLayout) emitRow(wrapped [][]string, height float64) {
	for i, cellLines := range wrapped {
		x := pdfMargin + float64(i)*l.colWidth
		for j, line := range cellLines {
			l.text(x, l.y+float64(j)*pdfLineHeight, line)
		}
	}
	l.y += height
}

func (l *pdfLayout) wrap(cell string) []string {
	var lines []string
	for _, paragraph := range strings.Split(strings.ReplaceAll(latin1(cell), "\r\n", "\n"), "\n") {
		lines = append(lines, l.pdf.SplitText(paragraph, l.colWidth-2)...)
	}
	return lines
}

func (l *pdfLayout) text(x, y float64, s string) {
	if s == "" {
		return
	}
	l.pdf.Text(x, y, l.tr(s))
}

// latin1 replaces runes the core fonts cannot measure
func latin1(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r > 0xff:
			return '?'
		default:
			return r
		}
	}, s)
}
