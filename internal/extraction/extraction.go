package extraction

import (
	"context"
	"errors"

	"github.com/zombor/datacapture/internal/media"
)

// SchemaVersion identifies the canonical table+fullText contract
const SchemaVersion = "v1"

// ErrEmptyResponse is returned when a model answers with no usable content
var ErrEmptyResponse = errors.New("empty response from model")

// ExtractedTable is a header/rows table pulled out of a document or image
type ExtractedTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// IsEmpty reports whether there is nothing to render or export
func (t ExtractedTable) IsEmpty() bool {
	return len(t.Headers) == 0 || len(t.Rows) == 0
}

// HeadingValueRow is the flat two-column shape some prompts answer with
type HeadingValueRow struct {
	Heading string `json:"heading"`
	Value   string `json:"value"`
}

// Variant tags which response shape the model produced before it was adapted
type Variant string

const (
	VariantTable            Variant = "table"
	VariantTableWithText    Variant = "table_with_text"
	VariantTableWithSummary Variant = "table_with_summary"
	VariantHeadingValue     Variant = "heading_value"
)

// Extraction is the canonical result of every structured flow.
// Heading/value answers are kept in Pairs and mirrored into ExtractedTable.
type Extraction struct {
	Version        string            `json:"version"`
	Variant        Variant           `json:"variant"`
	ExtractedTable ExtractedTable    `json:"extractedTable"`
	Pairs          []HeadingValueRow `json:"pairs"`
	FullText       string            `json:"fullText"`
	Summary        string            `json:"summary"`
}

// PairsTable converts heading/value rows into a two-column table
func PairsTable(pairs []HeadingValueRow) ExtractedTable {
	if len(pairs) == 0 {
		return ExtractedTable{Headers: []string{}, Rows: [][]string{}}
	}
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p.Heading, p.Value})
	}
	return ExtractedTable{Headers: []string{"Heading", "Value"}, Rows: rows}
}

// Extractor runs the inference flows against a model backend
type Extractor interface {
	// AnalyzeDocument extracts a table from a PDF, spreadsheet, or text document
	AnalyzeDocument(ctx context.Context, doc media.Media) (*Extraction, error)
	// ExtractFromImage extracts a table and the full text from a photo
	ExtractFromImage(ctx context.Context, photo media.Media) (*Extraction, error)
	// TranscribeHandwriting returns the handwritten text in a photo
	TranscribeHandwriting(ctx context.Context, photo media.Media) (string, error)
	// Answer replies to a free-text query
	Answer(ctx context.Context, query string) (string, error)
	// Close releases the backend
	Close() error
}
