package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// looseString accepts any JSON scalar; null becomes "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	if data[0] == '{' || data[0] == '[' {
		return fmt.Errorf("expected a scalar cell, got %s", data)
	}
	// numbers and booleans keep their JSON spelling
	*s = looseString(data)
	return nil
}

type wireTable struct {
	Headers []looseString   `json:"headers"`
	Rows    [][]looseString `json:"rows"`
}

func (w wireTable) table() ExtractedTable {
	t := ExtractedTable{Headers: make([]string, len(w.Headers)), Rows: make([][]string, len(w.Rows))}
	for i, h := range w.Headers {
		t.Headers[i] = string(h)
	}
	for i, row := range w.Rows {
		t.Rows[i] = make([]string, len(row))
		for j, cell := range row {
			t.Rows[i][j] = string(cell)
		}
	}
	return t
}

type wirePair struct {
	Heading looseString `json:"heading"`
	Value   looseString `json:"value"`
}

// wireResponse accepts every response shape the flows have produced
type wireResponse struct {
	ExtractedTable *wireTable      `json:"extractedTable"`
	Table          json.RawMessage `json:"table"`
	Pairs          []wirePair      `json:"pairs"`
	FullText       *looseString    `json:"fullText"`
	Summary        *looseString    `json:"summary"`
}

// Decode parses a model's structured answer, adapts whichever response
// variant it used into the canonical Extraction, and normalizes it.
func Decode(text string) (*Extraction, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var w wireResponse
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	x, err := adapt(w)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(x)
	return &normalized, nil
}

func adapt(w wireResponse) (Extraction, error) {
	var x Extraction

	if w.ExtractedTable != nil {
		x.ExtractedTable = w.ExtractedTable.table()
	}

	table := bytes.TrimSpace(w.Table)
	if len(table) > 0 && string(table) != "null" {
		switch table[0] {
		case '{':
			var t wireTable
			if err := json.Unmarshal(table, &t); err != nil {
				return Extraction{}, fmt.Errorf("unmarshaling table: %w", err)
			}
			if w.ExtractedTable == nil {
				x.ExtractedTable = t.table()
			}
		case '[':
			var pairs []wirePair
			if err := json.Unmarshal(table, &pairs); err != nil {
				return Extraction{}, fmt.Errorf("unmarshaling heading/value table: %w", err)
			}
			w.Pairs = append(w.Pairs, pairs...)
		default:
			return Extraction{}, fmt.Errorf("unexpected table shape: %.20s", table)
		}
	}

	if len(w.Pairs) > 0 {
		x.Pairs = make([]HeadingValueRow, 0, len(w.Pairs))
		for _, p := range w.Pairs {
			x.Pairs = append(x.Pairs, HeadingValueRow{
				Heading: strings.TrimSpace(string(p.Heading)),
				Value:   strings.TrimSpace(string(p.Value)),
			})
		}
		if w.ExtractedTable == nil {
			x.ExtractedTable = PairsTable(x.Pairs)
		}
	}

	if w.FullText != nil {
		x.FullText = strings.TrimSpace(string(*w.FullText))
	}
	if w.Summary != nil {
		x.Summary = strings.TrimSpace(string(*w.Summary))
	}

	switch {
	case len(x.Pairs) > 0:
		x.Variant = VariantHeadingValue
	case w.FullText != nil:
		x.Variant = VariantTableWithText
	case w.Summary != nil:
		x.Variant = VariantTableWithSummary
	default:
		x.Variant = VariantTable
	}

	return x, nil
}

// DecodeText pulls a text answer out of a model response. JSON answers are
// read from the named field; anything else is treated as the answer itself.
func DecodeText(text string, field string) (string, error) {
	text = stripCodeFences(text)
	if text == "" {
		return "", ErrEmptyResponse
	}

	if strings.HasPrefix(text, "{") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &fields); err == nil {
			value, ok := fields[field]
			if !ok {
				return "", fmt.Errorf("response has no %q field", field)
			}
			var s looseString
			if err := json.Unmarshal(value, &s); err != nil {
				return "", fmt.Errorf("unmarshaling %s: %w", field, err)
			}
			answer := strings.TrimSpace(string(s))
			if answer == "" {
				return "", ErrEmptyResponse
			}
			return answer, nil
		}
	}

	if strings.HasPrefix(text, `"`) {
		if unquoted, err := strconv.Unquote(text); err == nil {
			text = strings.TrimSpace(unquoted)
		}
	}
	return text, nil
}

// extractJSON strips markdown fences and any prose around the JSON value.
// A bare array is read as a heading/value table.
func extractJSON(text string) (string, error) {
	text = stripCodeFences(text)
	if text == "" {
		return "", ErrEmptyResponse
	}

	if strings.HasPrefix(text, "[") {
		end := strings.LastIndex(text, "]")
		if end == -1 {
			return "", fmt.Errorf("invalid JSON array in response")
		}
		return `{"table":` + text[:end+1] + `}`, nil
	}

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}

	return text[startIdx : endIdx+1], nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
