package extraction

// Normalize fills every optional field of an extraction with an empty
// default. It never mutates its argument and Normalize(Normalize(x)) equals
// Normalize(x).
func Normalize(x Extraction) Extraction {
	out := Extraction{
		Version:        x.Version,
		Variant:        x.Variant,
		ExtractedTable: NormalizeTable(x.ExtractedTable),
		Pairs:          make([]HeadingValueRow, len(x.Pairs)),
		FullText:       x.FullText,
		Summary:        x.Summary,
	}
	copy(out.Pairs, x.Pairs)

	if out.Version == "" {
		out.Version = SchemaVersion
	}
	if out.Variant == "" {
		out.Variant = inferVariant(out)
	}
	return out
}

// NormalizeTable replaces missing headers, rows, and cells with empty slices
func NormalizeTable(t ExtractedTable) ExtractedTable {
	headers := make([]string, len(t.Headers))
	copy(headers, t.Headers)

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = make([]string, len(row))
		copy(rows[i], row)
	}

	return ExtractedTable{Headers: headers, Rows: rows}
}

func inferVariant(x Extraction) Variant {
	switch {
	case len(x.Pairs) > 0:
		return VariantHeadingValue
	case x.FullText != "":
		return VariantTableWithText
	case x.Summary != "":
		return VariantTableWithSummary
	default:
		return VariantTable
	}
}
