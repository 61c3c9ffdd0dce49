// Package main provides a CLI that converts a saved extraction into a
// CSV, PDF, or XLSX file.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zombor/datacapture/internal/export"
	"github.com/zombor/datacapture/internal/extraction"
)

type options struct {
	format string
	out    string
	title  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "capture-export [input.json]",
		Short: "Export an extracted table as CSV, PDF, or XLSX",
		Long: `capture-export reads an extraction (or a raw model answer, or a bare
{"headers", "rows"} table) and writes the table as a file download would.
Reads stdin when no input file is given.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: csv, pdf, xlsx (default: from --out, else csv)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file path, '-' for stdout (default: extracted_data.<format>)")
	cmd.Flags().StringVar(&opts.title, "title", export.DefaultTitle, "PDF report title")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	var (
		raw []byte
		err error
	)
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	format, err := resolveFormat(opts.format, opts.out)
	if err != nil {
		return err
	}

	table, err := readTable(raw)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, table, opts.title); err != nil {
		return fmt.Errorf("exporting %s: %w", format, err)
	}

	out := opts.out
	if out == "" {
		out = format.Filename()
	}
	if out == "-" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", len(table.Rows), out)
	return nil
}

// resolveFormat prefers the explicit flag, then the output extension
func resolveFormat(flag, out string) (export.Format, error) {
	if flag != "" {
		return export.ParseFormat(flag)
	}
	if ext := filepath.Ext(out); ext != "" && out != "-" {
		return export.ParseFormat(ext)
	}
	return export.FormatCSV, nil
}

// readTable accepts a bare table or anything the model answer decoder reads
func readTable(raw []byte) (extraction.ExtractedTable, error) {
	var bare struct {
		Headers []string   `json:"headers"`
		Rows    [][]string `json:"rows"`
	}
	if err := json.Unmarshal(raw, &bare); err == nil && bare.Headers != nil {
		return extraction.NormalizeTable(extraction.ExtractedTable{Headers: bare.Headers, Rows: bare.Rows}), nil
	}

	x, err := extraction.Decode(string(raw))
	if err != nil {
		return extraction.ExtractedTable{}, fmt.Errorf("reading extraction: %w", err)
	}
	return x.ExtractedTable, nil
}
