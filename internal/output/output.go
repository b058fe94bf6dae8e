// Package output renders CLI results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Result is a command result: Value is encoded for json and yaml, Table is
// printed for table output. A Result without a table prints as JSON.
type Result struct {
	Value any
	Table Data
}

// Data is a table: optional title lines, headers and rows.
type Data struct {
	Title   []string
	Headers []string
	Rows    [][]string
}

func (d Data) empty() bool {
	return len(d.Title) == 0 && len(d.Headers) == 0 && len(d.Rows) == 0
}

// ParseFormat validates s. An empty string auto-detects: a table on a
// terminal, JSON when piped.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return DetectFormat(), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// DetectFormat picks a table for terminals and JSON otherwise.
func DetectFormat() Format {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return FormatTable
	}
	return FormatJSON
}

// Write renders r to w in format f.
func Write(w io.Writer, f Format, r Result) error {
	switch f {
	case FormatYAML:
		data, err := yaml.MarshalWithOptions(r.Value, yaml.Indent(2), yaml.IndentSequence(false))
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatTable:
		if !r.Table.empty() {
			return writeTable(w, r.Table)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Value)
}

func writeTable(w io.Writer, data Data) error {
	for _, line := range data.Title {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if len(data.Rows) == 0 {
		return nil
	}

	table := tablewriter.NewTable(w)
	if len(data.Headers) > 0 {
		headers := make([]any, len(data.Headers))
		for i, h := range data.Headers {
			headers[i] = h
		}
		table.Header(headers...)
	}
	for _, row := range data.Rows {
		cells := make([]any, len(row))
		for i, c := range row {
			cells[i] = c
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}
